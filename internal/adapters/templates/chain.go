package templates

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

// Chain consults each repository in order and returns the first active template
type Chain struct {
	repos []repositories.TemplateRepository
}

// NewChain creates a template chain; nil entries are skipped
func NewChain(repos ...repositories.TemplateRepository) *Chain {
	c := &Chain{}
	for _, r := range repos {
		if r != nil {
			c.repos = append(c.repos, r)
		}
	}
	return c
}

// GetActive returns NOT_FOUND only when every source reported none. A source
// error is logged and the next source is tried; it is returned if no later
// source has a template.
func (c *Chain) GetActive(ctx context.Context) (*entities.PromptTemplate, error) {
	var lastErr error
	for i, r := range c.repos {
		tmpl, err := r.GetActive(ctx)
		if err == nil {
			return tmpl, nil
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			log.Warn().Err(err).Int("source", i).Msg("prompt template source failed, trying next")
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperrors.NewNotFoundError("no active prompt template")
}
