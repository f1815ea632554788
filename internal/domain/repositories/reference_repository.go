package repositories

import (
	"context"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

// TemplateRepository returns the active validation prompt template.
// It returns a NOT_FOUND AppError when no active template exists.
type TemplateRepository interface {
	GetActive(ctx context.Context) (*entities.PromptTemplate, error)
}

// ReferenceCodeRepository looks up ICD-10 and CPT reference rows by keyword
type ReferenceCodeRepository interface {
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]entities.ReferenceCode, error)
}
