package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

const templatesTable = "prompt_templates"

type templateRow struct {
	ID        int64         `db:"id"`
	Name      string        `db:"name"`
	Version   int           `db:"version"`
	Content   string        `db:"content"`
	WordLimit sql.NullInt64 `db:"word_limit"`
	Active    bool          `db:"active"`
	CreatedAt time.Time     `db:"created_at"`
}

// TemplateAdapter implements repositories.TemplateRepository
type TemplateAdapter struct {
	client *postgres.Client
}

// NewTemplateAdapter creates a new prompt template adapter
func NewTemplateAdapter(client *postgres.Client) *TemplateAdapter {
	return &TemplateAdapter{client: client}
}

// GetActive returns the highest-version active template
func (a *TemplateAdapter) GetActive(ctx context.Context) (*entities.PromptTemplate, error) {
	query, args, err := dialect.From(templatesTable).Prepared(true).
		Select("id", "name", "version", "content", "word_limit", "active", "created_at").
		Where(goqu.C("active").IsTrue()).
		Order(goqu.C("version").Desc(), goqu.C("id").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}

	var r templateRow
	if err := a.client.DB().GetContext(ctx, &r, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("no active prompt template")
		}
		return nil, persistence("failed to load prompt template", err)
	}

	return &entities.PromptTemplate{
		ID:        r.ID,
		Name:      r.Name,
		Version:   r.Version,
		Content:   r.Content,
		WordLimit: int(r.WordLimit.Int64),
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}, nil
}

// Create inserts a template version. When it is active, every other
// version of the same name is deactivated in the same transaction.
func (a *TemplateAdapter) Create(ctx context.Context, tmpl *entities.PromptTemplate) (int64, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return 0, persistence("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if tmpl.Active {
		query, args, err := dialect.Update(templatesTable).Prepared(true).
			Set(goqu.Record{"active": false}).
			Where(goqu.C("name").Eq(tmpl.Name), goqu.C("active").IsTrue()).
			ToSQL()
		if err != nil {
			return 0, buildError(err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, persistence("failed to deactivate prompt templates", err)
		}
	}

	wordLimit := sql.NullInt64{Int64: int64(tmpl.WordLimit), Valid: tmpl.WordLimit > 0}
	query, args, err := dialect.Insert(templatesTable).Prepared(true).Rows(goqu.Record{
		"name":       tmpl.Name,
		"version":    tmpl.Version,
		"content":    tmpl.Content,
		"word_limit": wordLimit,
		"active":     tmpl.Active,
	}).Returning("id").ToSQL()
	if err != nil {
		return 0, buildError(err)
	}

	var id int64
	if err := tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, persistence("failed to insert prompt template", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, persistence("failed to commit prompt template", err)
	}
	tmpl.ID = id
	return id, nil
}
