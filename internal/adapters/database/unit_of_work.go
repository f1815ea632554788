package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/repositories"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

// dialect renders every query with $n placeholders
var dialect = goqu.Dialect("postgres")

// TxManager implements repositories.TxManager on a Postgres client
type TxManager struct {
	client *postgres.Client
}

// NewTxManager creates a transaction manager
func NewTxManager(client *postgres.Client) *TxManager {
	return &TxManager{client: client}
}

// WithinTx runs fn in a READ COMMITTED transaction. Any error or panic rolls
// back; AppErrors from fn are returned unchanged, anything else is wrapped as
// a persistence failure.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, uow repositories.UnitOfWork) error) (err error) {
	tx, err := m.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewPersistenceError("failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &unitOfWork{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Msg("transaction rollback failed")
		}
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.NewPersistenceError("transaction rolled back", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("failed to commit transaction", err)
	}
	return nil
}

type unitOfWork struct {
	tx *sqlx.Tx
}

func (u *unitOfWork) Orders() repositories.OrderStore { return &orderStore{tx: u.tx} }
func (u *unitOfWork) History() repositories.OrderHistoryStore { return &historyStore{tx: u.tx} }
func (u *unitOfWork) Attempts() repositories.AttemptStore { return &attemptStore{tx: u.tx} }
func (u *unitOfWork) Patients() repositories.PatientStore { return &patientStore{tx: u.tx} }

func persistence(msg string, err error) error {
	return apperrors.NewPersistenceError(msg, err)
}

func buildError(err error) error {
	return apperrors.NewInternalError("failed to build query", err)
}
