package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

const (
	attemptsTable = "validation_attempts"
	usageTable    = "llm_validation_logs"
)

type attemptRow struct {
	ID                  int64           `db:"id"`
	OrderID             sql.NullInt64   `db:"order_id"`
	AttemptNumber       int             `db:"attempt_number"`
	InputText           string          `db:"validation_input_text"`
	Outcome             string          `db:"validation_outcome"`
	GeneratedICD10Codes []byte          `db:"generated_icd10_codes"`
	GeneratedCPTCodes   []byte          `db:"generated_cpt_codes"`
	FeedbackText        sql.NullString  `db:"generated_feedback_text"`
	ComplianceScore     sql.NullFloat64 `db:"generated_compliance_score"`
	UserID              int64           `db:"user_id"`
	CreatedAt           time.Time       `db:"created_at"`
}

type attemptStore struct {
	tx *sqlx.Tx
}

// NextAttemptNumber returns 1 + the highest attempt number for the order.
// The caller must already hold the order row lock.
func (s *attemptStore) NextAttemptNumber(ctx context.Context, orderID int64) (int, error) {
	query, args, err := dialect.From(attemptsTable).Prepared(true).
		Select(goqu.L("COALESCE(MAX(attempt_number), 0) + 1")).
		Where(goqu.C("order_id").Eq(orderID)).
		ToSQL()
	if err != nil {
		return 0, buildError(err)
	}

	var next int
	if err := s.tx.QueryRowxContext(ctx, query, args...).Scan(&next); err != nil {
		return 0, persistence("failed to compute attempt number", err)
	}
	return next, nil
}

// Insert appends an attempt; codes are stored JSON-encoded
func (s *attemptStore) Insert(ctx context.Context, a *entities.ValidationAttempt) (int64, error) {
	icd, err := json.Marshal(nonNil(a.GeneratedICD10Codes))
	if err != nil {
		return 0, apperrors.NewInternalError("failed to encode icd-10 codes", err)
	}
	cpt, err := json.Marshal(nonNil(a.GeneratedCPTCodes))
	if err != nil {
		return 0, apperrors.NewInternalError("failed to encode cpt codes", err)
	}

	query, args, err := dialect.Insert(attemptsTable).Prepared(true).Rows(goqu.Record{
		"order_id":                   int64PtrValue(a.OrderID),
		"attempt_number":             a.AttemptNumber,
		"validation_input_text":      a.InputText,
		"validation_outcome":         string(a.OutcomeStatus),
		"generated_icd10_codes":      string(icd),
		"generated_cpt_codes":        string(cpt),
		"generated_feedback_text":    a.FeedbackText,
		"generated_compliance_score": a.ComplianceScore,
		"user_id":                    a.UserID,
	}).Returning("id").ToSQL()
	if err != nil {
		return 0, buildError(err)
	}

	var id int64
	if err := s.tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, persistence("failed to insert validation attempt", err)
	}
	a.ID = id
	return id, nil
}

// ListByOrder returns attempts ordered by attempt number
func (s *attemptStore) ListByOrder(ctx context.Context, orderID int64) ([]*entities.ValidationAttempt, error) {
	query, args, err := dialect.From(attemptsTable).Prepared(true).
		Select("id", "order_id", "attempt_number", "validation_input_text", "validation_outcome",
			"generated_icd10_codes", "generated_cpt_codes", "generated_feedback_text",
			"generated_compliance_score", "user_id", "created_at").
		Where(goqu.C("order_id").Eq(orderID)).
		Order(goqu.C("attempt_number").Asc()).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}

	var rows []attemptRow
	if err := s.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, persistence("failed to list validation attempts", err)
	}

	attempts := make([]*entities.ValidationAttempt, 0, len(rows))
	for _, r := range rows {
		a := &entities.ValidationAttempt{
			ID:              r.ID,
			OrderID:         nullInt64Ptr(r.OrderID),
			AttemptNumber:   r.AttemptNumber,
			InputText:       r.InputText,
			OutcomeStatus:   entities.ValidationStatus(r.Outcome),
			FeedbackText:    r.FeedbackText.String,
			ComplianceScore: r.ComplianceScore.Float64,
			UserID:          r.UserID,
			CreatedAt:       r.CreatedAt,
		}
		if err := decodeCodes(r.GeneratedICD10Codes, &a.GeneratedICD10Codes); err != nil {
			return nil, persistence(fmt.Sprintf("attempt %d has corrupt icd-10 codes", r.ID), err)
		}
		if err := decodeCodes(r.GeneratedCPTCodes, &a.GeneratedCPTCodes); err != nil {
			return nil, persistence(fmt.Sprintf("attempt %d has corrupt cpt codes", r.ID), err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

// SetOutcome reclassifies one attempt; it is the only update attempts allow
func (s *attemptStore) SetOutcome(ctx context.Context, attemptID int64, outcome entities.ValidationStatus) error {
	query, args, err := dialect.Update(attemptsTable).Prepared(true).
		Set(goqu.Record{"validation_outcome": string(outcome)}).
		Where(goqu.C("id").Eq(attemptID)).
		ToSQL()
	if err != nil {
		return buildError(err)
	}

	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence("failed to update attempt outcome", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("validation attempt %d not found", attemptID))
	}
	return nil
}

// InsertUsage writes one provider call record
func (s *attemptStore) InsertUsage(ctx context.Context, u *entities.LLMUsageLog) error {
	query, args, err := dialect.Insert(usageTable).Prepared(true).Rows(goqu.Record{
		"order_id":          int64PtrValue(u.OrderID),
		"user_id":           u.UserID,
		"provider":          u.Provider,
		"model":             u.Model,
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
		"latency_ms":        u.LatencyMs,
		"status":            u.Status,
		"error_message":     nullString(u.ErrorMessage),
	}).ToSQL()
	if err != nil {
		return buildError(err)
	}

	if _, err := s.tx.ExecContext(ctx, query, args...); err != nil {
		return persistence("failed to insert llm usage log", err)
	}
	return nil
}

func nonNil(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}

func decodeCodes(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		*dst = []string{}
		return nil
	}
	return json.Unmarshal(raw, dst)
}
