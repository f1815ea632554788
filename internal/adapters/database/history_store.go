package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

const historyTable = "order_history"

type historyRow struct {
	ID             int64          `db:"id"`
	OrderID        int64          `db:"order_id"`
	UserID         int64          `db:"user_id"`
	EventType      string         `db:"event_type"`
	PreviousStatus sql.NullString `db:"previous_status"`
	NewStatus      sql.NullString `db:"new_status"`
	Details        sql.NullString `db:"details"`
	CreatedAt      time.Time      `db:"created_at"`
}

type historyStore struct {
	tx *sqlx.Tx
}

// Append inserts one audit row
func (s *historyStore) Append(ctx context.Context, entry *entities.OrderHistory) error {
	query, args, err := dialect.Insert(historyTable).Prepared(true).Rows(goqu.Record{
		"order_id":        entry.OrderID,
		"user_id":         entry.UserID,
		"event_type":      string(entry.EventType),
		"previous_status": nullString(string(entry.PreviousStatus)),
		"new_status":      nullString(string(entry.NewStatus)),
		"details":         nullString(entry.Details),
	}).Returning("id").ToSQL()
	if err != nil {
		return buildError(err)
	}

	if err := s.tx.QueryRowxContext(ctx, query, args...).Scan(&entry.ID); err != nil {
		return persistence("failed to append order history", err)
	}
	return nil
}

// ListByOrder returns the order's history oldest first
func (s *historyStore) ListByOrder(ctx context.Context, orderID int64) ([]*entities.OrderHistory, error) {
	query, args, err := dialect.From(historyTable).Prepared(true).
		Select("id", "order_id", "user_id", "event_type", "previous_status", "new_status", "details", "created_at").
		Where(goqu.C("order_id").Eq(orderID)).
		Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}

	var rows []historyRow
	if err := s.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, persistence("failed to list order history", err)
	}

	history := make([]*entities.OrderHistory, 0, len(rows))
	for _, r := range rows {
		history = append(history, &entities.OrderHistory{
			ID:             r.ID,
			OrderID:        r.OrderID,
			UserID:         r.UserID,
			EventType:      entities.OrderEventType(r.EventType),
			PreviousStatus: entities.OrderStatus(r.PreviousStatus.String),
			NewStatus:      entities.OrderStatus(r.NewStatus.String),
			Details:        r.Details.String,
			CreatedAt:      r.CreatedAt,
		})
	}
	return history, nil
}
