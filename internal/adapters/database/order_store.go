package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

const ordersTable = "orders"

var orderColumns = []interface{}{
	"id", "referring_organization_id", "radiology_organization_id", "patient_id", "status",
	"dictation_text", "clinical_indication", "final_cpt_code", "final_cpt_code_description",
	"final_icd10_codes", "final_icd10_code_descriptions", "final_validation_status",
	"final_compliance_score", "overridden", "override_justification", "is_urgent_override",
	"signed_by_user_id", "signature_date", "signature_file_key",
	"created_by", "updated_by", "created_at", "updated_at",
}

type orderRow struct {
	ID                      int64           `db:"id"`
	ReferringOrganizationID int64           `db:"referring_organization_id"`
	RadiologyOrganizationID sql.NullInt64   `db:"radiology_organization_id"`
	PatientID               sql.NullInt64   `db:"patient_id"`
	Status                  string          `db:"status"`
	DictationText           sql.NullString  `db:"dictation_text"`
	ClinicalIndication      sql.NullString  `db:"clinical_indication"`
	FinalCPTCode            sql.NullString  `db:"final_cpt_code"`
	FinalCPTCodeDescription sql.NullString  `db:"final_cpt_code_description"`
	FinalICD10Codes         pq.StringArray  `db:"final_icd10_codes"`
	FinalICD10Descriptions  pq.StringArray  `db:"final_icd10_code_descriptions"`
	FinalValidationStatus   sql.NullString  `db:"final_validation_status"`
	FinalComplianceScore    sql.NullFloat64 `db:"final_compliance_score"`
	Overridden              bool            `db:"overridden"`
	OverrideJustification   sql.NullString  `db:"override_justification"`
	IsUrgentOverride        bool            `db:"is_urgent_override"`
	SignedByUserID          sql.NullInt64   `db:"signed_by_user_id"`
	SignatureDate           sql.NullTime    `db:"signature_date"`
	SignatureFileKey        sql.NullString  `db:"signature_file_key"`
	CreatedBy               int64           `db:"created_by"`
	UpdatedBy               sql.NullInt64   `db:"updated_by"`
	CreatedAt               time.Time       `db:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"`
}

func (r *orderRow) toEntity() *entities.Order {
	o := &entities.Order{
		ID:                      r.ID,
		ReferringOrganizationID: r.ReferringOrganizationID,
		RadiologyOrganizationID: nullInt64Ptr(r.RadiologyOrganizationID),
		PatientID:               nullInt64Ptr(r.PatientID),
		Status:                  entities.OrderStatus(r.Status),
		DictationText:           r.DictationText.String,
		ClinicalIndication:      r.ClinicalIndication.String,
		FinalCPTCode:            r.FinalCPTCode.String,
		FinalCPTCodeDescription: r.FinalCPTCodeDescription.String,
		FinalICD10Codes:         []string(r.FinalICD10Codes),
		FinalICD10Descriptions:  []string(r.FinalICD10Descriptions),
		FinalValidationStatus:   entities.ValidationStatus(r.FinalValidationStatus.String),
		Overridden:              r.Overridden,
		OverrideJustification:   r.OverrideJustification.String,
		IsUrgentOverride:        r.IsUrgentOverride,
		SignedByUserID:          nullInt64Ptr(r.SignedByUserID),
		SignatureFileKey:        r.SignatureFileKey.String,
		CreatedBy:               r.CreatedBy,
		UpdatedBy:               r.UpdatedBy.Int64,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
	if r.FinalComplianceScore.Valid {
		score := r.FinalComplianceScore.Float64
		o.FinalComplianceScore = &score
	}
	if r.SignatureDate.Valid {
		t := r.SignatureDate.Time
		o.SignatureDate = &t
	}
	return o
}

type orderStore struct {
	tx *sqlx.Tx
}

// Create inserts a new order and returns its id
func (s *orderStore) Create(ctx context.Context, order *entities.Order) (int64, error) {
	record := goqu.Record{
		"referring_organization_id": order.ReferringOrganizationID,
		"radiology_organization_id": int64PtrValue(order.RadiologyOrganizationID),
		"patient_id":                int64PtrValue(order.PatientID),
		"status":                    string(order.Status),
		"dictation_text":            order.DictationText,
		"final_validation_status":   nullString(string(order.FinalValidationStatus)),
		"final_compliance_score":    floatPtrValue(order.FinalComplianceScore),
		"overridden":                false,
		"is_urgent_override":        false,
		"created_by":                order.CreatedBy,
		"updated_by":                order.CreatedBy,
	}

	query, args, err := dialect.Insert(ordersTable).Prepared(true).Rows(record).Returning("id").ToSQL()
	if err != nil {
		return 0, buildError(err)
	}

	var id int64
	if err := s.tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, persistence("failed to create order", err)
	}
	return id, nil
}

// LockByID loads the order with SELECT ... FOR UPDATE
func (s *orderStore) LockByID(ctx context.Context, id int64) (*entities.Order, error) {
	query, args, err := dialect.From(ordersTable).Prepared(true).
		Select(orderColumns...).
		Where(goqu.C("id").Eq(id)).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}
	return getOrder(ctx, s.tx, id, query, args)
}

// Apply writes the fields present in patch
func (s *orderStore) Apply(ctx context.Context, id int64, patch entities.OrderPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	query, args, err := dialect.Update(ordersTable).Prepared(true).
		Set(patchRecord(patch)).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return buildError(err)
	}

	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence("failed to update order", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("order %d not found", id))
	}
	return nil
}

func patchRecord(p entities.OrderPatch) goqu.Record {
	r := goqu.Record{"updated_at": goqu.L("NOW()")}
	if p.Status.Set {
		r["status"] = string(p.Status.Value)
	}
	if p.PatientID.Set {
		r["patient_id"] = p.PatientID.Value
	}
	if p.DictationText.Set {
		r["dictation_text"] = p.DictationText.Value
	}
	if p.ClinicalIndication.Set {
		r["clinical_indication"] = p.ClinicalIndication.Value
	}
	if p.FinalCPTCode.Set {
		r["final_cpt_code"] = p.FinalCPTCode.Value
	}
	if p.FinalCPTCodeDescription.Set {
		r["final_cpt_code_description"] = p.FinalCPTCodeDescription.Value
	}
	if p.FinalICD10Codes.Set {
		r["final_icd10_codes"] = pq.Array(p.FinalICD10Codes.Value)
	}
	if p.FinalICD10Descriptions.Set {
		r["final_icd10_code_descriptions"] = pq.Array(p.FinalICD10Descriptions.Value)
	}
	if p.FinalValidationStatus.Set {
		r["final_validation_status"] = string(p.FinalValidationStatus.Value)
	}
	if p.FinalComplianceScore.Set {
		r["final_compliance_score"] = p.FinalComplianceScore.Value
	}
	if p.Overridden.Set {
		r["overridden"] = p.Overridden.Value
	}
	if p.OverrideJustification.Set {
		r["override_justification"] = p.OverrideJustification.Value
	}
	if p.IsUrgentOverride.Set {
		r["is_urgent_override"] = p.IsUrgentOverride.Value
	}
	if p.SignedByUserID.Set {
		r["signed_by_user_id"] = p.SignedByUserID.Value
	}
	if p.SignatureDate.Set {
		r["signature_date"] = p.SignatureDate.Value
	}
	if p.SignatureFileKey.Set {
		r["signature_file_key"] = p.SignatureFileKey.Value
	}
	if p.UpdatedBy.Set {
		r["updated_by"] = p.UpdatedBy.Value
	}
	return r
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, id int64, query string, args []interface{}) (*entities.Order, error) {
	var row orderRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %d not found", id))
		}
		return nil, persistence("failed to load order", err)
	}
	return row.toEntity(), nil
}

// OrderReader implements repositories.OrderReader outside a transaction
type OrderReader struct {
	client *postgres.Client
}

// NewOrderReader creates a non-locking order reader
func NewOrderReader(client *postgres.Client) *OrderReader {
	return &OrderReader{client: client}
}

// GetByID retrieves an order by ID
func (r *OrderReader) GetByID(ctx context.Context, id int64) (*entities.Order, error) {
	query, args, err := dialect.From(ordersTable).Prepared(true).
		Select(orderColumns...).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}
	return getOrder(ctx, r.client.DB(), id, query, args)
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func int64PtrValue(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtrValue(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
