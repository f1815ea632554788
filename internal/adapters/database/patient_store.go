package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

const (
	patientsTable  = "patients"
	insuranceTable = "patient_insurance"
)

type patientRow struct {
	ID             int64          `db:"id"`
	OrganizationID int64          `db:"organization_id"`
	FirstName      sql.NullString `db:"first_name"`
	LastName       sql.NullString `db:"last_name"`
	DateOfBirth    sql.NullString `db:"date_of_birth"`
	Gender         sql.NullString `db:"gender"`
	AddressLine1   sql.NullString `db:"address_line1"`
	AddressLine2   sql.NullString `db:"address_line2"`
	City           sql.NullString `db:"city"`
	State          sql.NullString `db:"state"`
	ZipCode        sql.NullString `db:"zip_code"`
	PhoneNumber    sql.NullString `db:"phone_number"`
	IsTemporary    bool           `db:"is_temporary"`
	CreatedAt      time.Time      `db:"created_at"`
}

type insuranceRow struct {
	ID           int64          `db:"id"`
	PatientID    int64          `db:"patient_id"`
	IsPrimary    bool           `db:"is_primary"`
	InsurerName  sql.NullString `db:"insurer_name"`
	PolicyNumber sql.NullString `db:"policy_number"`
	GroupNumber  sql.NullString `db:"group_number"`
}

type patientStore struct {
	tx *sqlx.Tx
}

// GetByID retrieves a patient by ID
func (s *patientStore) GetByID(ctx context.Context, id int64) (*entities.Patient, error) {
	query, args, err := dialect.From(patientsTable).Prepared(true).
		Select("id", "organization_id", "first_name", "last_name", "date_of_birth", "gender",
			"address_line1", "address_line2", "city", "state", "zip_code", "phone_number",
			"is_temporary", "created_at").
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}

	var r patientRow
	if err := s.tx.GetContext(ctx, &r, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("patient %d not found", id))
		}
		return nil, persistence("failed to load patient", err)
	}

	return &entities.Patient{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		FirstName:      r.FirstName.String,
		LastName:       r.LastName.String,
		DateOfBirth:    r.DateOfBirth.String,
		Gender:         r.Gender.String,
		AddressLine1:   r.AddressLine1.String,
		AddressLine2:   r.AddressLine2.String,
		City:           r.City.String,
		State:          r.State.String,
		ZipCode:        r.ZipCode.String,
		PhoneNumber:    r.PhoneNumber.String,
		IsTemporary:    r.IsTemporary,
		CreatedAt:      r.CreatedAt,
	}, nil
}

// PrimaryInsurance returns the patient's primary policy, or nil when none exists
func (s *patientStore) PrimaryInsurance(ctx context.Context, patientID int64) (*entities.Insurance, error) {
	query, args, err := dialect.From(insuranceTable).Prepared(true).
		Select("id", "patient_id", "is_primary", "insurer_name", "policy_number", "group_number").
		Where(goqu.C("patient_id").Eq(patientID), goqu.C("is_primary").IsTrue()).
		Order(goqu.C("id").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}

	var r insuranceRow
	if err := s.tx.GetContext(ctx, &r, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistence("failed to load primary insurance", err)
	}

	return &entities.Insurance{
		ID:           r.ID,
		PatientID:    r.PatientID,
		IsPrimary:    r.IsPrimary,
		InsurerName:  r.InsurerName.String,
		PolicyNumber: r.PolicyNumber.String,
		GroupNumber:  r.GroupNumber.String,
	}, nil
}

// CreateTemporary inserts a walk-in patient flagged is_temporary
func (s *patientStore) CreateTemporary(ctx context.Context, organizationID int64, info entities.PatientInfo) (int64, error) {
	query, args, err := dialect.Insert(patientsTable).Prepared(true).Rows(goqu.Record{
		"organization_id": organizationID,
		"first_name":      info.FirstName,
		"last_name":       info.LastName,
		"date_of_birth":   nullString(info.DateOfBirth),
		"gender":          nullString(info.Gender),
		"phone_number":    nullString(info.PhoneNumber),
		"is_temporary":    true,
	}).Returning("id").ToSQL()
	if err != nil {
		return 0, buildError(err)
	}

	var id int64
	if err := s.tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, persistence("failed to create temporary patient", err)
	}
	return id, nil
}
