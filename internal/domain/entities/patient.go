package entities

import "time"

// Patient represents a patient record owned by a referring organization
type Patient struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	FirstName      string    `json:"first_name" db:"first_name"`
	LastName       string    `json:"last_name" db:"last_name"`
	DateOfBirth    string    `json:"date_of_birth" db:"date_of_birth"`
	Gender         string    `json:"gender" db:"gender"`
	AddressLine1   string    `json:"address_line1" db:"address_line1"`
	AddressLine2   string    `json:"address_line2" db:"address_line2"`
	City           string    `json:"city" db:"city"`
	State          string    `json:"state" db:"state"`
	ZipCode        string    `json:"zip_code" db:"zip_code"`
	PhoneNumber    string    `json:"phone_number" db:"phone_number"`
	IsTemporary    bool      `json:"is_temporary" db:"is_temporary"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Insurance represents a patient insurance policy
type Insurance struct {
	ID           int64  `json:"id" db:"id"`
	PatientID    int64  `json:"patient_id" db:"patient_id"`
	IsPrimary    bool   `json:"is_primary" db:"is_primary"`
	InsurerName  string `json:"insurer_name" db:"insurer_name"`
	PolicyNumber string `json:"policy_number" db:"policy_number"`
	GroupNumber  string `json:"group_number" db:"group_number"`
}

// PatientInfo is the patient block sent with validation and finalize requests
type PatientInfo struct {
	ID          *int64 `json:"id,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// MissingRadiologyFields lists every field that blocks handoff to radiology.
// A nil insurance counts as a missing primary policy.
func MissingRadiologyFields(p *Patient, primary *Insurance) []string {
	var missing []string
	if p == nil {
		return []string{"patient"}
	}
	if isBlank(p.AddressLine1) {
		missing = append(missing, "patient.address_line1")
	}
	if isBlank(p.City) {
		missing = append(missing, "patient.city")
	}
	if isBlank(p.State) {
		missing = append(missing, "patient.state")
	}
	if isBlank(p.ZipCode) {
		missing = append(missing, "patient.zip_code")
	}
	if isBlank(p.PhoneNumber) {
		missing = append(missing, "patient.phone_number")
	}
	if primary == nil {
		return append(missing, "insurance.primary")
	}
	if isBlank(primary.InsurerName) {
		missing = append(missing, "insurance.insurer_name")
	}
	if isBlank(primary.PolicyNumber) {
		missing = append(missing, "insurance.policy_number")
	}
	return missing
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
