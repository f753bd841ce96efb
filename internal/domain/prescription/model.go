package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/compliance"
)

const (
	StatusActive           = "active"
	StatusRoutedToPharmacy = "routed_to_pharmacy"
	StatusInactive         = "inactive"
)

// Prescription maps to the prescription table. An order produces at most one
// active prescription; ComplianceFlags are attached at authorization time and
// never rewritten.
type Prescription struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	OrderID         uuid.UUID         `db:"order_id" json:"order_id"`
	ProviderID      uuid.UUID         `db:"provider_id" json:"provider_id"`
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	MedicationName  string            `db:"medication_name" json:"medication_name"`
	Dosage          string            `db:"dosage" json:"dosage"`
	Quantity        int               `db:"quantity" json:"quantity"`
	Refills         int               `db:"refills" json:"refills"`
	DaysSupply      int               `db:"days_supply" json:"days_supply"`
	PharmacyID      *string           `db:"pharmacy_id" json:"pharmacy_id,omitempty"`
	Status          string            `db:"status" json:"status"`
	ComplianceFlags []compliance.Flag `db:"compliance_flags" json:"compliance_flags"`
	SignatureToken  string            `db:"signature_token" json:"signature_token"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// Request carries the medication details submitted for authorization.
type Request struct {
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Quantity       int    `json:"quantity"`
	Refills        int    `json:"refills"`
	DaysSupply     int    `json:"days_supply"`
}

// Routing maps to the pharmacy_routing table, one row per routing attempt
// that was accepted.
type Routing struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	PharmacyID     string    `db:"pharmacy_id" json:"pharmacy_id"`
	RoutedBy       string    `db:"routed_by" json:"routed_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
