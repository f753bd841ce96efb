package compliance

import (
	"time"

	"github.com/google/uuid"
)

// Severity tiers for a contraindication flag.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Action is the overall recommendation produced by an evaluation.
type Action string

const (
	ActionProceed      Action = "PROCEED"
	ActionManualReview Action = "MANUAL_REVIEW_REQUIRED"
	ActionBlock        Action = "BLOCK"
)

// Flag is one contraindication finding for a proposed medication.
type Flag struct {
	Type           string   `json:"type"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Details        string   `json:"details"`
	Recommendation string   `json:"recommendation"`
	Source         string   `json:"source"`
}

// Evaluation is the full output of one evaluator run.
type Evaluation struct {
	Flags                        []Flag `json:"flags"`
	HasAbsoluteContraindications bool   `json:"has_absolute_contraindications"`
	RecommendationAction         Action `json:"recommendation_action"`
}

// Medication describes the product being evaluated.
type Medication struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage,omitempty"`
}

// SafetyProfile maps to the patient_safety_profile table. Every clinical
// field is optional; the evaluator treats absent data as reduced confidence.
type SafetyProfile struct {
	PatientID           uuid.UUID `db:"patient_id" json:"patient_id"`
	Allergies           []string  `db:"allergies" json:"allergies"`
	CurrentMedications  []string  `db:"current_medications" json:"current_medications"`
	MedicalHistory      []string  `db:"medical_history" json:"medical_history"`
	Age                 *int      `db:"age" json:"age,omitempty"`
	Gender              *string   `db:"gender" json:"gender,omitempty"`
	Pregnant            *bool     `db:"pregnant" json:"pregnant,omitempty"`
	CreatinineClearance *float64  `db:"creatinine_clearance" json:"creatinine_clearance,omitempty"`
	ALTLevel            *float64  `db:"alt_level" json:"alt_level,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Interaction maps to the drug_interaction table. Medication names are
// stored lowercased so lookups are case-insensitive.
type Interaction struct {
	ID             uuid.UUID `db:"id" json:"id"`
	MedicationA    string    `db:"medication_a" json:"medication_a"`
	MedicationB    string    `db:"medication_b" json:"medication_b"`
	Severity       string    `db:"severity" json:"severity"`
	Description    *string   `db:"description" json:"description,omitempty"`
	ClinicalEffect *string   `db:"clinical_effect" json:"clinical_effect,omitempty"`
	Management     *string   `db:"management" json:"management,omitempty"`
	Source         *string   `db:"source" json:"source,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
