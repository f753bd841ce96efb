package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Product maps to the product table. Classification decides the workflow
// path an order for this product follows; the regulatory fields feed the
// prescriber authorization checks.
type Product struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Classification     string    `db:"classification" json:"classification"`
	ControlledSchedule *string   `db:"controlled_schedule" json:"controlled_schedule,omitempty"`
	RequiresDEA        bool      `db:"requires_dea" json:"requires_dea"`
	DefaultDosage      *string   `db:"default_dosage" json:"default_dosage,omitempty"`
	Active             bool      `db:"active" json:"active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}
