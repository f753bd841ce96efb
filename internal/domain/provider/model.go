package provider

import (
	"time"

	"github.com/google/uuid"
)

// Provider maps to the provider table. The licensing fields drive the
// prescribing-authority checks at prescription authorization.
type Provider struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	LicenseNumber string    `db:"license_number" json:"license_number"`
	LicenseState  string    `db:"license_state" json:"license_state"`
	LicenseStatus string    `db:"license_status" json:"license_status"`
	DEANumber     *string   `db:"dea_number" json:"dea_number,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
