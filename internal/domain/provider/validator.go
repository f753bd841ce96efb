package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/catalog"
)

// NotAuthorizedError reports why a provider may not prescribe a product. The
// Reason is stable and suitable for display to a reviewing clinician.
type NotAuthorizedError struct {
	ProviderID uuid.UUID
	Reason     string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("provider %s not authorized: %s", e.ProviderID, e.Reason)
}

// Validator checks prescribing authority against a product's regulatory
// classification.
type Validator struct {
	providers ProviderRepository
}

func NewValidator(providers ProviderRepository) *Validator {
	return &Validator{providers: providers}
}

// Authorize runs the credential checks in order: provider exists, license
// number and state present, license active, DEA registration when the product
// requires it. The first failing check short-circuits.
func (v *Validator) Authorize(ctx context.Context, providerID uuid.UUID, product *catalog.Product) (*Provider, error) {
	p, err := v.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, &NotAuthorizedError{ProviderID: providerID, Reason: "provider not found"}
	}
	if p.LicenseNumber == "" || p.LicenseState == "" {
		return nil, &NotAuthorizedError{ProviderID: providerID, Reason: "license number or state missing"}
	}
	if p.LicenseStatus != "active" {
		return nil, &NotAuthorizedError{ProviderID: providerID, Reason: fmt.Sprintf("license status is %s", p.LicenseStatus)}
	}
	if product.RequiresDEA && (p.DEANumber == nil || *p.DEANumber == "") {
		return nil, &NotAuthorizedError{ProviderID: providerID, Reason: "DEA registration required for controlled product"}
	}
	return p, nil
}
