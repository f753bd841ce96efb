package prescription

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores prescriptions. Update never touches compliance_flags or
// signature_token; only status and pharmacy_id change after creation.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*Prescription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, pharmacyID *string) error
	List(ctx context.Context, limit, offset int) ([]*Prescription, int, error)
}

// RoutingRepository appends accepted pharmacy routing records.
type RoutingRepository interface {
	Create(ctx context.Context, r *Routing) error
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Routing, error)
}
