package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/workflow"
)

// Repository stores orders. Update compares the version the caller read
// against the stored row and returns ErrConcurrentModification on mismatch;
// on success the stored version is incremented. Orders are never deleted.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Order, int, error)
	ListInStatus(ctx context.Context, statuses []workflow.Status) ([]*Order, error)
}
