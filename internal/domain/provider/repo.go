package provider

import (
	"context"

	"github.com/google/uuid"
)

type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	Update(ctx context.Context, p *Provider) error
	List(ctx context.Context, limit, offset int) ([]*Provider, int, error)
}
