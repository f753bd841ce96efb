package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/workflow"
	"github.com/ehr/fulfillment/internal/platform/cache"
)

type Service struct {
	products ProductRepository
	cache    cache.Store
	ttl      time.Duration
}

func NewService(products ProductRepository, store cache.Store, ttl time.Duration) *Service {
	return &Service{products: products, cache: store, ttl: ttl}
}

func (s *Service) CreateProduct(ctx context.Context, p *Product) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := workflow.PathFor(workflow.Classification(p.Classification)); err != nil {
		return fmt.Errorf("invalid classification: %s", p.Classification)
	}
	if p.RequiresDEA && p.Classification != string(workflow.ClassificationPrescription) {
		return fmt.Errorf("only prescription products can require DEA registration")
	}
	return s.products.Create(ctx, p)
}

func cacheKey(id uuid.UUID) string { return "product:" + id.String() }

// GetProduct reads through the cache. Cache decode failures fall back to the
// repository.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	if data, ok := s.cache.Get(ctx, cacheKey(id)); ok {
		var p Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	}

	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		s.cache.Set(ctx, cacheKey(id), data, s.ttl)
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, p *Product) error {
	if _, err := workflow.PathFor(workflow.Classification(p.Classification)); err != nil {
		return fmt.Errorf("invalid classification: %s", p.Classification)
	}
	if err := s.products.Update(ctx, p); err != nil {
		return err
	}
	s.cache.Delete(ctx, cacheKey(p.ID))
	return nil
}

func (s *Service) ListProducts(ctx context.Context, params map[string]string, limit, offset int) ([]*Product, int, error) {
	return s.products.List(ctx, params, limit, offset)
}
