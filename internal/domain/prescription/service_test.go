package prescription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/compliance"
)

type mockRepo struct {
	items map[uuid.UUID]*Prescription
}

func (m *mockRepo) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Prescription, error) {
	for _, p := range m.items {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errors.New("no rows")
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, pharmacyID *string) error {
	p, ok := m.items[id]
	if !ok {
		return errors.New("no rows")
	}
	p.Status = status
	if pharmacyID != nil {
		p.PharmacyID = pharmacyID
	}
	return nil
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	var items []*Prescription
	for _, p := range m.items {
		items = append(items, p)
	}
	return items, len(items), nil
}

type mockRoutingRepo struct {
	records    []*Routing
	failCreate bool
}

func (m *mockRoutingRepo) Create(ctx context.Context, r *Routing) error {
	if m.failCreate {
		return errors.New("insert failed")
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.records = append(m.records, r)
	return nil
}

func (m *mockRoutingRepo) ListByPrescription(ctx context.Context, id uuid.UUID) ([]*Routing, error) {
	var out []*Routing
	for _, r := range m.records {
		if r.PrescriptionID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestService() (*Service, *mockRepo, *mockRoutingRepo) {
	repo := &mockRepo{items: map[uuid.UUID]*Prescription{}}
	routings := &mockRoutingRepo{}
	signer := NewSigner("0123456789abcdef0123456789abcdef")
	return NewService(repo, routings, signer, nil), repo, routings
}

func validRequest() Request {
	return Request{MedicationName: "Finasteride", Dosage: "1mg", Quantity: 30, Refills: 2, DaysSupply: 30}
}

func TestIssue(t *testing.T) {
	svc, repo, _ := newTestService()
	orderID, providerID, patientID := uuid.New(), uuid.New(), uuid.New()
	flags := []compliance.Flag{{Type: "missing_data", Severity: compliance.SeverityInfo, Title: "Incomplete safety profile"}}

	p, err := svc.Issue(context.Background(), orderID, providerID, patientID, validRequest(), flags)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if p.Status != StatusActive {
		t.Errorf("status = %s, want active", p.Status)
	}
	if p.SignatureToken == "" {
		t.Error("expected a signature token")
	}
	if len(p.ComplianceFlags) != 1 {
		t.Errorf("flags = %d, want 1", len(p.ComplianceFlags))
	}
	if _, ok := repo.items[p.ID]; !ok {
		t.Error("prescription not persisted")
	}
}

func TestIssue_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	tests := []struct {
		name string
		req  Request
	}{
		{"missing name", Request{Quantity: 30}},
		{"zero quantity", Request{MedicationName: "Finasteride"}},
		{"negative refills", Request{MedicationName: "Finasteride", Quantity: 30, Refills: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), tt.req, nil); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestIssue_NilFlagsStoredAsEmpty(t *testing.T) {
	svc, _, _ := newTestService()
	p, err := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if p.ComplianceFlags == nil {
		t.Error("flags should be an empty slice, not nil")
	}
}

func TestRouteToPharmacy(t *testing.T) {
	svc, _, routings := newTestService()
	p, _ := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)

	routed, err := svc.RouteToPharmacy(context.Background(), p.ID, "ph-001", "reviewer-1")
	if err != nil {
		t.Fatalf("RouteToPharmacy: %v", err)
	}
	if routed.Status != StatusRoutedToPharmacy {
		t.Errorf("status = %s, want routed_to_pharmacy", routed.Status)
	}
	if routed.PharmacyID == nil || *routed.PharmacyID != "ph-001" {
		t.Error("pharmacy id not set")
	}
	if len(routings.records) != 1 {
		t.Fatalf("routing records = %d, want 1", len(routings.records))
	}
	if routings.records[0].RoutedBy != "reviewer-1" {
		t.Errorf("routed_by = %s", routings.records[0].RoutedBy)
	}
}

func TestRouteToPharmacy_IdempotentSamePharmacy(t *testing.T) {
	svc, _, routings := newTestService()
	p, _ := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)

	if _, err := svc.RouteToPharmacy(context.Background(), p.ID, "ph-001", "reviewer-1"); err != nil {
		t.Fatalf("first route: %v", err)
	}
	if _, err := svc.RouteToPharmacy(context.Background(), p.ID, "ph-001", "reviewer-1"); err != nil {
		t.Fatalf("repeat route: %v", err)
	}
	if len(routings.records) != 1 {
		t.Errorf("repeat routing appended a record, got %d", len(routings.records))
	}
}

func TestRouteToPharmacy_DifferentPharmacyRejected(t *testing.T) {
	svc, _, _ := newTestService()
	p, _ := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)

	if _, err := svc.RouteToPharmacy(context.Background(), p.ID, "ph-001", "reviewer-1"); err != nil {
		t.Fatalf("first route: %v", err)
	}
	if _, err := svc.RouteToPharmacy(context.Background(), p.ID, "ph-002", "reviewer-1"); !errors.Is(err, ErrAlreadyRouted) {
		t.Errorf("err = %v, want ErrAlreadyRouted", err)
	}
}

func TestRouteToPharmacy_InactiveRejected(t *testing.T) {
	svc, _, _ := newTestService()
	p, _ := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)
	if err := svc.MarkInactive(context.Background(), p.ID); err != nil {
		t.Fatalf("MarkInactive: %v", err)
	}
	if _, err := svc.RouteToPharmacy(context.Background(), p.ID, "ph-001", "reviewer-1"); !errors.Is(err, ErrNotActive) {
		t.Errorf("err = %v, want ErrNotActive", err)
	}
}

func TestRouteToPharmacy_RoutingRowFailureSurfaces(t *testing.T) {
	svc, _, routings := newTestService()
	p, _ := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)
	routings.failCreate = true

	// The status flip and the routing insert run in one transaction; a
	// failed insert must abort the whole routing attempt.
	if _, err := svc.RouteToPharmacy(context.Background(), p.ID, "ph-001", "reviewer-1"); err == nil {
		t.Fatal("expected the routing failure to surface")
	}
	if len(routings.records) != 0 {
		t.Errorf("routing records = %d, want 0", len(routings.records))
	}
}

func TestRouteToPharmacy_EmptyPharmacy(t *testing.T) {
	svc, _, _ := newTestService()
	p, _ := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)
	if _, err := svc.RouteToPharmacy(context.Background(), p.ID, "", "reviewer-1"); !errors.Is(err, ErrEmptyPharmacy) {
		t.Errorf("err = %v, want ErrEmptyPharmacy", err)
	}
}

func TestVerifySignature(t *testing.T) {
	svc, repo, _ := newTestService()
	p, _ := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)

	if err := svc.VerifySignature(context.Background(), p.ID); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}

	// Swap the token for one bound to a different prescription.
	other, _ := svc.Issue(context.Background(), uuid.New(), uuid.New(), uuid.New(), validRequest(), nil)
	repo.items[p.ID].SignatureToken = other.SignatureToken
	if err := svc.VerifySignature(context.Background(), p.ID); err == nil {
		t.Error("expected a mismatch error")
	}
}
