package auditevent

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/compliance"
	"github.com/ehr/fulfillment/internal/platform/middleware"
)

type mockRepo struct {
	events []*AuditEvent
}

func (m *mockRepo) Append(ctx context.Context, e *AuditEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, context.Canceled
}

func (m *mockRepo) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	return m.events, len(m.events), nil
}

func TestRecordTransition(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	orderID := uuid.New()

	if err := svc.RecordTransition(context.Background(), orderID, "provider_review", "provider_approved", "reviewer-1", "looks good"); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("events = %d, want 1", len(repo.events))
	}
	e := repo.events[0]
	if e.Kind != KindTransition || e.Outcome != OutcomeSuccess {
		t.Errorf("kind/outcome = %s/%s", e.Kind, e.Outcome)
	}
	if *e.FromStatus != "provider_review" || *e.ToStatus != "provider_approved" {
		t.Errorf("from/to = %s/%s", *e.FromStatus, *e.ToStatus)
	}
}

func TestRecordCompliance_BlockWithoutOverrideIsFailure(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	flags := []compliance.Flag{{Type: "allergy", Severity: compliance.SeverityCritical}}

	if err := svc.RecordCompliance(context.Background(), uuid.New(), "reviewer-1", flags, string(compliance.ActionBlock), false); err != nil {
		t.Fatalf("RecordCompliance: %v", err)
	}
	if repo.events[0].Outcome != OutcomeFailure {
		t.Errorf("outcome = %s, want failure", repo.events[0].Outcome)
	}

	if err := svc.RecordCompliance(context.Background(), uuid.New(), "reviewer-1", flags, string(compliance.ActionBlock), true); err != nil {
		t.Fatalf("RecordCompliance override: %v", err)
	}
	if repo.events[1].Outcome != OutcomeSuccess || !repo.events[1].Override {
		t.Error("overridden block should record success with the override marker")
	}
}

func TestRecordAccess(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	orderID := uuid.New()

	err := svc.RecordAccess(middleware.AccessEntry{
		ActorID:    "user-1",
		Resource:   "orders",
		ResourceID: orderID.String(),
		Action:     "read",
		Method:     "GET",
		Path:       "/api/v1/orders/" + orderID.String(),
		StatusCode: 200,
	})
	if err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}
	e := repo.events[0]
	if e.Kind != KindAccess {
		t.Errorf("kind = %s", e.Kind)
	}
	if e.OrderID == nil || *e.OrderID != orderID {
		t.Error("order id not linked from resource path")
	}
}
