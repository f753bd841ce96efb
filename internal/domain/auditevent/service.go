package auditevent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/compliance"
	"github.com/ehr/fulfillment/internal/platform/middleware"
)

type Service struct {
	repo AuditEventRepository
}

func NewService(repo AuditEventRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetAuditEvent(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchAuditEvents(ctx context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

func (s *Service) RecordTransition(ctx context.Context, orderID uuid.UUID, from, to, actor, notes string) error {
	return s.repo.Append(ctx, &AuditEvent{
		Kind:       KindTransition,
		OrderID:    &orderID,
		Actor:      actor,
		Action:     "transition",
		Outcome:    OutcomeSuccess,
		Detail:     notes,
		FromStatus: &from,
		ToStatus:   &to,
	})
}

func (s *Service) RecordAuthorization(ctx context.Context, orderID uuid.UUID, prescriptionID *uuid.UUID, actor, outcome, detail string) error {
	return s.repo.Append(ctx, &AuditEvent{
		Kind:           KindAuthorization,
		OrderID:        &orderID,
		PrescriptionID: prescriptionID,
		Actor:          actor,
		Action:         "authorize_prescription",
		Outcome:        outcome,
		Detail:         detail,
	})
}

// RecordCompliance stores the full flag set of one evaluation. Override is
// true when a blocking result was overridden by the caller.
func (s *Service) RecordCompliance(ctx context.Context, orderID uuid.UUID, actor string, flags []compliance.Flag, action string, override bool) error {
	outcome := OutcomeSuccess
	if action == string(compliance.ActionBlock) && !override {
		outcome = OutcomeFailure
	}
	return s.repo.Append(ctx, &AuditEvent{
		Kind:     KindCompliance,
		OrderID:  &orderID,
		Actor:    actor,
		Action:   "evaluate_compliance",
		Outcome:  outcome,
		Detail:   fmt.Sprintf("recommendation: %s", action),
		Flags:    flags,
		Override: override,
	})
}

// RecordAccess satisfies middleware.AccessRecorder so API access lands in
// the same stream.
func (s *Service) RecordAccess(entry middleware.AccessEntry) error {
	ctx := context.Background()
	outcome := OutcomeSuccess
	if entry.StatusCode >= 400 {
		outcome = OutcomeFailure
	}
	e := &AuditEvent{
		Kind:      KindAccess,
		Actor:     entry.ActorID,
		Action:    entry.Action,
		Outcome:   outcome,
		Detail:    fmt.Sprintf("%s %s -> %d", entry.Method, entry.Path, entry.StatusCode),
		RequestID: entry.RequestID,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
	}
	if entry.Resource == "orders" {
		if id, err := uuid.Parse(entry.ResourceID); err == nil {
			e.OrderID = &id
		}
	}
	if entry.Resource == "prescriptions" {
		if id, err := uuid.Parse(entry.ResourceID); err == nil {
			e.PrescriptionID = &id
		}
	}
	return s.repo.Append(ctx, e)
}
