package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/fulfillment/internal/domain/catalog"
	"github.com/ehr/fulfillment/internal/domain/compliance"
	"github.com/ehr/fulfillment/internal/domain/prescription"
	"github.com/ehr/fulfillment/internal/domain/provider"
	"github.com/ehr/fulfillment/internal/domain/workflow"
	"github.com/ehr/fulfillment/internal/platform/db"
	"github.com/ehr/fulfillment/internal/platform/notification"
)

// AuditRecorder receives every authorization, compliance, and transition
// decision. Recording is best-effort; failures are logged, never surfaced.
type AuditRecorder interface {
	RecordTransition(ctx context.Context, orderID uuid.UUID, from, to, actor, notes string) error
	RecordAuthorization(ctx context.Context, orderID uuid.UUID, prescriptionID *uuid.UUID, actor, outcome, detail string) error
	RecordCompliance(ctx context.Context, orderID uuid.UUID, actor string, flags []compliance.Flag, action string, override bool) error
}

// EventPublisher fans committed transitions out to downstream collaborators.
type EventPublisher interface {
	Publish(evt notification.TransitionEvent)
}

type Deps struct {
	Orders        Repository
	Products      catalog.ProductRepository
	Validator     *provider.Validator
	Evaluator     *compliance.Evaluator
	Profiles      compliance.ProfileRepository
	Prescriptions *prescription.Service
	Audit         AuditRecorder
	Gateway       EventPublisher
	Pool          *pgxpool.Pool
	Logger        zerolog.Logger

	Retries             int
	PharmacyReceiveWait time.Duration
	PharmacyFillWait    time.Duration
}

type Service struct {
	orders        Repository
	products      catalog.ProductRepository
	validator     *provider.Validator
	evaluator     *compliance.Evaluator
	profiles      compliance.ProfileRepository
	prescriptions *prescription.Service
	audit         AuditRecorder
	gateway       EventPublisher
	runTx         func(ctx context.Context, fn func(ctx context.Context) error) error
	logger        zerolog.Logger

	retries     int
	receiveWait time.Duration
	fillWait    time.Duration

	timers *autoAdvancer
}

func NewService(d Deps) *Service {
	if d.Retries < 1 {
		d.Retries = 3
	}
	s := &Service{
		orders:        d.Orders,
		products:      d.Products,
		validator:     d.Validator,
		evaluator:     d.Evaluator,
		profiles:      d.Profiles,
		prescriptions: d.Prescriptions,
		audit:         d.Audit,
		gateway:       d.Gateway,
		logger:        d.Logger,
		retries:       d.Retries,
		receiveWait:   d.PharmacyReceiveWait,
		fillWait:      d.PharmacyFillWait,
	}
	if d.Pool != nil {
		pool := d.Pool
		s.runTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.RunInTx(ctx, pool, fn)
		}
	} else {
		s.runTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}
	}
	s.timers = newAutoAdvancer(d.Logger, s.timerAdvance)
	return s
}

// CreateOrder starts a new order on the workflow path for the product's
// classification.
func (s *Service) CreateOrder(ctx context.Context, patientID, productID uuid.UUID, triggeredBy string) (*Order, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	path, err := workflow.PathFor(workflow.Classification(product.Classification))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &Order{
		PatientID:        patientID,
		ProductID:        productID,
		Classification:   workflow.Classification(product.Classification),
		Status:           path[0],
		WorkflowPath:     path,
		CurrentStepIndex: 0,
		StatusHistory: []HistoryEntry{{
			Status:      path[0],
			Timestamp:   now,
			TriggeredBy: triggeredBy,
		}},
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.recordTransition(ctx, o.ID, "", path[0], triggeredBy, "order created")
	return o, nil
}

// AdvanceOrder moves an order to the next element of its workflow path.
func (s *Service) AdvanceOrder(ctx context.Context, orderID uuid.UUID, triggeredBy, notes string) (*Order, error) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if o.Terminal() {
			return ErrAlreadyTerminal
		}
		next := o.WorkflowPath[o.CurrentStepIndex+1]
		o.step(next, triggeredBy, notes, time.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, o, triggeredBy, 1)

	// Payment capture confirms synchronously; the order keeps moving.
	if o.Status == workflow.StatusPaymentCompleted {
		return s.AdvanceOrder(ctx, orderID, "system", "payment confirmed")
	}
	return o, nil
}

// CancelOrder moves an order to cancelled from any non-terminal state. The
// step index stays where it was; any pending auto-advance timer is dropped.
func (s *Service) CancelOrder(ctx context.Context, orderID uuid.UUID, triggeredBy, notes string) (*Order, error) {
	return s.terminate(ctx, orderID, workflow.StatusCancelled, triggeredBy, notes)
}

// RefundOrder moves an order to refunded from any non-terminal state.
func (s *Service) RefundOrder(ctx context.Context, orderID uuid.UUID, triggeredBy, notes string) (*Order, error) {
	return s.terminate(ctx, orderID, workflow.StatusRefunded, triggeredBy, notes)
}

func (s *Service) terminate(ctx context.Context, orderID uuid.UUID, target workflow.Status, triggeredBy, notes string) (*Order, error) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if o.Terminal() {
			return ErrAlreadyTerminal
		}
		o.step(target, triggeredBy, notes, time.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, o, triggeredBy, 1)
	return o, nil
}

// AuthorizePrescription runs the provider authorization check and the
// compliance evaluation, issues a signed prescription, links it to the
// order, and advances the order past prescription_created. A failure at any
// check leaves the order untouched.
func (s *Service) AuthorizePrescription(ctx context.Context, orderID, providerID uuid.UUID, req prescription.Request, override bool, triggeredBy string) (*prescription.Prescription, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	if o.Classification != workflow.ClassificationPrescription {
		return nil, ErrNotPrescriptionOrder
	}
	if o.Status != workflow.StatusProviderReview && o.Status != workflow.StatusProviderApproved {
		return nil, ErrNotAwaitingApproval
	}

	product, err := s.products.GetByID(ctx, o.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}

	if _, err := s.validator.Authorize(ctx, providerID, product); err != nil {
		s.recordAuthorization(ctx, o.ID, nil, triggeredBy, "failure", err.Error())
		return nil, err
	}

	profile, err := s.profiles.GetByPatient(ctx, o.PatientID)
	if err != nil {
		profile = nil
	}
	eval := s.evaluator.Evaluate(ctx, profile, compliance.Medication{Name: req.MedicationName, Dosage: req.Dosage})
	s.recordCompliance(ctx, o.ID, triggeredBy, eval.Flags, string(eval.RecommendationAction), override)

	if eval.RecommendationAction == compliance.ActionBlock && !override {
		s.recordAuthorization(ctx, o.ID, nil, triggeredBy, "failure", "blocked by compliance evaluation")
		return nil, &ComplianceBlockedError{Flags: eval.Flags}
	}

	// Prescription first, then the link. An orphan left behind by a failed
	// link is retired, not deleted.
	p, err := s.prescriptions.Issue(ctx, o.ID, providerID, o.PatientID, req, eval.Flags)
	if err != nil {
		s.recordAuthorization(ctx, o.ID, nil, triggeredBy, "failure", err.Error())
		return nil, err
	}

	var linked *Order
	var steps int
	err = s.runTx(ctx, func(ctx context.Context) error {
		var txErr error
		linked, txErr = s.mutate(ctx, orderID, func(o *Order) error {
			if o.Status != workflow.StatusProviderReview && o.Status != workflow.StatusProviderApproved {
				return ErrNotAwaitingApproval
			}
			o.PrescriptionID = &p.ID
			now := time.Now().UTC()
			steps = 0
			for o.Status != workflow.StatusPrescriptionSent {
				o.step(o.WorkflowPath[o.CurrentStepIndex+1], triggeredBy, "", now)
				steps++
			}
			return nil
		})
		return txErr
	})
	if err != nil {
		if inactiveErr := s.prescriptions.MarkInactive(ctx, p.ID); inactiveErr != nil {
			s.logger.Error().Err(inactiveErr).
				Str("prescription_id", p.ID.String()).
				Msg("failed to retire orphaned prescription")
		}
		s.recordAuthorization(ctx, o.ID, &p.ID, triggeredBy, "failure", fmt.Sprintf("link failed: %v", err))
		return nil, err
	}

	s.recordAuthorization(ctx, linked.ID, &p.ID, triggeredBy, "success", "prescription issued")
	s.afterTransition(ctx, linked, triggeredBy, steps)
	return p, nil
}

// GetOrder returns the raw order record.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context, params map[string]string, limit, offset int) ([]*Order, int, error) {
	return s.orders.List(ctx, params, limit, offset)
}

// GetOrderSnapshot builds the derived read-model view of an order.
func (s *Service) GetOrderSnapshot(ctx context.Context, orderID uuid.UUID) (*Snapshot, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(o, time.Now().UTC()), nil
}

func (s *Service) snapshot(o *Order, now time.Time) *Snapshot {
	snap := &Snapshot{
		Order:           o,
		ProgressPercent: progressPercent(o),
		StatusCategory:  workflow.CategoryFor(o.Status),
	}

	if n := len(o.StatusHistory); n > 0 {
		snap.TimeInCurrentStatus = now.Sub(o.StatusHistory[n-1].Timestamp)
	}

	if !o.Terminal() {
		est := workflow.EstimateCompletion(o.WorkflowPath, o.CurrentStepIndex, now)
		snap.EstimatedCompletion = &est
		snap.NextPossibleActions = append(snap.NextPossibleActions, "advance", "cancel", "refund")
		if o.Classification == workflow.ClassificationPrescription &&
			(o.Status == workflow.StatusProviderReview || o.Status == workflow.StatusProviderApproved) {
			snap.NextPossibleActions = append(snap.NextPossibleActions, "authorize_prescription")
		}
		if o.PrescriptionID != nil && o.Status == workflow.StatusPrescriptionSent {
			snap.NextPossibleActions = append(snap.NextPossibleActions, "route_to_pharmacy")
		}
	} else {
		snap.NextPossibleActions = []string{}
	}
	return snap
}

func progressPercent(o *Order) int {
	n := len(o.WorkflowPath)
	if n == 0 {
		return 0
	}
	return int(float64(o.CurrentStepIndex+1)/float64(n)*100 + 0.5)
}

// RestoreTimers re-arms auto-advance timers after a restart for orders
// parked in a timed status.
func (s *Service) RestoreTimers(ctx context.Context) error {
	orders, err := s.orders.ListInStatus(ctx, []workflow.Status{
		workflow.StatusPrescriptionSent,
		workflow.StatusPharmacyReceived,
	})
	if err != nil {
		return err
	}
	for _, o := range orders {
		epoch := s.timers.bump(o.ID)
		s.scheduleFor(o, epoch)
	}
	return nil
}

// Shutdown drops all pending timers.
func (s *Service) Shutdown() {
	s.timers.stopAll()
}

// step applies one status change in memory. Tracking timestamps keyed off
// the entered status happen here so retries recompute them consistently.
func (o *Order) step(next workflow.Status, triggeredBy, notes string, now time.Time) {
	prev := o.Status
	// Terminal overrides freeze the step index; path steps, completed
	// included, move it forward.
	if next != workflow.StatusCancelled && next != workflow.StatusRefunded {
		o.CurrentStepIndex++
	}
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		Status:         next,
		Timestamp:      now,
		TriggeredBy:    triggeredBy,
		Notes:          notes,
		PreviousStatus: &prev,
	})
	o.Status = next
	switch next {
	case workflow.StatusPrescriptionSent:
		t := now
		o.PrescriptionSentAt = &t
	case workflow.StatusCompleted, workflow.StatusCancelled, workflow.StatusRefunded:
		t := now
		o.CompletedAt = &t
	}
}

// mutate is the serialized read-modify-write cycle every transition goes
// through. A version conflict re-reads the record and retries the whole
// application up to the configured bound.
func (s *Service) mutate(ctx context.Context, orderID uuid.UUID, apply func(o *Order) error) (*Order, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := apply(o); err != nil {
			return nil, err
		}
		if err := s.orders.Update(ctx, o); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return o, nil
	}
	return nil, lastErr
}

// afterTransition runs a committed mutation's side effects: timer
// rescheduling, audit, and downstream fanout. steps is the number of history
// entries the mutation appended; each one gets its own audit record and
// event. None of these can undo the transition.
func (s *Service) afterTransition(ctx context.Context, o *Order, triggeredBy string, steps int) {
	if o.Terminal() {
		// Terminal orders never auto-advance again; drop the timer state
		// entirely instead of leaving an epoch entry behind.
		s.timers.stop(o.ID)
	} else {
		epoch := s.timers.bump(o.ID)
		s.scheduleFor(o, epoch)
	}

	n := len(o.StatusHistory)
	if steps < 1 {
		steps = 1
	}
	if steps > n {
		steps = n
	}
	for _, entry := range o.StatusHistory[n-steps:] {
		var from workflow.Status
		if entry.PreviousStatus != nil {
			from = *entry.PreviousStatus
		}
		s.recordTransition(ctx, o.ID, from, entry.Status, triggeredBy, entry.Notes)
		if s.gateway != nil {
			s.gateway.Publish(s.transitionEvent(ctx, o, from, entry))
		}
	}
}

// transitionEvent assembles the outbound event for one history entry. The
// prescriber and medication come from the linked prescription when one
// exists, falling back to the catalog product for OTC orders.
func (s *Service) transitionEvent(ctx context.Context, o *Order, from workflow.Status, entry HistoryEntry) notification.TransitionEvent {
	evt := notification.TransitionEvent{
		OrderID:        o.ID.String(),
		PatientID:      o.PatientID.String(),
		PreviousStatus: string(from),
		NewStatus:      string(entry.Status),
		Timestamp:      entry.Timestamp,
		Note:           entry.Notes,
	}
	if o.PrescriptionID != nil {
		if p, err := s.prescriptions.Get(ctx, *o.PrescriptionID); err == nil {
			evt.ProviderID = p.ProviderID.String()
			evt.Medication = p.MedicationName
			if p.Dosage != "" {
				evt.Medication = p.MedicationName + " " + p.Dosage
			}
		}
	}
	if evt.Medication == "" {
		if product, err := s.products.GetByID(ctx, o.ProductID); err == nil {
			evt.Medication = product.Name
		}
	}
	return evt
}

func (s *Service) scheduleFor(o *Order, epoch uint64) {
	switch o.Status {
	case workflow.StatusPrescriptionSent:
		s.timers.schedule(o.ID, epoch, o.Status, s.receiveWait)
	case workflow.StatusPharmacyReceived:
		s.timers.schedule(o.ID, epoch, o.Status, s.fillWait)
	}
}

var errTimerSuperseded = errors.New("auto-advance superseded by another transition")

// timerAdvance is the autoAdvancer callback. The epoch check filters most
// stale fires, but the stored status is the authority: the originating-state
// guard runs inside the CAS loop so every retry re-verifies it against the
// freshly read record. A manual transition landing at any point makes the
// timer a no-op instead of pushing the order a step further.
func (s *Service) timerAdvance(ctx context.Context, orderID uuid.UUID, from workflow.Status) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if o.Status != from {
			return errTimerSuperseded
		}
		o.step(o.WorkflowPath[o.CurrentStepIndex+1], "system", "auto-advanced", time.Now().UTC())
		return nil
	})
	if err != nil {
		if !errors.Is(err, errTimerSuperseded) {
			s.logger.Warn().Err(err).
				Str("order_id", orderID.String()).
				Str("from", string(from)).
				Msg("auto-advance failed")
		}
		return
	}
	s.afterTransition(ctx, o, "system", 1)
}

func (s *Service) recordTransition(ctx context.Context, orderID uuid.UUID, from workflow.Status, to workflow.Status, actor, notes string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordTransition(ctx, orderID, string(from), string(to), actor, notes); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("audit transition record failed")
	}
}

func (s *Service) recordAuthorization(ctx context.Context, orderID uuid.UUID, prescriptionID *uuid.UUID, actor, outcome, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAuthorization(ctx, orderID, prescriptionID, actor, outcome, detail); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("audit authorization record failed")
	}
}

func (s *Service) recordCompliance(ctx context.Context, orderID uuid.UUID, actor string, flags []compliance.Flag, action string, override bool) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordCompliance(ctx, orderID, actor, flags, action, override); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("audit compliance record failed")
	}
}
