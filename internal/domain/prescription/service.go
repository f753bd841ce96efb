package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fulfillment/internal/domain/compliance"
	"github.com/ehr/fulfillment/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("prescription not found")
	ErrNotActive     = errors.New("prescription is not active")
	ErrAlreadyRouted = errors.New("prescription already routed to a different pharmacy")
	ErrEmptyPharmacy = errors.New("pharmacy id is required")
)

type Service struct {
	prescriptions Repository
	routings      RoutingRepository
	signer        *Signer
	runTx         func(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewService constructs the prescription service. pool may be nil in tests;
// multi-write operations then run without a surrounding transaction.
func NewService(prescriptions Repository, routings RoutingRepository, signer *Signer, pool *pgxpool.Pool) *Service {
	s := &Service{prescriptions: prescriptions, routings: routings, signer: signer}
	if pool != nil {
		s.runTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.RunInTx(ctx, pool, fn)
		}
	} else {
		s.runTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}
	}
	return s
}

// Issue creates a signed prescription for an order. The flag set passed in
// is stored as-is and never recomputed.
func (s *Service) Issue(ctx context.Context, orderID, providerID, patientID uuid.UUID, req Request, flags []compliance.Flag) (*Prescription, error) {
	if req.MedicationName == "" {
		return nil, fmt.Errorf("medication name is required")
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if req.Refills < 0 || req.DaysSupply < 0 {
		return nil, fmt.Errorf("refills and days supply must not be negative")
	}
	if flags == nil {
		flags = []compliance.Flag{}
	}

	p := &Prescription{
		ID:              uuid.New(),
		OrderID:         orderID,
		ProviderID:      providerID,
		PatientID:       patientID,
		MedicationName:  req.MedicationName,
		Dosage:          req.Dosage,
		Quantity:        req.Quantity,
		Refills:         req.Refills,
		DaysSupply:      req.DaysSupply,
		Status:          StatusActive,
		ComplianceFlags: flags,
	}
	token, err := s.signer.Sign(p.ID, providerID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("sign prescription: %w", err)
	}
	p.SignatureToken = token

	if err := s.prescriptions.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}
	return p, nil
}

// RouteToPharmacy sends an active prescription to a pharmacy. Routing the
// same prescription to the same pharmacy again is a no-op; routing to a
// different pharmacy after the first is rejected.
func (s *Service) RouteToPharmacy(ctx context.Context, prescriptionID uuid.UUID, pharmacyID, actor string) (*Prescription, error) {
	if pharmacyID == "" {
		return nil, ErrEmptyPharmacy
	}
	p, err := s.prescriptions.GetByID(ctx, prescriptionID)
	if err != nil {
		return nil, ErrNotFound
	}
	switch p.Status {
	case StatusRoutedToPharmacy:
		if p.PharmacyID != nil && *p.PharmacyID == pharmacyID {
			return p, nil
		}
		return nil, ErrAlreadyRouted
	case StatusActive:
	default:
		return nil, ErrNotActive
	}

	// The status flip and the routing row commit together; a failure on
	// either side rolls both back.
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.prescriptions.UpdateStatus(ctx, p.ID, StatusRoutedToPharmacy, &pharmacyID); err != nil {
			return fmt.Errorf("route prescription: %w", err)
		}
		if err := s.routings.Create(ctx, &Routing{
			PrescriptionID: p.ID,
			PharmacyID:     pharmacyID,
			RoutedBy:       actor,
		}); err != nil {
			return fmt.Errorf("record routing: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.Status = StatusRoutedToPharmacy
	p.PharmacyID = &pharmacyID
	return p, nil
}

// MarkInactive retires a prescription whose order linkage failed. The row is
// kept for the audit trail.
func (s *Service) MarkInactive(ctx context.Context, prescriptionID uuid.UUID) error {
	return s.prescriptions.UpdateStatus(ctx, prescriptionID, StatusInactive, nil)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.List(ctx, limit, offset)
}

func (s *Service) Routings(ctx context.Context, prescriptionID uuid.UUID) ([]*Routing, error) {
	return s.routings.ListByPrescription(ctx, prescriptionID)
}

// VerifySignature re-checks a prescription's signature token against its
// stored provider binding.
func (s *Service) VerifySignature(ctx context.Context, id uuid.UUID) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	boundID, boundProvider, err := s.signer.Verify(p.SignatureToken)
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	if boundID != p.ID || boundProvider != p.ProviderID {
		return fmt.Errorf("signature does not match prescription")
	}
	return nil
}
