// Package workflow declares the order workflow definitions: the ordered state
// paths per product classification, expected dwell times, and the display
// category for every state.
package workflow

import (
	"errors"
	"time"
)

// Status is one state in an order's workflow path.
type Status string

const (
	// Prescription path.
	StatusConsultationPending Status = "consultation_pending"
	StatusIntakeCompleted     Status = "intake_completed"
	StatusProviderReview      Status = "provider_review"
	StatusProviderApproved    Status = "provider_approved"
	StatusPrescriptionCreated Status = "prescription_created"
	StatusPrescriptionSent    Status = "prescription_sent"
	StatusPharmacyReceived    Status = "pharmacy_received"
	StatusPharmacyFilling     Status = "pharmacy_filling"
	StatusPharmacyReady       Status = "pharmacy_ready"
	StatusPharmacyDispensed   Status = "pharmacy_dispensed"

	// OTC path.
	StatusPaymentPending   Status = "payment_pending"
	StatusPaymentCompleted Status = "payment_completed"
	StatusOrderProcessing  Status = "order_processing"
	StatusOrderShipped     Status = "order_shipped"
	StatusOrderDelivered   Status = "order_delivered"

	// Shared terminal and override states.
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// AllStatuses lists every declared status. Tests use it to verify the
// category and dwell tables stay exhaustive when states are added.
var AllStatuses = []Status{
	StatusConsultationPending,
	StatusIntakeCompleted,
	StatusProviderReview,
	StatusProviderApproved,
	StatusPrescriptionCreated,
	StatusPrescriptionSent,
	StatusPharmacyReceived,
	StatusPharmacyFilling,
	StatusPharmacyReady,
	StatusPharmacyDispensed,
	StatusPaymentPending,
	StatusPaymentCompleted,
	StatusOrderProcessing,
	StatusOrderShipped,
	StatusOrderDelivered,
	StatusCompleted,
	StatusCancelled,
	StatusRefunded,
}

// Classification determines which workflow path an order follows.
type Classification string

const (
	ClassificationPrescription Classification = "prescription"
	ClassificationOTC          Classification = "otc"
)

// ErrInvalidClassification is returned when no workflow path is defined for a
// classification.
var ErrInvalidClassification = errors.New("invalid product classification")

var paths = map[Classification][]Status{
	ClassificationPrescription: {
		StatusConsultationPending,
		StatusIntakeCompleted,
		StatusProviderReview,
		StatusProviderApproved,
		StatusPrescriptionCreated,
		StatusPrescriptionSent,
		StatusPharmacyReceived,
		StatusPharmacyFilling,
		StatusPharmacyReady,
		StatusPharmacyDispensed,
		StatusCompleted,
	},
	ClassificationOTC: {
		StatusPaymentPending,
		StatusPaymentCompleted,
		StatusOrderProcessing,
		StatusOrderShipped,
		StatusOrderDelivered,
		StatusCompleted,
	},
}

// PathFor returns a copy of the workflow path for the given classification.
func PathFor(c Classification) ([]Status, error) {
	path, ok := paths[c]
	if !ok {
		return nil, ErrInvalidClassification
	}
	out := make([]Status, len(path))
	copy(out, path)
	return out, nil
}

// IsTerminal reports whether a status ends the workflow.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

// Category groups statuses for display and reporting. It plays no part in
// transition logic.
type Category string

const (
	CategoryPending    Category = "pending"
	CategoryInProgress Category = "in_progress"
	CategoryReady      Category = "ready"
	CategoryCompleted  Category = "completed"
	CategoryCancelled  Category = "cancelled"
)

var categories = map[Status]Category{
	StatusConsultationPending: CategoryPending,
	StatusPaymentPending:      CategoryPending,
	StatusIntakeCompleted:     CategoryInProgress,
	StatusProviderReview:      CategoryInProgress,
	StatusProviderApproved:    CategoryInProgress,
	StatusPrescriptionCreated: CategoryInProgress,
	StatusPrescriptionSent:    CategoryInProgress,
	StatusPharmacyReceived:    CategoryInProgress,
	StatusPharmacyFilling:     CategoryInProgress,
	StatusPharmacyReady:       CategoryReady,
	StatusPharmacyDispensed:   CategoryCompleted,
	StatusPaymentCompleted:    CategoryInProgress,
	StatusOrderProcessing:     CategoryInProgress,
	StatusOrderShipped:        CategoryInProgress,
	StatusOrderDelivered:      CategoryCompleted,
	StatusCompleted:           CategoryCompleted,
	StatusCancelled:           CategoryCancelled,
	StatusRefunded:            CategoryCancelled,
}

// CategoryFor maps a status to its display category. Unknown statuses fall
// back to in_progress.
func CategoryFor(s Status) Category {
	if c, ok := categories[s]; ok {
		return c
	}
	return CategoryInProgress
}

// DefaultDwell is assumed for any state absent from the dwell table.
const DefaultDwell = time.Hour

var dwellHours = map[Status]time.Duration{
	StatusConsultationPending: 24 * time.Hour,
	StatusIntakeCompleted:     2 * time.Hour,
	StatusProviderReview:      12 * time.Hour,
	StatusProviderApproved:    1 * time.Hour,
	StatusPrescriptionCreated: 1 * time.Hour,
	StatusPrescriptionSent:    1 * time.Hour,
	StatusPharmacyReceived:    2 * time.Hour,
	StatusPharmacyFilling:     4 * time.Hour,
	StatusPharmacyReady:       24 * time.Hour,
	StatusPharmacyDispensed:   1 * time.Hour,
	StatusPaymentPending:      12 * time.Hour,
	StatusPaymentCompleted:    1 * time.Hour,
	StatusOrderProcessing:     24 * time.Hour,
	StatusOrderShipped:        72 * time.Hour,
	StatusOrderDelivered:      1 * time.Hour,
}

// DwellFor returns the expected time an order spends in a state.
func DwellFor(s Status) time.Duration {
	if d, ok := dwellHours[s]; ok {
		return d
	}
	return DefaultDwell
}

// EstimateCompletion sums the remaining dwell times from currentStepIndex to
// the end of the path and adds them to now.
func EstimateCompletion(path []Status, currentStepIndex int, now time.Time) time.Time {
	var remaining time.Duration
	for i := currentStepIndex; i < len(path); i++ {
		remaining += DwellFor(path[i])
	}
	return now.Add(remaining)
}
