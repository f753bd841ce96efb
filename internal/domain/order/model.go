package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/workflow"
)

// HistoryEntry is one element of an order's append-only status history.
type HistoryEntry struct {
	Status         workflow.Status  `json:"status"`
	Timestamp      time.Time        `json:"timestamp"`
	TriggeredBy    string           `json:"triggered_by"`
	Notes          string           `json:"notes,omitempty"`
	PreviousStatus *workflow.Status `json:"previous_status,omitempty"`
}

// Order maps to the fulfillment_order table. WorkflowPath is fixed at
// creation; StatusHistory only grows. Version backs the optimistic lock on
// every transition.
type Order struct {
	ID                 uuid.UUID               `db:"id" json:"id"`
	PatientID          uuid.UUID               `db:"patient_id" json:"patient_id"`
	ProductID          uuid.UUID               `db:"product_id" json:"product_id"`
	Classification     workflow.Classification `db:"classification" json:"classification"`
	Status             workflow.Status         `db:"status" json:"status"`
	WorkflowPath       []workflow.Status       `db:"workflow_path" json:"workflow_path"`
	CurrentStepIndex   int                     `db:"current_step_index" json:"current_step_index"`
	StatusHistory      []HistoryEntry          `db:"status_history" json:"status_history"`
	PrescriptionID     *uuid.UUID              `db:"prescription_id" json:"prescription_id,omitempty"`
	PrescriptionSentAt *time.Time              `db:"prescription_sent_at" json:"prescription_sent_at,omitempty"`
	CompletedAt        *time.Time              `db:"completed_at" json:"completed_at,omitempty"`
	Version            int                     `db:"version" json:"version"`
	CreatedAt          time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time               `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the order can no longer transition.
func (o *Order) Terminal() bool {
	return workflow.IsTerminal(o.Status)
}

// Snapshot is the read-model view of an order returned to clients.
type Snapshot struct {
	Order               *Order            `json:"order"`
	ProgressPercent     int               `json:"progress_percent"`
	StatusCategory      workflow.Category `json:"status_category"`
	NextPossibleActions []string          `json:"next_possible_actions"`
	TimeInCurrentStatus time.Duration     `json:"time_in_current_status_ns"`
	EstimatedCompletion *time.Time        `json:"estimated_completion,omitempty"`
}
