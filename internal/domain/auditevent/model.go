package auditevent

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fulfillment/internal/domain/compliance"
)

// Event kinds. The stream is append-only; events are never updated or
// deleted.
const (
	KindTransition    = "transition"
	KindAuthorization = "authorization"
	KindCompliance    = "compliance"
	KindAccess        = "access"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEvent maps to the audit_event table.
type AuditEvent struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	Kind           string            `db:"kind" json:"kind"`
	OrderID        *uuid.UUID        `db:"order_id" json:"order_id,omitempty"`
	PrescriptionID *uuid.UUID        `db:"prescription_id" json:"prescription_id,omitempty"`
	Actor          string            `db:"actor" json:"actor"`
	Action         string            `db:"action" json:"action"`
	Outcome        string            `db:"outcome" json:"outcome"`
	Detail         string            `db:"detail" json:"detail,omitempty"`
	FromStatus     *string           `db:"from_status" json:"from_status,omitempty"`
	ToStatus       *string           `db:"to_status" json:"to_status,omitempty"`
	Flags          []compliance.Flag `db:"flags" json:"flags,omitempty"`
	Override       bool              `db:"override" json:"override"`
	RequestID      string            `db:"request_id" json:"request_id,omitempty"`
	IPAddress      string            `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent      string            `db:"user_agent" json:"user_agent,omitempty"`
	Recorded       time.Time         `db:"recorded" json:"recorded"`
}
