package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehr/fulfillment/internal/domain/compliance"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrAlreadyTerminal        = errors.New("order is in a terminal state")
	ErrConcurrentModification = errors.New("order was modified concurrently")
	ErrNotPrescriptionOrder   = errors.New("order is not prescription-classified")
	ErrNotAwaitingApproval    = errors.New("order is not awaiting provider review")
)

// ComplianceBlockedError is returned when the evaluator blocks authorization
// and no override was supplied. Flags carry the full evaluation output for
// the reviewing clinician.
type ComplianceBlockedError struct {
	Flags []compliance.Flag
}

func (e *ComplianceBlockedError) Error() string {
	var titles []string
	for _, f := range e.Flags {
		if f.Severity == compliance.SeverityCritical {
			titles = append(titles, f.Title)
		}
	}
	if len(titles) == 0 {
		return "authorization blocked by compliance evaluation"
	}
	return fmt.Sprintf("authorization blocked by compliance evaluation: %s", strings.Join(titles, "; "))
}
