package compliance

import (
	"context"

	"github.com/google/uuid"
)

// ProfileRepository stores patient safety profiles.
type ProfileRepository interface {
	Upsert(ctx context.Context, p *SafetyProfile) error
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*SafetyProfile, error)
}

// InteractionSource is the rule source consulted by the evaluator. It is
// intentionally narrow so tests can substitute a failing or canned source.
type InteractionSource interface {
	FindForMedication(ctx context.Context, medicationName string) ([]*Interaction, error)
}

// InteractionRepository manages the interaction rule set itself.
type InteractionRepository interface {
	InteractionSource
	Create(ctx context.Context, i *Interaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Interaction, error)
	List(ctx context.Context, limit, offset int) ([]*Interaction, int, error)
}
