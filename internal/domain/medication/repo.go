package medication

import (
	"context"

	"github.com/google/uuid"
)

// PrescriptionRepository persists prescription runs and their findings.
type PrescriptionRepository interface {
	Insert(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}

// OverrideRepository persists accepted-with-monitoring interaction
// overrides, unique per (patient, normalized drug pair).
type OverrideRepository interface {
	Insert(ctx context.Context, o *InteractionOverride) error
	GetByID(ctx context.Context, id uuid.UUID) (*InteractionOverride, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*InteractionOverride, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
