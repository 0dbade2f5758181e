package vitals

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, s *Sample) error
	GetByID(ctx context.Context, id uuid.UUID) (*Sample, error)
	// Window returns samples recorded in [from, to], oldest first.
	Window(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Sample, error)
	// ListByPatient returns samples newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Sample, int, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*Sample, error)
}
