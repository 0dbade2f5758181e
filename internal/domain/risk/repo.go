package risk

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Append inserts a score row. Scores are immutable history.
	Append(ctx context.Context, score *Score) error
	// Current returns the latest score per risk type for a patient.
	Current(ctx context.Context, patientID uuid.UUID) ([]*Score, error)
	// History returns scores of one type, newest first.
	History(ctx context.Context, patientID uuid.UUID, riskType Type, limit, offset int) ([]*Score, int, error)
}
