package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo   Repository
	engine *Engine
}

func NewService(repo Repository, engine *Engine) *Service {
	return &Service{repo: repo, engine: engine}
}

// Engine exposes the scorer registry for pipeline wiring.
func (s *Service) Engine() *Engine { return s.engine }

// Record materializes an assessment as an immutable score row. Called by
// the pipeline, which is the only writer of risk scores.
func (s *Service) Record(ctx context.Context, patientID uuid.UUID, t Type, a Assessment) (*Score, error) {
	score := &Score{
		PatientID:       patientID,
		RiskType:        t,
		Score:           a.Score,
		RiskLevel:       a.RiskLevel,
		Drivers:         a.Drivers,
		Recommendations: a.Recommendations,
		Method:          methodHeuristicV1,
		Confidence:      a.Confidence,
		ComputedAt:      time.Now().UTC(),
	}
	if err := s.repo.Append(ctx, score); err != nil {
		return nil, fmt.Errorf("appending %s score: %w", t, err)
	}
	return score, nil
}

// Current returns the most recent score per risk type.
func (s *Service) Current(ctx context.Context, patientID uuid.UUID) ([]*Score, error) {
	return s.repo.Current(ctx, patientID)
}

// History returns the score trail for one risk type, newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, t Type, limit, offset int) ([]*Score, int, error) {
	if !s.engine.Supported(t) {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return s.repo.History(ctx, patientID, t, limit, offset)
}
