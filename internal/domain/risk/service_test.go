package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carepulse/carepulse/internal/domain/vitals"
)

type mockRepo struct {
	scores []*Score
}

func (m *mockRepo) Append(_ context.Context, s *Score) error {
	s.ID = uuid.New()
	m.scores = append(m.scores, s)
	return nil
}
func (m *mockRepo) Current(_ context.Context, patientID uuid.UUID) ([]*Score, error) {
	latest := make(map[Type]*Score)
	for _, s := range m.scores {
		if s.PatientID != patientID {
			continue
		}
		if cur, ok := latest[s.RiskType]; !ok || s.ComputedAt.After(cur.ComputedAt) {
			latest[s.RiskType] = s
		}
	}
	var out []*Score
	for _, s := range latest {
		out = append(out, s)
	}
	return out, nil
}
func (m *mockRepo) History(_ context.Context, patientID uuid.UUID, t Type, limit, offset int) ([]*Score, int, error) {
	var out []*Score
	for _, s := range m.scores {
		if s.PatientID == patientID && s.RiskType == t {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func TestRecordStampsMethodAndTime(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, NewEngine(DefaultConfig()))

	patientID := uuid.New()
	a, err := svc.Engine().Compute(TypeHypertension, []*vitals.Sample{bpSample(160, 100)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	score, err := svc.Record(context.Background(), patientID, TypeHypertension, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Method != "heuristic-v1" {
		t.Errorf("expected method heuristic-v1, got %s", score.Method)
	}
	if score.ComputedAt.IsZero() || time.Since(score.ComputedAt) > time.Minute {
		t.Errorf("unexpected computed_at: %v", score.ComputedAt)
	}
	if len(repo.scores) != 1 {
		t.Fatalf("expected 1 stored score, got %d", len(repo.scores))
	}
}

func TestCurrentReturnsLatestPerType(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, NewEngine(DefaultConfig()))
	patientID := uuid.New()

	old := &Score{PatientID: patientID, RiskType: TypeHypertension, Score: 10, ComputedAt: time.Now().Add(-time.Hour)}
	newer := &Score{PatientID: patientID, RiskType: TypeHypertension, Score: 60, ComputedAt: time.Now()}
	diabetes := &Score{PatientID: patientID, RiskType: TypeDiabetes, Score: 45, ComputedAt: time.Now()}
	for _, s := range []*Score{old, newer, diabetes} {
		if err := repo.Append(context.Background(), s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	current, err := svc.Current(context.Background(), patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(current) != 2 {
		t.Fatalf("expected one score per type, got %d", len(current))
	}
	for _, s := range current {
		if s.RiskType == TypeHypertension && s.Score != 60 {
			t.Errorf("expected latest hypertension score 60, got %v", s.Score)
		}
	}
}

func TestHistoryRejectsUnsupportedType(t *testing.T) {
	svc := NewService(&mockRepo{}, NewEngine(DefaultConfig()))

	_, _, err := svc.History(context.Background(), uuid.New(), TypeHeartDisease, 50, 0)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}
