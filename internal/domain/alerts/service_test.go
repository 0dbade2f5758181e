package alerts

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/carepulse/carepulse/internal/platform/notify"
)

type mockAlertRepo struct {
	alerts    map[uuid.UUID]*Alert
	insertErr error // consumed by the next Insert
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{alerts: map[uuid.UUID]*Alert{}}
}

func (m *mockAlertRepo) Insert(_ context.Context, a *Alert) error {
	if m.insertErr != nil {
		err := m.insertErr
		m.insertErr = nil
		return err
	}
	a.ID = uuid.New()
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *mockAlertRepo) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	a, ok := m.alerts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockAlertRepo) FindOpenForUpdate(_ context.Context, patientID uuid.UUID, typ Type, rootCause string) (*Alert, error) {
	for _, a := range m.alerts {
		if a.PatientID == patientID && a.Type == typ && a.RootCause == rootCause && !a.Acknowledged {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockAlertRepo) Upgrade(_ context.Context, a *Alert) error {
	stored, ok := m.alerts[a.ID]
	if !ok || stored.Acknowledged {
		return pgx.ErrNoRows
	}
	stored.Severity = a.Severity
	stored.Title = a.Title
	stored.Message = a.Message
	stored.Recommendation = a.Recommendation
	stored.Metadata = a.Metadata
	stored.UpdatedAt = a.UpdatedAt
	return nil
}

func (m *mockAlertRepo) Acknowledge(_ context.Context, id, reviewerID uuid.UUID, at time.Time) (*Alert, error) {
	a, ok := m.alerts[id]
	if !ok || a.Acknowledged {
		return nil, pgx.ErrNoRows
	}
	a.Acknowledged = true
	a.AcknowledgedBy = &reviewerID
	a.AcknowledgedAt = &at
	a.UpdatedAt = at
	cp := *a
	return &cp, nil
}

func (m *mockAlertRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Alert, int, error) {
	var items []*Alert
	for _, a := range m.alerts {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Type != nil && a.Type != *f.Type {
			continue
		}
		if f.Severity != nil && a.Severity != *f.Severity {
			continue
		}
		if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
			continue
		}
		cp := *a
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	total := len(items)
	if offset >= len(items) {
		return nil, total, nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func (m *mockAlertRepo) CountOpen(context.Context) (int, error) {
	n := 0
	for _, a := range m.alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	events []notify.AlertEvent
}

func (p *recordingPublisher) PublishAlert(_ context.Context, ev notify.AlertEvent) {
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService(repo Repository, pub notify.Publisher) *Service {
	if pub == nil {
		pub = notify.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		publisher: pub,
		logger:    zerolog.Nop(),
		runInTx: func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	}
}

func anomalyCandidate(severity Severity, cause string) Candidate {
	return Candidate{
		Type:           TypeAnomaly,
		Severity:       severity,
		RootCause:      cause,
		Title:          "Tachycardia",
		Message:        "Heart Rate elevated: 130 BPM",
		Recommendation: "Monitor closely and consult healthcare provider",
		Metadata:       map[string]interface{}{"vital_type": cause, "value": 130.0},
	}
}

func TestRaise_CreatesAlert(t *testing.T) {
	repo := newMockAlertRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)
	patientID := uuid.New()

	a, outcome, err := svc.Raise(context.Background(), patientID, anomalyCandidate(SeveritySerious, "heart_rate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Errorf("expected created, got %s", outcome)
	}
	if a.ID == uuid.Nil || a.PatientID != patientID {
		t.Errorf("alert identity not set: %+v", a)
	}
	if a.Acknowledged {
		t.Error("new alerts start open")
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Error("timestamps must be stamped")
	}
	if len(pub.events) != 1 || pub.events[0].Action != "created" {
		t.Errorf("expected one created event, got %+v", pub.events)
	}
	if pub.events[0].AlertID != a.ID.String() || pub.events[0].Severity != "serious" {
		t.Errorf("event does not match alert: %+v", pub.events[0])
	}
}

func TestRaise_ReaffirmsOpenAlert(t *testing.T) {
	repo := newMockAlertRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)
	patientID := uuid.New()

	first, _, err := svc.Raise(context.Background(), patientID, anomalyCandidate(SeveritySerious, "heart_rate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, outcome, err := svc.Raise(context.Background(), patientID, anomalyCandidate(SeveritySerious, "heart_rate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeReaffirmed {
		t.Errorf("expected reaffirmed, got %s", outcome)
	}
	if second.ID != first.ID {
		t.Errorf("re-affirmation must keep the open alert, got %s and %s", first.ID, second.ID)
	}
	if len(repo.alerts) != 1 {
		t.Errorf("expected a single stored alert, got %d", len(repo.alerts))
	}
	if len(pub.events) != 1 {
		t.Errorf("re-affirmation must not publish, got %+v", pub.events)
	}
}

func TestRaise_UpgradesSeverity(t *testing.T) {
	repo := newMockAlertRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)
	patientID := uuid.New()

	mild := anomalyCandidate(SeverityMild, "heart_rate")
	mild.Title = "Heart Rate Anomaly"
	first, _, err := svc.Raise(context.Background(), patientID, mild)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	upgraded, outcome, err := svc.Raise(context.Background(), patientID, anomalyCandidate(SeveritySerious, "heart_rate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUpgraded {
		t.Errorf("expected upgraded, got %s", outcome)
	}
	if upgraded.ID != first.ID {
		t.Error("upgrade must keep the alert id")
	}
	if !upgraded.CreatedAt.Equal(first.CreatedAt) {
		t.Error("upgrade must keep created_at")
	}
	if upgraded.Severity != SeveritySerious || upgraded.Title != "Tachycardia" {
		t.Errorf("upgrade must refresh severity and content, got %+v", upgraded)
	}
	stored := repo.alerts[first.ID]
	if stored.Severity != SeveritySerious || stored.Title != "Tachycardia" {
		t.Errorf("upgrade not persisted: %+v", stored)
	}
	if len(pub.events) != 2 || pub.events[1].Action != "upgraded" {
		t.Errorf("expected an upgraded event, got %+v", pub.events)
	}

	// A weaker candidate afterwards re-affirms and never downgrades.
	after, outcome, err := svc.Raise(context.Background(), patientID, mild)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeReaffirmed || after.Severity != SeveritySerious {
		t.Errorf("expected reaffirmed serious alert, got %s %s", outcome, after.Severity)
	}
}

func TestRaise_AcknowledgedDoesNotBlockNewAlert(t *testing.T) {
	repo := newMockAlertRepo()
	svc := newTestService(repo, nil)
	patientID := uuid.New()
	reviewerID := uuid.New()

	first, _, err := svc.Raise(context.Background(), patientID, anomalyCandidate(SeveritySerious, "heart_rate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Acknowledge(context.Background(), first.ID, reviewerID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, outcome, err := svc.Raise(context.Background(), patientID, anomalyCandidate(SeveritySerious, "heart_rate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Errorf("expected a fresh alert after acknowledgement, got %s", outcome)
	}
	if second.ID == first.ID {
		t.Error("acknowledged alerts must not be reopened")
	}
	if len(repo.alerts) != 2 {
		t.Errorf("expected 2 stored alerts, got %d", len(repo.alerts))
	}
}

func TestRaise_RetriesOnUniqueViolation(t *testing.T) {
	repo := newMockAlertRepo()
	repo.insertErr = &pgconn.PgError{Code: "23505"}
	svc := newTestService(repo, nil)

	a, outcome, err := svc.Raise(context.Background(), uuid.New(), anomalyCandidate(SeveritySerious, "heart_rate"))
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if outcome != OutcomeCreated || a == nil {
		t.Errorf("expected created on retry, got %s", outcome)
	}
	if len(repo.alerts) != 1 {
		t.Errorf("expected a single stored alert, got %d", len(repo.alerts))
	}
}

func TestRaise_RejectsMalformedCandidates(t *testing.T) {
	svc := newTestService(newMockAlertRepo(), nil)
	patientID := uuid.New()

	noCause := anomalyCandidate(SeveritySerious, "")
	if _, _, err := svc.Raise(context.Background(), patientID, noCause); err == nil {
		t.Error("expected an error for a missing root cause")
	}
	badType := anomalyCandidate(SeveritySerious, "heart_rate")
	badType.Type = Type("page")
	if _, _, err := svc.Raise(context.Background(), patientID, badType); err == nil {
		t.Error("expected an error for an unknown type")
	}
	badSeverity := anomalyCandidate(Severity("loud"), "heart_rate")
	if _, _, err := svc.Raise(context.Background(), patientID, badSeverity); err == nil {
		t.Error("expected an error for an unknown severity")
	}
}

func TestAcknowledge(t *testing.T) {
	repo := newMockAlertRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)
	patientID := uuid.New()
	reviewerID := uuid.New()

	a, _, err := svc.Raise(context.Background(), patientID, anomalyCandidate(SeveritySerious, "heart_rate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acked, err := svc.Acknowledge(context.Background(), a.ID, reviewerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acked.Acknowledged {
		t.Error("alert must be closed")
	}
	if acked.AcknowledgedBy == nil || *acked.AcknowledgedBy != reviewerID {
		t.Errorf("reviewer not recorded: %+v", acked.AcknowledgedBy)
	}
	if acked.AcknowledgedAt == nil {
		t.Error("acknowledged_at not stamped")
	}
	if pub.events[len(pub.events)-1].Action != "acknowledged" {
		t.Errorf("expected an acknowledged event, got %+v", pub.events)
	}

	// Acknowledging is terminal.
	if _, err := svc.Acknowledge(context.Background(), a.ID, reviewerID); !errors.Is(err, ErrAlreadyAcknowledged) {
		t.Errorf("expected ErrAlreadyAcknowledged, got %v", err)
	}

	// Unknown ids surface as not found.
	if _, err := svc.Acknowledge(context.Background(), uuid.New(), reviewerID); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("expected pgx.ErrNoRows, got %v", err)
	}
}

func TestListFiltering(t *testing.T) {
	repo := newMockAlertRepo()
	svc := newTestService(repo, nil)
	patientA := uuid.New()
	patientB := uuid.New()

	if _, _, err := svc.Raise(context.Background(), patientA, anomalyCandidate(SeveritySerious, "heart_rate")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.Raise(context.Background(), patientB, anomalyCandidate(SeverityUrgent, "systolic")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total, err := svc.List(context.Background(), Filter{PatientID: &patientA}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].PatientID != patientA {
		t.Errorf("patient filter failed: total=%d items=%+v", total, items)
	}

	urgent := SeverityUrgent
	items, total, err = svc.List(context.Background(), Filter{Severity: &urgent}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].Severity != SeverityUrgent {
		t.Errorf("severity filter failed: total=%d items=%+v", total, items)
	}
}
