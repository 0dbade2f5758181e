package medication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/carepulse/carepulse/internal/domain/vocab"
)

type fakeSnapshotSource struct{ snap *vocab.Snapshot }

func (f *fakeSnapshotSource) Snapshot() *vocab.Snapshot { return f.snap }

type mockPrescriptionRepo struct {
	items map[uuid.UUID]*Prescription
}

func newMockPrescriptionRepo() *mockPrescriptionRepo {
	return &mockPrescriptionRepo{items: map[uuid.UUID]*Prescription{}}
}

func (m *mockPrescriptionRepo) Insert(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	m.items[p.ID] = p
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockPrescriptionRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var out []*Prescription
	for _, p := range m.items {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

type mockOverrideRepo struct {
	items     map[uuid.UUID]*InteractionOverride
	insertErr error
}

func newMockOverrideRepo() *mockOverrideRepo {
	return &mockOverrideRepo{items: map[uuid.UUID]*InteractionOverride{}}
}

func (m *mockOverrideRepo) Insert(_ context.Context, o *InteractionOverride) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	o.ID = uuid.New()
	o.DrugAID, o.DrugBID = vocab.NormalizePair(o.DrugAID, o.DrugBID)
	o.CreatedAt = time.Now().UTC()
	m.items[o.ID] = o
	return nil
}

func (m *mockOverrideRepo) GetByID(_ context.Context, id uuid.UUID) (*InteractionOverride, error) {
	o, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockOverrideRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*InteractionOverride, error) {
	var out []*InteractionOverride
	for _, o := range m.items {
		if o.PatientID == patientID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOverrideRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func newTestService(prescriptions *mockPrescriptionRepo, overrides *mockOverrideRepo) *Service {
	return NewService(prescriptions, overrides, &fakeSnapshotSource{snap: testVocabulary()}, zerolog.Nop())
}

func TestCreateOverrideResolvesAliases(t *testing.T) {
	overrides := newMockOverrideRepo()
	svc := newTestService(newMockPrescriptionRepo(), overrides)
	patientID, reviewerID := uuid.New(), uuid.New()

	o, err := svc.CreateOverride(context.Background(), patientID, reviewerID, "ZESTRIL", "advil", "renal function monitored weekly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := svc.store.Snapshot()
	lis, _ := snap.DrugByName("lisinopril")
	ibu, _ := snap.DrugByName("ibuprofen")
	wantA, wantB := vocab.NormalizePair(lis.ID, ibu.ID)
	if o.DrugAID != wantA || o.DrugBID != wantB {
		t.Errorf("pair = %s/%s, want normalized %s/%s", o.DrugAID, o.DrugBID, wantA, wantB)
	}
	if o.Note == nil || *o.Note != "renal function monitored weekly" {
		t.Errorf("note = %v", o.Note)
	}
	if o.ReviewerID != reviewerID {
		t.Errorf("reviewer = %s, want %s", o.ReviewerID, reviewerID)
	}
}

func TestCreateOverrideUnknownDrug(t *testing.T) {
	svc := newTestService(newMockPrescriptionRepo(), newMockOverrideRepo())

	_, err := svc.CreateOverride(context.Background(), uuid.New(), uuid.New(), "lisinopril", "unobtainium", "")
	if !errors.Is(err, ErrUnknownDrug) {
		t.Fatalf("expected ErrUnknownDrug, got %v", err)
	}
}

func TestCreateOverrideSameDrug(t *testing.T) {
	svc := newTestService(newMockPrescriptionRepo(), newMockOverrideRepo())

	// Canonical name and brand alias resolve to the same drug.
	_, err := svc.CreateOverride(context.Background(), uuid.New(), uuid.New(), "Paracetamol", "crocin", "")
	if !errors.Is(err, ErrSameDrugPair) {
		t.Fatalf("expected ErrSameDrugPair, got %v", err)
	}
}

func TestCreateOverrideDuplicate(t *testing.T) {
	overrides := newMockOverrideRepo()
	overrides.insertErr = &pgconn.PgError{Code: "23505"}
	svc := newTestService(newMockPrescriptionRepo(), overrides)

	_, err := svc.CreateOverride(context.Background(), uuid.New(), uuid.New(), "warfarin", "aspirin", "")
	if !errors.Is(err, ErrOverrideExists) {
		t.Fatalf("expected ErrOverrideExists, got %v", err)
	}
}

func TestDeleteOverrideChecksOwnership(t *testing.T) {
	overrides := newMockOverrideRepo()
	svc := newTestService(newMockPrescriptionRepo(), overrides)
	owner := uuid.New()

	o, err := svc.CreateOverride(context.Background(), owner, uuid.New(), "warfarin", "aspirin", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.DeleteOverride(context.Background(), uuid.New(), o.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected not-found for foreign patient, got %v", err)
	}
	if err := svc.DeleteOverride(context.Background(), owner, o.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overrides.items) != 0 {
		t.Error("override was not deleted")
	}
}

func TestSavePrescriptionStampsUploadTime(t *testing.T) {
	prescriptions := newMockPrescriptionRepo()
	svc := newTestService(prescriptions, newMockOverrideRepo())

	p := &Prescription{
		PatientID:  uuid.New(),
		UploadedBy: uuid.New(),
		Source:     SourceText,
		RawText:    "Tab. Aspirin\n75 mg\nOnce daily",
		Status:     StatusCompleted,
	}
	if err := svc.SavePrescription(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UploadedAt.IsZero() {
		t.Error("uploaded_at was not stamped")
	}
	if len(prescriptions.items) != 1 {
		t.Errorf("expected 1 stored prescription, got %d", len(prescriptions.items))
	}
}
