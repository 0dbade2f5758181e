package medication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/carepulse/carepulse/internal/domain/vocab"
)

var (
	ErrUnknownDrug    = errors.New("drug not found in vocabulary")
	ErrSameDrugPair   = errors.New("override requires two different drugs")
	ErrOverrideExists = errors.New("override already recorded for this drug pair")
)

// SnapshotSource yields the current vocabulary view. Satisfied by
// *vocab.Store.
type SnapshotSource interface {
	Snapshot() *vocab.Snapshot
}

// Service persists prescriptions and manages interaction overrides. The
// pipeline orchestrator runs the parse/normalize/check stages and hands
// the assembled prescription here for storage.
type Service struct {
	prescriptions PrescriptionRepository
	overrides     OverrideRepository
	store         SnapshotSource
	logger        zerolog.Logger
}

func NewService(prescriptions PrescriptionRepository, overrides OverrideRepository, store SnapshotSource, logger zerolog.Logger) *Service {
	return &Service{prescriptions: prescriptions, overrides: overrides, store: store, logger: logger}
}

func (s *Service) SavePrescription(ctx context.Context, p *Prescription) error {
	if p.UploadedAt.IsZero() {
		p.UploadedAt = time.Now().UTC()
	}
	if err := s.prescriptions.Insert(ctx, p); err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	s.logger.Info().
		Str("prescription_id", p.ID.String()).
		Str("patient_id", p.PatientID.String()).
		Str("status", string(p.Status)).
		Int("mentions", len(p.Mentions)).
		Int("findings", len(p.Findings)).
		Msg("prescription stored")
	return nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListPrescriptions(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

// Overrides returns every accepted-with-monitoring marker for a patient.
func (s *Service) Overrides(ctx context.Context, patientID uuid.UUID) ([]*InteractionOverride, error) {
	return s.overrides.ListByPatient(ctx, patientID)
}

// CreateOverride marks a (patient, drug pair) interaction as accepted
// with monitoring. Drugs are referenced by canonical name or alias.
func (s *Service) CreateOverride(ctx context.Context, patientID, reviewerID uuid.UUID, drugA, drugB, note string) (*InteractionOverride, error) {
	snap := s.store.Snapshot()
	a, ok := snap.DrugByName(drugA)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDrug, drugA)
	}
	b, ok := snap.DrugByName(drugB)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDrug, drugB)
	}
	if a.ID == b.ID {
		return nil, ErrSameDrugPair
	}

	o := &InteractionOverride{
		PatientID:  patientID,
		DrugAID:    a.ID,
		DrugBID:    b.ID,
		ReviewerID: reviewerID,
	}
	if note != "" {
		o.Note = &note
	}
	if err := s.overrides.Insert(ctx, o); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrOverrideExists
		}
		return nil, err
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Str("drug_a", a.Name).
		Str("drug_b", b.Name).
		Str("reviewer_id", reviewerID.String()).
		Msg("interaction override recorded")
	return o, nil
}

// DeleteOverride removes an override, restoring alert emission for the
// pair. The override must belong to the given patient.
func (s *Service) DeleteOverride(ctx context.Context, patientID, id uuid.UUID) error {
	o, err := s.overrides.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.PatientID != patientID {
		return pgx.ErrNoRows
	}
	return s.overrides.Delete(ctx, id)
}
