package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carepulse/carepulse/internal/platform/db"
	"github.com/carepulse/carepulse/internal/platform/metrics"
	"github.com/carepulse/carepulse/internal/platform/notify"
)

var ErrAlreadyAcknowledged = errors.New("alert is already acknowledged")

// Outcome reports how a raised candidate was reconciled against the
// patient's open alerts.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeUpgraded   Outcome = "upgraded"
	OutcomeReaffirmed Outcome = "reaffirmed"
)

// Service owns the alert lifecycle. Raising goes through a transaction
// that locks the patient's open alert for the candidate's (type, root
// cause) key, so at most one open alert exists per key.
type Service struct {
	repo      Repository
	publisher notify.Publisher
	logger    zerolog.Logger
	runInTx   func(ctx context.Context, fn func(context.Context) error) error
}

func NewService(pool *pgxpool.Pool, repo Repository, publisher notify.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		runInTx: func(ctx context.Context, fn func(context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		},
	}
}

// Raise reconciles a detected candidate against the patient's open
// alerts: no open alert for the key creates one, a more severe
// candidate upgrades the open alert in place (same id, same created_at),
// anything else re-affirms it untouched. Acknowledged alerts never
// block a new one.
func (s *Service) Raise(ctx context.Context, patientID uuid.UUID, c Candidate) (*Alert, Outcome, error) {
	if c.RootCause == "" {
		return nil, "", fmt.Errorf("alert candidate has no root cause")
	}
	if !c.Type.Valid() {
		return nil, "", fmt.Errorf("invalid alert type %q", c.Type)
	}
	if !c.Severity.Valid() {
		return nil, "", fmt.Errorf("invalid alert severity %q", c.Severity)
	}

	a, outcome, err := s.raiseOnce(ctx, patientID, c)
	if err != nil && isUniqueViolation(err) {
		// Another writer opened an alert for this key between our lock
		// probe and insert. Rerun: the second pass sees the committed
		// row and reconciles against it.
		a, outcome, err = s.raiseOnce(ctx, patientID, c)
	}
	if err != nil {
		return nil, "", err
	}

	switch outcome {
	case OutcomeCreated:
		metrics.RecordAlertCreated(string(a.Severity), string(a.Type))
		metrics.AlertsOpen.Inc()
		s.logger.Info().
			Str("alert_id", a.ID.String()).
			Str("patient_id", patientID.String()).
			Str("type", string(a.Type)).
			Str("severity", string(a.Severity)).
			Str("root_cause", a.RootCause).
			Msg("alert created")
		s.publish(ctx, a, outcome)
	case OutcomeUpgraded:
		s.logger.Info().
			Str("alert_id", a.ID.String()).
			Str("patient_id", patientID.String()).
			Str("severity", string(a.Severity)).
			Str("root_cause", a.RootCause).
			Msg("alert severity upgraded")
		s.publish(ctx, a, outcome)
	default:
		s.logger.Debug().
			Str("alert_id", a.ID.String()).
			Str("root_cause", a.RootCause).
			Msg("open alert re-affirmed")
	}
	return a, outcome, nil
}

func (s *Service) raiseOnce(ctx context.Context, patientID uuid.UUID, c Candidate) (*Alert, Outcome, error) {
	var (
		result  *Alert
		outcome Outcome
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		open, err := s.repo.FindOpenForUpdate(txCtx, patientID, c.Type, c.RootCause)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		if open == nil {
			a := &Alert{
				PatientID:      patientID,
				Type:           c.Type,
				Severity:       c.Severity,
				RootCause:      c.RootCause,
				Title:          c.Title,
				Message:        c.Message,
				Recommendation: c.Recommendation,
				Metadata:       c.Metadata,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.repo.Insert(txCtx, a); err != nil {
				return err
			}
			result, outcome = a, OutcomeCreated
			return nil
		}

		if c.Severity.Outranks(open.Severity) {
			open.Severity = c.Severity
			open.Title = c.Title
			open.Message = c.Message
			open.Recommendation = c.Recommendation
			open.Metadata = c.Metadata
			open.UpdatedAt = now
			if err := s.repo.Upgrade(txCtx, open); err != nil {
				return err
			}
			result, outcome = open, OutcomeUpgraded
			return nil
		}

		result, outcome = open, OutcomeReaffirmed
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return result, outcome, nil
}

// Acknowledge closes an open alert. Acknowledging is terminal: a closed
// alert stays closed, and the next occurrence of its root cause opens a
// fresh alert.
func (s *Service) Acknowledge(ctx context.Context, id, reviewerID uuid.UUID) (*Alert, error) {
	a, err := s.repo.Acknowledge(ctx, id, reviewerID, time.Now().UTC())
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := s.repo.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Acknowledged {
			return nil, ErrAlreadyAcknowledged
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	metrics.AlertsOpen.Dec()
	s.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("acknowledged_by", reviewerID.String()).
		Msg("alert acknowledged")
	s.publish(ctx, a, Outcome("acknowledged"))
	return a, nil
}

// Get returns one alert by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns alerts matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Alert, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// SyncOpenGauge seeds the open-alerts gauge from the database. Called
// once at startup so the gauge survives restarts.
func (s *Service) SyncOpenGauge(ctx context.Context) error {
	n, err := s.repo.CountOpen(ctx)
	if err != nil {
		return fmt.Errorf("counting open alerts: %w", err)
	}
	metrics.AlertsOpen.Set(float64(n))
	return nil
}

func (s *Service) publish(ctx context.Context, a *Alert, outcome Outcome) {
	s.publisher.PublishAlert(ctx, notify.AlertEvent{
		AlertID:    a.ID.String(),
		PatientID:  a.PatientID.String(),
		Type:       string(a.Type),
		Severity:   string(a.Severity),
		Title:      a.Title,
		Action:     string(outcome),
		Metadata:   a.Metadata,
		OccurredAt: a.UpdatedAt,
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
