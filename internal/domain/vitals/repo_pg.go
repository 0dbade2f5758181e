package vitals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepulse/carepulse/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sampleCols = `id, patient_id, systolic, diastolic, heart_rate, temperature,
	blood_glucose, oxygen_saturation, weight, note, recorded_at, created_at`

func (r *repoPG) scanSample(row pgx.Row) (*Sample, error) {
	var s Sample
	err := row.Scan(&s.ID, &s.PatientID, &s.Systolic, &s.Diastolic, &s.HeartRate, &s.Temperature,
		&s.BloodGlucose, &s.OxygenSaturation, &s.Weight, &s.Note, &s.RecordedAt, &s.CreatedAt)
	return &s, err
}

func (r *repoPG) Insert(ctx context.Context, s *Sample) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vitals_samples (id, patient_id, systolic, diastolic, heart_rate, temperature,
			blood_glucose, oxygen_saturation, weight, note, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.PatientID, s.Systolic, s.Diastolic, s.HeartRate, s.Temperature,
		s.BloodGlucose, s.OxygenSaturation, s.Weight, s.Note, s.RecordedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Sample, error) {
	return r.scanSample(r.conn(ctx).QueryRow(ctx, `SELECT `+sampleCols+` FROM vitals_samples WHERE id = $1`, id))
}

func (r *repoPG) Window(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Sample, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sampleCols+` FROM vitals_samples
		WHERE patient_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC`, patientID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Sample
	for rows.Next() {
		s, err := r.scanSample(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Sample, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM vitals_samples WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sampleCols+` FROM vitals_samples
		WHERE patient_id = $1
		ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Sample
	for rows.Next() {
		s, err := r.scanSample(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}

func (r *repoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Sample, error) {
	return r.scanSample(r.conn(ctx).QueryRow(ctx, `
		SELECT `+sampleCols+` FROM vitals_samples
		WHERE patient_id = $1
		ORDER BY recorded_at DESC LIMIT 1`, patientID))
}
