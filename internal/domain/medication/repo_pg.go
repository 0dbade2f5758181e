package medication

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepulse/carepulse/internal/domain/vocab"
	"github.com/carepulse/carepulse/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const prescriptionCols = `id, patient_id, uploaded_by, source, raw_text, filename,
	mentions, normalizations, findings, summary, status, gaps, uploaded_at`

func (r *prescriptionRepoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.UploadedBy, &p.Source, &p.RawText, &p.Filename,
		&p.Mentions, &p.Normalizations, &p.Findings, &p.Summary, &p.Status, &p.Gaps, &p.UploadedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Insert(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	if p.Mentions == nil {
		p.Mentions = []Mention{}
	}
	if p.Normalizations == nil {
		p.Normalizations = []Normalization{}
	}
	if p.Findings == nil {
		p.Findings = []Finding{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescriptions (id, patient_id, uploaded_by, source, raw_text, filename,
			mentions, normalizations, findings, summary, status, gaps, uploaded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.PatientID, p.UploadedBy, p.Source, p.RawText, p.Filename,
		p.Mentions, p.Normalizations, p.Findings, p.Summary, p.Status, p.Gaps, p.UploadedAt)
	return err
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+prescriptionCols+` FROM prescriptions
		WHERE patient_id = $1
		ORDER BY uploaded_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

type overrideRepoPG struct{ pool *pgxpool.Pool }

func NewOverrideRepoPG(pool *pgxpool.Pool) OverrideRepository {
	return &overrideRepoPG{pool: pool}
}

func (r *overrideRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const overrideCols = `id, patient_id, drug_a_id, drug_b_id, reviewer_id, note, created_at`

func (r *overrideRepoPG) scanOverride(row pgx.Row) (*InteractionOverride, error) {
	var o InteractionOverride
	err := row.Scan(&o.ID, &o.PatientID, &o.DrugAID, &o.DrugBID, &o.ReviewerID, &o.Note, &o.CreatedAt)
	return &o, err
}

func (r *overrideRepoPG) Insert(ctx context.Context, o *InteractionOverride) error {
	o.ID = uuid.New()
	o.DrugAID, o.DrugBID = vocab.NormalizePair(o.DrugAID, o.DrugBID)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO interaction_overrides (id, patient_id, drug_a_id, drug_b_id, reviewer_id, note)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		o.ID, o.PatientID, o.DrugAID, o.DrugBID, o.ReviewerID, o.Note).Scan(&o.CreatedAt)
}

func (r *overrideRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*InteractionOverride, error) {
	return r.scanOverride(r.conn(ctx).QueryRow(ctx,
		`SELECT `+overrideCols+` FROM interaction_overrides WHERE id = $1`, id))
}

func (r *overrideRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*InteractionOverride, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+overrideCols+` FROM interaction_overrides
		WHERE patient_id = $1
		ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*InteractionOverride
	for rows.Next() {
		o, err := r.scanOverride(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, nil
}

func (r *overrideRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM interaction_overrides WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
