package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

const alertCols = `id, patient_id, type, severity, root_cause, title, message, recommendation,
	metadata, acknowledged, acknowledged_by, acknowledged_at, created_at, updated_at`

func (r *repoPG) scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.PatientID, &a.Type, &a.Severity, &a.RootCause, &a.Title,
		&a.Message, &a.Recommendation, &a.Metadata, &a.Acknowledged, &a.AcknowledgedBy,
		&a.AcknowledgedAt, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Insert(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	if a.Metadata == nil {
		a.Metadata = map[string]interface{}{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO alerts (id, patient_id, type, severity, root_cause, title, message,
			recommendation, metadata, acknowledged, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false,$10,$11)`,
		a.ID, a.PatientID, a.Type, a.Severity, a.RootCause, a.Title, a.Message,
		a.Recommendation, a.Metadata, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE id = $1`, id)
	return r.scanAlert(row)
}

func (r *repoPG) FindOpenForUpdate(ctx context.Context, patientID uuid.UUID, typ Type, rootCause string) (*Alert, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+alertCols+` FROM alerts
		WHERE patient_id = $1 AND type = $2 AND root_cause = $3 AND NOT acknowledged
		FOR UPDATE`, patientID, typ, rootCause)
	a, err := r.scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Upgrade(ctx context.Context, a *Alert) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE alerts
		SET severity = $2, title = $3, message = $4, recommendation = $5, metadata = $6,
			updated_at = $7
		WHERE id = $1 AND NOT acknowledged`,
		a.ID, a.Severity, a.Title, a.Message, a.Recommendation, a.Metadata, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Acknowledge(ctx context.Context, id, reviewerID uuid.UUID, at time.Time) (*Alert, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE alerts
		SET acknowledged = true, acknowledged_by = $2, acknowledged_at = $3, updated_at = $3
		WHERE id = $1 AND NOT acknowledged
		RETURNING `+alertCols, id, reviewerID, at)
	return r.scanAlert(row)
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Alert, int, error) {
	var conds []string
	var args []interface{}
	add := func(expr string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Type != nil {
		add("type = $%d", *f.Type)
	}
	if f.Severity != nil {
		add("severity = $%d", *f.Severity)
	}
	if f.Acknowledged != nil {
		add("acknowledged = $%d", *f.Acknowledged)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM alerts%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		alertCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE NOT acknowledged`).Scan(&n)
	return n, err
}
