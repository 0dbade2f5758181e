package risk

import (
	"context"

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

const scoreCols = `id, patient_id, risk_type, score, risk_level, drivers, recommendations,
	method, confidence_score, computed_at`

func (r *repoPG) scanScore(row pgx.Row) (*Score, error) {
	var s Score
	err := row.Scan(&s.ID, &s.PatientID, &s.RiskType, &s.Score, &s.RiskLevel, &s.Drivers,
		&s.Recommendations, &s.Method, &s.Confidence, &s.ComputedAt)
	return &s, err
}

func (r *repoPG) Append(ctx context.Context, score *Score) error {
	score.ID = uuid.New()
	if score.Drivers == nil {
		score.Drivers = map[string]interface{}{}
	}
	if score.Recommendations == nil {
		score.Recommendations = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO risk_scores (id, patient_id, risk_type, score, risk_level, drivers,
			recommendations, method, confidence_score, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		score.ID, score.PatientID, score.RiskType, score.Score, score.RiskLevel, score.Drivers,
		score.Recommendations, score.Method, score.Confidence, score.ComputedAt)
	return err
}

func (r *repoPG) Current(ctx context.Context, patientID uuid.UUID) ([]*Score, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT ON (risk_type) `+scoreCols+`
		FROM risk_scores
		WHERE patient_id = $1
		ORDER BY risk_type, computed_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Score
	for rows.Next() {
		s, err := r.scanScore(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

func (r *repoPG) History(ctx context.Context, patientID uuid.UUID, riskType Type, limit, offset int) ([]*Score, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM risk_scores WHERE patient_id = $1 AND risk_type = $2`,
		patientID, riskType).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+scoreCols+` FROM risk_scores
		WHERE patient_id = $1 AND risk_type = $2
		ORDER BY computed_at DESC LIMIT $3 OFFSET $4`, patientID, riskType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Score
	for rows.Next() {
		s, err := r.scanScore(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}
