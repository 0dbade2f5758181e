package vocab

import (
	"context"
	"errors"
	"sort"

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

// =========== Canonical Drug Repository ===========

type drugRepoPG struct{ pool *pgxpool.Pool }

func NewDrugRepoPG(pool *pgxpool.Pool) DrugRepository { return &drugRepoPG{pool: pool} }

func (r *drugRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const drugCols = `id, name, aliases, drugbank_id, created_at, updated_at`

func (r *drugRepoPG) scanDrug(row pgx.Row) (*CanonicalDrug, error) {
	var d CanonicalDrug
	err := row.Scan(&d.ID, &d.Name, &d.Aliases, &d.DrugBankID, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *drugRepoPG) Upsert(ctx context.Context, name string, aliases []string, drugbankID *string) (*CanonicalDrug, error) {
	name = NormalizeName(name)

	existing, err := r.GetByName(ctx, name)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		existing = nil
	}

	if existing == nil {
		d := &CanonicalDrug{ID: uuid.New(), Name: name, Aliases: dedupeAliases(name, aliases, nil), DrugBankID: drugbankID}
		if d.Aliases == nil {
			d.Aliases = []string{}
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO canonical_drugs (id, name, aliases, drugbank_id)
			VALUES ($1,$2,$3,$4)`,
			d.ID, d.Name, d.Aliases, d.DrugBankID)
		if err != nil {
			return nil, err
		}
		return r.GetByID(ctx, d.ID)
	}

	merged := dedupeAliases(name, aliases, existing.Aliases)
	if merged == nil {
		merged = []string{}
	}
	dbID := existing.DrugBankID
	if drugbankID != nil {
		dbID = drugbankID
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE canonical_drugs SET aliases=$2, drugbank_id=$3, updated_at=NOW()
		WHERE id = $1`,
		existing.ID, merged, dbID)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, existing.ID)
}

// dedupeAliases merges new and existing aliases, lowercased, without the
// canonical name itself, in sorted order for stable storage.
func dedupeAliases(canonical string, fresh, existing []string) []string {
	seen := make(map[string]struct{})
	for _, group := range [][]string{existing, fresh} {
		for _, a := range group {
			a = NormalizeName(a)
			if a == "" || a == canonical {
				continue
			}
			seen[a] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (r *drugRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CanonicalDrug, error) {
	return r.scanDrug(r.conn(ctx).QueryRow(ctx, `SELECT `+drugCols+` FROM canonical_drugs WHERE id = $1`, id))
}

func (r *drugRepoPG) GetByName(ctx context.Context, name string) (*CanonicalDrug, error) {
	return r.scanDrug(r.conn(ctx).QueryRow(ctx,
		`SELECT `+drugCols+` FROM canonical_drugs WHERE name = $1`, NormalizeName(name)))
}

func (r *drugRepoPG) List(ctx context.Context, limit, offset int) ([]*CanonicalDrug, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM canonical_drugs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+drugCols+` FROM canonical_drugs ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CanonicalDrug
	for rows.Next() {
		d, err := r.scanDrug(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *drugRepoPG) ListAll(ctx context.Context) ([]*CanonicalDrug, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+drugCols+` FROM canonical_drugs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CanonicalDrug
	for rows.Next() {
		d, err := r.scanDrug(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}

// =========== Interaction Repository ===========

type interactionRepoPG struct{ pool *pgxpool.Pool }

func NewInteractionRepoPG(pool *pgxpool.Pool) InteractionRepository {
	return &interactionRepoPG{pool: pool}
}

func (r *interactionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const interactionCols = `id, drug_a_id, drug_b_id, severity, description, mechanism, management, created_at, updated_at`

func (r *interactionRepoPG) scanInteraction(row pgx.Row) (*InteractionRecord, error) {
	var rec InteractionRecord
	err := row.Scan(&rec.ID, &rec.DrugAID, &rec.DrugBID, &rec.Severity, &rec.Description,
		&rec.Mechanism, &rec.Management, &rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

func (r *interactionRepoPG) Upsert(ctx context.Context, rec *InteractionRecord) error {
	rec.DrugAID, rec.DrugBID = NormalizePair(rec.DrugAID, rec.DrugBID)
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug_interactions (id, drug_a_id, drug_b_id, severity, description, mechanism, management)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (drug_a_id, drug_b_id) DO UPDATE SET
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			mechanism = EXCLUDED.mechanism,
			management = EXCLUDED.management,
			updated_at = NOW()`,
		rec.ID, rec.DrugAID, rec.DrugBID, rec.Severity, rec.Description, rec.Mechanism, rec.Management)
	return err
}

func (r *interactionRepoPG) List(ctx context.Context, limit, offset int) ([]*InteractionRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM drug_interactions`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+interactionCols+` FROM drug_interactions ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*InteractionRecord
	for rows.Next() {
		rec, err := r.scanInteraction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}

func (r *interactionRepoPG) ListAll(ctx context.Context) ([]*InteractionRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+interactionCols+` FROM drug_interactions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*InteractionRecord
	for rows.Next() {
		rec, err := r.scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, nil
}
