package vocab

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carepulse/carepulse/internal/platform/db"
)

type Service struct {
	pool         *pgxpool.Pool
	drugs        DrugRepository
	interactions InteractionRepository
	store        *Store
	logger       zerolog.Logger
}

func NewService(pool *pgxpool.Pool, drugs DrugRepository, interactions InteractionRepository, store *Store, logger zerolog.Logger) *Service {
	return &Service{pool: pool, drugs: drugs, interactions: interactions, store: store, logger: logger}
}

// Store exposes the snapshot store for pipeline wiring.
func (s *Service) Store() *Store { return s.store }

// ImportCSV loads an interaction CSV in a single transaction, then reloads
// the in-memory snapshot. Bad rows are skipped and counted, never fatal.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (*ImportStats, error) {
	rows, skipped, err := readImportRows(r)
	if err != nil {
		return nil, err
	}

	stats := &ImportStats{Rows: len(rows) + skipped, Skipped: skipped}
	drugsSeen := make(map[string]struct{})

	err = db.WithTx(ctx, s.pool, func(txCtx context.Context) error {
		for _, row := range rows {
			a, err := s.drugs.Upsert(txCtx, row.drugA, row.aliasesA, row.drugbankA)
			if err != nil {
				return fmt.Errorf("upserting drug %q: %w", row.drugA, err)
			}
			b, err := s.drugs.Upsert(txCtx, row.drugB, row.aliasesB, row.drugbankB)
			if err != nil {
				return fmt.Errorf("upserting drug %q: %w", row.drugB, err)
			}
			if _, seen := drugsSeen[a.Name]; !seen {
				drugsSeen[a.Name] = struct{}{}
				stats.Drugs++
			}
			if _, seen := drugsSeen[b.Name]; !seen {
				drugsSeen[b.Name] = struct{}{}
				stats.Drugs++
			}

			rec := &InteractionRecord{
				DrugAID:     a.ID,
				DrugBID:     b.ID,
				Severity:    row.severity,
				Description: row.description,
				Mechanism:   row.mechanism,
				Management:  row.management,
			}
			if err := s.interactions.Upsert(txCtx, rec); err != nil {
				return fmt.Errorf("upserting interaction %s/%s: %w", row.drugA, row.drugB, err)
			}
			stats.Interactions++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Reload(ctx); err != nil {
		return nil, fmt.Errorf("reloading snapshot after import: %w", err)
	}

	s.logger.Info().
		Int("rows", stats.Rows).
		Int("drugs", stats.Drugs).
		Int("interactions", stats.Interactions).
		Int("skipped", stats.Skipped).
		Msg("vocabulary import finished")
	return stats, nil
}

// Reload rebuilds the snapshot from Postgres.
func (s *Service) Reload(ctx context.Context) (*Snapshot, error) {
	return s.store.Reload(ctx)
}

func (s *Service) ListDrugs(ctx context.Context, limit, offset int) ([]*CanonicalDrug, int, error) {
	return s.drugs.List(ctx, limit, offset)
}

func (s *Service) ListInteractions(ctx context.Context, limit, offset int) ([]*InteractionRecord, int, error) {
	return s.interactions.List(ctx, limit, offset)
}

// Stats reports the live snapshot's contents.
type Stats struct {
	Drugs        int    `json:"drugs"`
	Interactions int    `json:"interactions"`
	BuiltAt      string `json:"built_at"`
}

func (s *Service) Stats() Stats {
	snap := s.store.Snapshot()
	return Stats{
		Drugs:        snap.DrugCount(),
		Interactions: snap.InteractionCount(),
		BuiltAt:      snap.BuiltAt().Format("2006-01-02T15:04:05Z07:00"),
	}
}
