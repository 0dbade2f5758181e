package vocab

import (
	"context"

	"github.com/google/uuid"
)

type DrugRepository interface {
	// Upsert inserts the drug or, when a drug with the same canonical
	// name exists, merges aliases into it. The stored row is returned.
	Upsert(ctx context.Context, name string, aliases []string, drugbankID *string) (*CanonicalDrug, error)
	GetByID(ctx context.Context, id uuid.UUID) (*CanonicalDrug, error)
	GetByName(ctx context.Context, name string) (*CanonicalDrug, error)
	List(ctx context.Context, limit, offset int) ([]*CanonicalDrug, int, error)
	ListAll(ctx context.Context) ([]*CanonicalDrug, error)
}

type InteractionRepository interface {
	// Upsert inserts or replaces the record for the normalized pair.
	Upsert(ctx context.Context, rec *InteractionRecord) error
	List(ctx context.Context, limit, offset int) ([]*InteractionRecord, int, error)
	ListAll(ctx context.Context) ([]*InteractionRecord, error)
}
