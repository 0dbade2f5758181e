package vocab

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Snapshot is an immutable, fully-indexed view of the vocabulary. Pipeline
// runs capture one snapshot at the start and use it for every lookup in
// that run, so a concurrent reload cannot change results mid-run.
type Snapshot struct {
	builtAt      time.Time
	drugs        map[uuid.UUID]*CanonicalDrug
	byName       map[string]uuid.UUID
	names        []string
	interactions map[pairKey]*InteractionRecord
}

type pairKey struct{ a, b uuid.UUID }

func newPairKey(a, b uuid.UUID) pairKey {
	a, b = NormalizePair(a, b)
	return pairKey{a: a, b: b}
}

// BuildSnapshot indexes drugs and interactions for lookup. Canonical names
// always win over aliases; when two drugs claim the same alias, the drug
// with the lexicographically smaller canonical name keeps it, so the index
// is deterministic regardless of input order.
func BuildSnapshot(drugs []*CanonicalDrug, interactions []*InteractionRecord) *Snapshot {
	s := &Snapshot{
		builtAt:      time.Now().UTC(),
		drugs:        make(map[uuid.UUID]*CanonicalDrug, len(drugs)),
		byName:       make(map[string]uuid.UUID),
		interactions: make(map[pairKey]*InteractionRecord, len(interactions)),
	}

	ordered := make([]*CanonicalDrug, len(drugs))
	copy(ordered, drugs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	for _, d := range ordered {
		s.drugs[d.ID] = d
		for _, alias := range d.Aliases {
			alias = NormalizeName(alias)
			if alias == "" {
				continue
			}
			if _, taken := s.byName[alias]; !taken {
				s.byName[alias] = d.ID
			}
		}
	}
	// Second pass so a canonical name displaces any alias squatting on it.
	for _, d := range ordered {
		s.byName[NormalizeName(d.Name)] = d.ID
	}

	s.names = make([]string, 0, len(s.byName))
	for name := range s.byName {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	for _, rec := range interactions {
		s.interactions[newPairKey(rec.DrugAID, rec.DrugBID)] = rec
	}
	return s
}

// Drug returns the drug with the given id.
func (s *Snapshot) Drug(id uuid.UUID) (*CanonicalDrug, bool) {
	d, ok := s.drugs[id]
	return d, ok
}

// DrugByName resolves a canonical name or alias, case-insensitively.
func (s *Snapshot) DrugByName(name string) (*CanonicalDrug, bool) {
	id, ok := s.byName[NormalizeName(name)]
	if !ok {
		return nil, false
	}
	return s.drugs[id], true
}

// LookupNames returns every canonical name and alias in sorted order.
// Callers must not mutate the returned slice.
func (s *Snapshot) LookupNames() []string { return s.names }

// Interaction returns the record for an unordered drug pair.
func (s *Snapshot) Interaction(a, b uuid.UUID) (*InteractionRecord, bool) {
	rec, ok := s.interactions[newPairKey(a, b)]
	return rec, ok
}

func (s *Snapshot) DrugCount() int        { return len(s.drugs) }
func (s *Snapshot) InteractionCount() int { return len(s.interactions) }
func (s *Snapshot) BuiltAt() time.Time    { return s.builtAt }

// Store holds the live snapshot behind an atomic pointer. Reload builds a
// fresh snapshot from the repositories and swaps it in; readers that
// already hold the old snapshot keep it until they finish.
type Store struct {
	drugs        DrugRepository
	interactions InteractionRepository
	snap         atomic.Pointer[Snapshot]
	logger       zerolog.Logger
}

func NewStore(drugs DrugRepository, interactions InteractionRepository, logger zerolog.Logger) *Store {
	st := &Store{drugs: drugs, interactions: interactions, logger: logger}
	st.snap.Store(BuildSnapshot(nil, nil))
	return st
}

// Snapshot returns the current vocabulary view. Never nil.
func (st *Store) Snapshot() *Snapshot { return st.snap.Load() }

// Reload rebuilds the snapshot from Postgres and atomically swaps it in.
func (st *Store) Reload(ctx context.Context) (*Snapshot, error) {
	drugs, err := st.drugs.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	interactions, err := st.interactions.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	snap := BuildSnapshot(drugs, interactions)
	st.snap.Store(snap)
	st.logger.Info().
		Int("drugs", snap.DrugCount()).
		Int("interactions", snap.InteractionCount()).
		Msg("vocabulary snapshot reloaded")
	return snap, nil
}
