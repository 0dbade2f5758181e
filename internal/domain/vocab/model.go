// Package vocab owns the drug vocabulary: canonical drug names with their
// aliases and the curated pairwise interaction records. The authoritative
// copy lives in Postgres; lookups during pipeline runs go through an
// immutable in-memory snapshot so a vocabulary reload never shifts results
// under a run already in flight.
package vocab

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity grades an interaction record. Order matters: contraindicated
// outranks major outranks moderate outranks minor.
type Severity string

const (
	SeverityMinor           Severity = "minor"
	SeverityModerate        Severity = "moderate"
	SeverityMajor           Severity = "major"
	SeverityContraindicated Severity = "contraindicated"
)

var severityRank = map[Severity]int{
	SeverityMinor:           1,
	SeverityModerate:        2,
	SeverityMajor:           3,
	SeverityContraindicated: 4,
}

// Rank returns the ordering weight of the severity, 0 for unknown values.
func (s Severity) Rank() int { return severityRank[s] }

// Outranks reports whether s is strictly more severe than other.
func (s Severity) Outranks(other Severity) bool { return s.Rank() > other.Rank() }

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Outranks(a) {
		return b
	}
	return a
}

// ParseSeverity folds source-data synonyms onto the canonical scale.
// Unrecognized values fall back to moderate rather than failing a row.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "minor", "low", "mild":
		return SeverityMinor
	case "moderate", "medium":
		return SeverityModerate
	case "major", "high", "severe":
		return SeverityMajor
	case "contraindicated", "contra-indicated", "contraindication", "contra":
		return SeverityContraindicated
	default:
		return SeverityModerate
	}
}

// CanonicalDrug maps to the canonical_drugs table. Name is the lowercase
// canonical form; Aliases carries brand names and common misspellings.
type CanonicalDrug struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Aliases    []string  `db:"aliases" json:"aliases"`
	DrugBankID *string   `db:"drugbank_id" json:"drugbank_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// InteractionRecord maps to the drug_interactions table. The pair is stored
// in normalized order (DrugAID < DrugBID) so each unordered pair appears
// exactly once.
type InteractionRecord struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DrugAID     uuid.UUID `db:"drug_a_id" json:"drug_a_id"`
	DrugBID     uuid.UUID `db:"drug_b_id" json:"drug_b_id"`
	Severity    Severity  `db:"severity" json:"severity"`
	Description string    `db:"description" json:"description"`
	Mechanism   *string   `db:"mechanism" json:"mechanism,omitempty"`
	Management  *string   `db:"management" json:"management,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizePair orders two drug ids so (a,b) and (b,a) key the same record.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// NormalizeName folds a drug name to its lookup form.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
