// Package medication turns free-text prescriptions into normalized,
// checked medication lists: a heuristic line parser, an approximate-match
// normalizer against the vocabulary snapshot, and an interaction checker
// that produces clinical findings. Parsing, normalization, and checking
// are pure; persistence lives in the prescription and override repos.
package medication

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carepulse/carepulse/internal/domain/vocab"
)

// Mention is one medication extracted from prescription text,
// pre-normalization. Dose and frequency are kept as written.
type Mention struct {
	Name         string `json:"name"`
	Dose         string `json:"dose"`
	Frequency    string `json:"frequency"`
	Instructions string `json:"instructions,omitempty"`
}

// Normalization is the outcome of matching one mention against the
// vocabulary. Unmatched mentions keep the best candidate so a reviewer
// can confirm or correct the guess.
type Normalization struct {
	Mention       Mention    `json:"mention"`
	Matched       bool       `json:"matched"`
	DrugID        *uuid.UUID `json:"drug_id,omitempty"`
	CanonicalName string     `json:"canonical_name,omitempty"`
	Confidence    float64    `json:"confidence"`
	BestCandidate string     `json:"best_candidate,omitempty"`
}

// FindingKind classifies checker output. Interaction and cumulative
// findings feed the alert engine; the rest are informational.
type FindingKind string

const (
	FindingInteraction FindingKind = "interaction"
	FindingCumulative  FindingKind = "cumulative"
	FindingDose        FindingKind = "dose"
	FindingFrequency   FindingKind = "frequency"
	FindingDuplicate   FindingKind = "duplicate"
	FindingUnmatched   FindingKind = "unmatched"
)

// Finding is one clinical observation about a medication list.
type Finding struct {
	Kind       FindingKind    `json:"kind"`
	Severity   vocab.Severity `json:"severity"`
	DrugA      string         `json:"drug_a,omitempty"`
	DrugB      string         `json:"drug_b,omitempty"`
	Drugs      []string       `json:"drugs,omitempty"`
	Mechanism  string         `json:"mechanism,omitempty"`
	Message    string         `json:"message"`
	Management string         `json:"management,omitempty"`
	// Suppressed marks findings covered by an accepted-with-monitoring
	// override: still reported, but no alert is raised.
	Suppressed bool `json:"suppressed,omitempty"`
}

// AlertWorthy reports whether this finding should raise a
// drug-interaction alert.
func (f Finding) AlertWorthy() bool {
	if f.Suppressed {
		return false
	}
	return f.Kind == FindingInteraction || f.Kind == FindingCumulative
}

// RootCause returns the stable dedup key for the alert engine: the
// ordered drug pair for interactions, the shared mechanism for
// cumulative findings, empty for informational findings.
func (f Finding) RootCause() string {
	switch f.Kind {
	case FindingInteraction:
		a := strings.ToLower(f.DrugA)
		b := strings.ToLower(f.DrugB)
		if b < a {
			a, b = b, a
		}
		return "interaction:" + a + "+" + b
	case FindingCumulative:
		return "cumulative:" + strings.ToLower(strings.TrimSpace(f.Mechanism))
	default:
		return ""
	}
}

// Source records how the prescription text arrived.
type Source string

const (
	SourceText     Source = "text"
	SourceDocument Source = "document"
)

// Status distinguishes fully processed prescriptions from degraded runs
// where a collaborator (OCR) failed and a stage was skipped.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
)

// Prescription maps to the prescriptions table. Mentions, normalizations,
// findings, and gaps are JSONB columns.
type Prescription struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	UploadedBy     uuid.UUID       `db:"uploaded_by" json:"uploaded_by"`
	Source         Source          `db:"source" json:"source"`
	RawText        string          `db:"raw_text" json:"raw_text"`
	Filename       *string         `db:"filename" json:"filename,omitempty"`
	Mentions       []Mention       `db:"mentions" json:"mentions"`
	Normalizations []Normalization `db:"normalizations" json:"normalizations"`
	Findings       []Finding       `db:"findings" json:"findings"`
	Summary        string          `db:"summary" json:"summary"`
	Status         Status          `db:"status" json:"status"`
	Gaps           []string        `db:"gaps" json:"gaps,omitempty"`
	UploadedAt     time.Time       `db:"uploaded_at" json:"uploaded_at"`
}

// InteractionOverride maps to the interaction_overrides table: a
// clinician accepted the (patient, drug pair) interaction with
// monitoring. The pair is stored normalized (drug_a_id < drug_b_id).
type InteractionOverride struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	DrugAID    uuid.UUID `db:"drug_a_id" json:"drug_a_id"`
	DrugBID    uuid.UUID `db:"drug_b_id" json:"drug_b_id"`
	ReviewerID uuid.UUID `db:"reviewer_id" json:"reviewer_id"`
	Note       *string   `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MatchedDrugs returns the distinct canonical drugs referenced by the
// normalizations, sorted by name for deterministic pairing.
func MatchedDrugs(snapshot *vocab.Snapshot, norms []Normalization) []*vocab.CanonicalDrug {
	seen := make(map[uuid.UUID]bool, len(norms))
	var drugs []*vocab.CanonicalDrug
	for _, n := range norms {
		if !n.Matched || n.DrugID == nil || seen[*n.DrugID] {
			continue
		}
		d, ok := snapshot.Drug(*n.DrugID)
		if !ok {
			// Stale id from an older snapshot: excluded from pairing.
			continue
		}
		seen[*n.DrugID] = true
		drugs = append(drugs, d)
	}
	sort.Slice(drugs, func(i, j int) bool { return drugs[i].Name < drugs[j].Name })
	return drugs
}
