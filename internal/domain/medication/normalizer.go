package medication

import (
	"strings"

	"github.com/carepulse/carepulse/internal/domain/vocab"
	"github.com/carepulse/carepulse/pkg/similarity"
)

// DefaultMatchThreshold is the minimum normalized similarity for a
// mention to be accepted as a vocabulary match.
const DefaultMatchThreshold = 0.8

// MetricFunc scores the similarity of two lowercased names in [0,1].
type MetricFunc func(a, b string) float64

// Normalizer maps raw medication mentions to canonical drugs. Normalize
// is a pure function of (mentions, snapshot): identical input always
// yields identical output.
type Normalizer struct {
	threshold float64
	metric    MetricFunc
}

func NewNormalizer(threshold float64, metric MetricFunc) *Normalizer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMatchThreshold
	}
	if metric == nil {
		metric = similarity.Ratio
	}
	return &Normalizer{threshold: threshold, metric: metric}
}

// Normalize matches each mention against the snapshot, preserving input
// order. An exact canonical-name or alias hit wins outright; otherwise
// the best-scoring candidate is accepted when it clears the threshold.
// Score ties go to the smaller edit distance, then the lexicographically
// smaller canonical name. Empty or garbage names come back unmatched,
// never as an error.
func (n *Normalizer) Normalize(snap *vocab.Snapshot, mentions []Mention) []Normalization {
	out := make([]Normalization, 0, len(mentions))
	for _, m := range mentions {
		out = append(out, n.normalizeOne(snap, m))
	}
	return out
}

func (n *Normalizer) normalizeOne(snap *vocab.Snapshot, m Mention) Normalization {
	norm := Normalization{Mention: m}
	cleaned := CleanName(m.Name)
	if cleaned == "" {
		return norm
	}

	if d, ok := snap.DrugByName(cleaned); ok {
		norm.Matched = true
		norm.DrugID = &d.ID
		norm.CanonicalName = d.Name
		norm.Confidence = 1
		return norm
	}

	var (
		best      *vocab.CanonicalDrug
		bestName  string
		bestScore float64
		bestDist  int
	)
	for _, cand := range snap.LookupNames() {
		drug, ok := snap.DrugByName(cand)
		if !ok {
			continue
		}
		score := n.metric(cleaned, cand)
		dist := similarity.Levenshtein(cleaned, cand)
		take := best == nil || score > bestScore
		if !take && score == bestScore {
			take = dist < bestDist || (dist == bestDist && drug.Name < best.Name)
		}
		if take {
			best, bestName, bestScore, bestDist = drug, cand, score, dist
		}
	}
	if best == nil {
		return norm
	}

	norm.Confidence = bestScore
	if bestScore >= n.threshold {
		norm.Matched = true
		norm.DrugID = &best.ID
		norm.CanonicalName = best.Name
	} else {
		norm.BestCandidate = bestName
	}
	return norm
}

// Form, unit, and frequency words stripped from mention names before
// matching. Dose tokens ("500", "10mg", "5ml") start with a digit.
var nameNoise = map[string]bool{
	"tab": true, "tablet": true, "tablets": true,
	"cap": true, "capsule": true, "capsules": true,
	"syr": true, "syrup": true,
	"inj": true, "injection": true,
	"mg": true, "mcg": true, "ml": true, "g": true, "iu": true,
	"once": true, "twice": true, "thrice": true, "three": true, "four": true,
	"times": true, "daily": true, "weekly": true,
	"od": true, "bd": true, "tds": true, "qid": true, "sos": true, "prn": true,
}

// CleanName lowercases a mention name and strips dosage and frequency
// noise, leaving only the words that identify the drug.
func CleanName(name string) string {
	var kept []string
	for _, f := range strings.Fields(strings.ToLower(name)) {
		f = strings.Trim(f, "()[].,;:")
		if f == "" || nameNoise[f] || (f[0] >= '0' && f[0] <= '9') {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
