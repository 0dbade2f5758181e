package medication

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/carepulse/carepulse/internal/domain/vocab"
)

// cumulativeMinimum is the drug count at which a shared interaction
// mechanism becomes its own finding.
const cumulativeMinimum = 3

// CheckResult is the checker's verdict on one medication list.
type CheckResult struct {
	Findings       []Finding      `json:"findings"`
	MaxSeverity    vocab.Severity `json:"max_severity,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
	Summary        string         `json:"summary"`
}

var severityRecommendations = map[vocab.Severity]string{
	vocab.SeverityMinor:           "Minor issues noted. No immediate action required.",
	vocab.SeverityModerate:        "Review recommended: monitor the patient and confirm dosing with the prescriber.",
	vocab.SeverityMajor:           "Major interaction risk: review this combination with the prescriber before administration.",
	vocab.SeverityContraindicated: "Contraindicated combination: do not co-administer; contact the prescriber immediately.",
}

type drugPair struct{ a, b uuid.UUID }

func newDrugPair(a, b uuid.UUID) drugPair {
	a, b = vocab.NormalizePair(a, b)
	return drugPair{a: a, b: b}
}

// Check runs every rule over a normalized medication list: pairwise
// interaction lookups, cumulative shared-mechanism exposure, dosage and
// frequency heuristics, duplicate entries, and unmatched mentions. Pure
// function of its inputs; empty and single-drug lists yield no
// interaction findings. Overridden pairs are still reported, marked
// suppressed so no alert is raised for them.
func Check(snap *vocab.Snapshot, norms []Normalization, overrides []*InteractionOverride) *CheckResult {
	suppressed := make(map[drugPair]bool, len(overrides))
	for _, o := range overrides {
		suppressed[newDrugPair(o.DrugAID, o.DrugBID)] = true
	}

	var findings []Finding
	drugs := MatchedDrugs(snap, norms)

	type mechanismGroup struct {
		display string
		members map[uuid.UUID]string
	}
	mechanisms := map[string]*mechanismGroup{}

	interactionCount := 0
	for i := 0; i < len(drugs); i++ {
		for j := i + 1; j < len(drugs); j++ {
			a, b := drugs[i], drugs[j]
			rec, ok := snap.Interaction(a.ID, b.ID)
			if !ok {
				continue
			}
			interactionCount++
			f := Finding{
				Kind:       FindingInteraction,
				Severity:   rec.Severity,
				DrugA:      a.Name,
				DrugB:      b.Name,
				Message:    fmt.Sprintf("Interaction: %s + %s — %s", a.Name, b.Name, rec.Description),
				Suppressed: suppressed[newDrugPair(a.ID, b.ID)],
			}
			if rec.Mechanism != nil {
				f.Mechanism = *rec.Mechanism
			}
			if rec.Management != nil {
				f.Management = *rec.Management
			}
			findings = append(findings, f)

			if f.Mechanism != "" {
				key := strings.ToLower(strings.TrimSpace(f.Mechanism))
				g := mechanisms[key]
				if g == nil {
					g = &mechanismGroup{display: f.Mechanism, members: map[uuid.UUID]string{}}
					mechanisms[key] = g
				}
				g.members[a.ID] = a.Name
				g.members[b.ID] = b.Name
			}
		}
	}

	cumulativeCount := 0
	for _, key := range sortedKeys(mechanisms) {
		g := mechanisms[key]
		if len(g.members) < cumulativeMinimum {
			continue
		}
		names := make([]string, 0, len(g.members))
		for _, name := range g.members {
			names = append(names, name)
		}
		sort.Strings(names)
		cumulativeCount++
		findings = append(findings, Finding{
			Kind:      FindingCumulative,
			Severity:  vocab.SeverityModerate,
			Drugs:     names,
			Mechanism: g.display,
			Message: fmt.Sprintf("%d medications share the same mechanism (%s). Flagged for clinician review.",
				len(names), g.display),
		})
	}

	dosage := dosageFindings(norms)
	findings = append(findings, dosage...)

	unmatchedCount := 0
	for _, n := range norms {
		if n.Matched || strings.TrimSpace(n.Mention.Name) == "" {
			continue
		}
		unmatchedCount++
		msg := fmt.Sprintf("Could not match '%s' against the drug vocabulary. Review manually.", n.Mention.Name)
		if n.BestCandidate != "" {
			msg = fmt.Sprintf("Could not confidently match '%s' (best candidate '%s', similarity %.2f). Review manually.",
				n.Mention.Name, n.BestCandidate, n.Confidence)
		}
		findings = append(findings, Finding{
			Kind:     FindingUnmatched,
			Severity: vocab.SeverityMinor,
			DrugA:    n.Mention.Name,
			Message:  msg,
		})
	}

	res := &CheckResult{Findings: findings}
	if res.Findings == nil {
		res.Findings = []Finding{}
	}
	for _, f := range res.Findings {
		res.MaxSeverity = vocab.MaxSeverity(res.MaxSeverity, f.Severity)
	}
	res.Recommendation = severityRecommendations[res.MaxSeverity]
	res.Summary = buildSummary(interactionCount, cumulativeCount, unmatchedCount, dosage)
	return res
}

// dosageFindings ports the dose and frequency heuristics: paracetamol
// single-dose and frequency limits, amoxicillin interval sanity, and
// duplicate entries. Rules key off the canonical name when the mention
// matched, the cleaned raw name otherwise.
func dosageFindings(norms []Normalization) []Finding {
	var out []Finding
	for _, n := range norms {
		name := drugKey(n)
		dose := strings.ToLower(n.Mention.Dose)
		freq := strings.ToLower(n.Mention.Frequency)

		if strings.Contains(name, "paracetamol") || strings.Contains(name, "acetaminophen") {
			if strings.Contains(dose, "1000") {
				out = append(out, Finding{
					Kind:     FindingDose,
					Severity: vocab.SeverityModerate,
					DrugA:    n.Mention.Name,
					Message:  "High single dose of paracetamol (1000 mg). Review total daily dose.",
				})
			}
			if strings.Contains(dose, "650") && (strings.Contains(freq, "three") || strings.Contains(freq, "four")) {
				out = append(out, Finding{
					Kind:     FindingFrequency,
					Severity: vocab.SeverityModerate,
					DrugA:    n.Mention.Name,
					Message:  "Paracetamol 650 mg taken ≥3 times daily may exceed safe limits.",
				})
			}
		}

		if strings.Contains(name, "amoxicillin") && !containsAny(freq, []string{"twice", "three", "every 8"}) {
			out = append(out, Finding{
				Kind:     FindingFrequency,
				Severity: vocab.SeverityMinor,
				DrugA:    n.Mention.Name,
				Message:  "Amoxicillin frequency looks uncommon; verify dosing interval.",
			})
		}
	}

	counts := map[string]int{}
	for _, n := range norms {
		if key := drugKey(n); key != "" {
			counts[key]++
		}
	}
	for _, key := range sortedKeys(counts) {
		if counts[key] > 1 {
			out = append(out, Finding{
				Kind:     FindingDuplicate,
				Severity: vocab.SeverityMinor,
				DrugA:    key,
				Message:  fmt.Sprintf("Duplicate medication entries detected for '%s'.", key),
			})
		}
	}
	return out
}

// drugKey is the lowercased identity a mention is deduplicated and
// rule-matched under.
func drugKey(n Normalization) string {
	if n.Matched && n.CanonicalName != "" {
		return strings.ToLower(n.CanonicalName)
	}
	return CleanName(n.Mention.Name)
}

func buildSummary(interactions, cumulative, unmatched int, dosage []Finding) string {
	var issues []string
	if interactions > 0 {
		issues = append(issues, fmt.Sprintf("%d potential drug interaction(s) detected", interactions))
	}
	if cumulative > 0 {
		issues = append(issues, "cumulative mechanism exposure flagged for review")
	}
	moderateDosage := false
	duplicates := false
	for _, f := range dosage {
		if f.Severity == vocab.SeverityModerate {
			moderateDosage = true
		}
		if f.Kind == FindingDuplicate {
			duplicates = true
		}
	}
	if moderateDosage {
		issues = append(issues, "dosage/frequency review recommended")
	}
	if duplicates {
		issues = append(issues, "duplicate entries found")
	}
	if unmatched > 0 {
		issues = append(issues, fmt.Sprintf("%d unrecognized medication(s) require review", unmatched))
	}
	if len(issues) == 0 {
		return "All medications look within expected ranges."
	}
	return upperFirst(strings.Join(issues, "; ")) + "."
}

func upperFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
