package medication

import (
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/carepulse/carepulse/internal/domain/vocab"
)

func ptrStr(s string) *string { return &s }

// testVocabulary builds a snapshot with a small formulary: three drugs
// sharing a bleeding-risk mechanism, one ACE inhibitor/NSAID pair, and a
// couple of interaction-free entries.
func testVocabulary() *vocab.Snapshot {
	lisinopril := &vocab.CanonicalDrug{ID: uuid.New(), Name: "Lisinopril", Aliases: []string{"prinivil", "zestril"}}
	ibuprofen := &vocab.CanonicalDrug{ID: uuid.New(), Name: "Ibuprofen", Aliases: []string{"advil", "brufen"}}
	paracetamol := &vocab.CanonicalDrug{ID: uuid.New(), Name: "Paracetamol", Aliases: []string{"acetaminophen", "crocin"}}
	warfarin := &vocab.CanonicalDrug{ID: uuid.New(), Name: "Warfarin", Aliases: []string{"coumadin"}}
	aspirin := &vocab.CanonicalDrug{ID: uuid.New(), Name: "Aspirin", Aliases: []string{"asa"}}
	amoxicillin := &vocab.CanonicalDrug{ID: uuid.New(), Name: "Amoxicillin", Aliases: []string{"amoxil"}}

	interactions := []*vocab.InteractionRecord{
		{
			ID: uuid.New(), DrugAID: lisinopril.ID, DrugBID: ibuprofen.ID,
			Severity:    vocab.SeverityMajor,
			Description: "NSAIDs may reduce the antihypertensive effect of ACE inhibitors.",
			Mechanism:   ptrStr("renal prostaglandin inhibition"),
			Management:  ptrStr("Monitor blood pressure and renal function."),
		},
		{
			ID: uuid.New(), DrugAID: warfarin.ID, DrugBID: ibuprofen.ID,
			Severity:    vocab.SeverityMajor,
			Description: "Increased risk of serious bleeding.",
			Mechanism:   ptrStr("Increased bleeding risk"),
			Management:  ptrStr("Avoid combination where possible."),
		},
		{
			ID: uuid.New(), DrugAID: warfarin.ID, DrugBID: aspirin.ID,
			Severity:    vocab.SeverityMajor,
			Description: "Combined anticoagulant and antiplatelet effect.",
			Mechanism:   ptrStr("Increased bleeding risk"),
		},
		{
			ID: uuid.New(), DrugAID: aspirin.ID, DrugBID: ibuprofen.ID,
			Severity:    vocab.SeverityModerate,
			Description: "Ibuprofen may reduce the cardioprotective effect of aspirin.",
			Mechanism:   ptrStr("Increased bleeding risk"),
		},
	}
	return vocab.BuildSnapshot(
		[]*vocab.CanonicalDrug{lisinopril, ibuprofen, paracetamol, warfarin, aspirin, amoxicillin},
		interactions,
	)
}

// matched builds a Normalization for a drug known to the snapshot.
func matched(t *testing.T, snap *vocab.Snapshot, name string, m Mention) Normalization {
	t.Helper()
	d, ok := snap.DrugByName(name)
	if !ok {
		t.Fatalf("fixture drug %q not in snapshot", name)
	}
	if m.Name == "" {
		m.Name = d.Name
	}
	return Normalization{Mention: m, Matched: true, DrugID: &d.ID, CanonicalName: d.Name, Confidence: 1}
}

func TestCheckPairwiseInteraction(t *testing.T) {
	snap := testVocabulary()
	norms := []Normalization{
		matched(t, snap, "lisinopril", Mention{}),
		matched(t, snap, "ibuprofen", Mention{}),
	}

	res := Check(snap, norms, nil)
	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d: %+v", len(res.Findings), res.Findings)
	}
	f := res.Findings[0]
	if f.Kind != FindingInteraction {
		t.Errorf("kind = %q, want interaction", f.Kind)
	}
	if f.Severity != vocab.SeverityMajor {
		t.Errorf("severity = %q, want major", f.Severity)
	}
	if f.DrugA != "Ibuprofen" || f.DrugB != "Lisinopril" {
		t.Errorf("pair = %q/%q, want Ibuprofen/Lisinopril", f.DrugA, f.DrugB)
	}
	wantMsg := "Interaction: Ibuprofen + Lisinopril — NSAIDs may reduce the antihypertensive effect of ACE inhibitors."
	if f.Message != wantMsg {
		t.Errorf("message = %q, want %q", f.Message, wantMsg)
	}
	if f.Management != "Monitor blood pressure and renal function." {
		t.Errorf("management = %q", f.Management)
	}
	if res.MaxSeverity != vocab.SeverityMajor {
		t.Errorf("max severity = %q, want major", res.MaxSeverity)
	}
	if res.Recommendation != severityRecommendations[vocab.SeverityMajor] {
		t.Errorf("recommendation = %q", res.Recommendation)
	}
	if res.Summary != "1 potential drug interaction(s) detected." {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestCheckSymmetric(t *testing.T) {
	snap := testVocabulary()
	ab := Check(snap, []Normalization{
		matched(t, snap, "lisinopril", Mention{}),
		matched(t, snap, "ibuprofen", Mention{}),
	}, nil)
	ba := Check(snap, []Normalization{
		matched(t, snap, "ibuprofen", Mention{}),
		matched(t, snap, "lisinopril", Mention{}),
	}, nil)
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("check not symmetric:\n a,b: %+v\n b,a: %+v", ab, ba)
	}
}

func TestCheckEmptyAndSingleList(t *testing.T) {
	snap := testVocabulary()

	res := Check(snap, nil, nil)
	if len(res.Findings) != 0 {
		t.Fatalf("empty list: expected no findings, got %+v", res.Findings)
	}
	if res.Findings == nil {
		t.Error("findings should be empty, not nil")
	}
	if res.MaxSeverity != "" || res.Recommendation != "" {
		t.Errorf("empty list: severity %q recommendation %q", res.MaxSeverity, res.Recommendation)
	}
	if res.Summary != "All medications look within expected ranges." {
		t.Errorf("summary = %q", res.Summary)
	}

	single := Check(snap, []Normalization{matched(t, snap, "aspirin", Mention{})}, nil)
	if len(single.Findings) != 0 {
		t.Fatalf("single drug: expected no findings, got %+v", single.Findings)
	}
}

func TestCheckCumulativeMechanism(t *testing.T) {
	snap := testVocabulary()
	norms := []Normalization{
		matched(t, snap, "warfarin", Mention{}),
		matched(t, snap, "aspirin", Mention{}),
		matched(t, snap, "ibuprofen", Mention{}),
	}

	res := Check(snap, norms, nil)
	var cumulative *Finding
	interactionCount := 0
	for i := range res.Findings {
		switch res.Findings[i].Kind {
		case FindingInteraction:
			interactionCount++
		case FindingCumulative:
			cumulative = &res.Findings[i]
		}
	}
	if interactionCount != 3 {
		t.Errorf("expected 3 pairwise findings, got %d", interactionCount)
	}
	if cumulative == nil {
		t.Fatalf("expected a cumulative finding, got %+v", res.Findings)
	}
	if cumulative.Severity != vocab.SeverityModerate {
		t.Errorf("cumulative severity = %q, want moderate (never auto-escalated)", cumulative.Severity)
	}
	wantDrugs := []string{"Aspirin", "Ibuprofen", "Warfarin"}
	if !reflect.DeepEqual(cumulative.Drugs, wantDrugs) {
		t.Errorf("cumulative drugs = %v, want %v", cumulative.Drugs, wantDrugs)
	}
	if cumulative.RootCause() != "cumulative:increased bleeding risk" {
		t.Errorf("root cause = %q", cumulative.RootCause())
	}
	// Pairwise majors dominate the overall rating; the cumulative
	// finding stays at moderate.
	if res.MaxSeverity != vocab.SeverityMajor {
		t.Errorf("max severity = %q, want major", res.MaxSeverity)
	}
	if !strings.Contains(res.Summary, "3 potential drug interaction(s) detected") ||
		!strings.Contains(res.Summary, "cumulative mechanism exposure flagged for review") {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestCheckTwoDrugsSharedMechanismNoCumulative(t *testing.T) {
	snap := testVocabulary()
	norms := []Normalization{
		matched(t, snap, "warfarin", Mention{}),
		matched(t, snap, "aspirin", Mention{}),
	}
	res := Check(snap, norms, nil)
	for _, f := range res.Findings {
		if f.Kind == FindingCumulative {
			t.Fatalf("two drugs must not produce a cumulative finding: %+v", f)
		}
	}
}

func TestCheckOverrideSuppressesAlertNotFinding(t *testing.T) {
	snap := testVocabulary()
	lis, _ := snap.DrugByName("lisinopril")
	ibu, _ := snap.DrugByName("ibuprofen")
	// Reversed pair order: suppression must be order-insensitive.
	overrides := []*InteractionOverride{{
		ID: uuid.New(), PatientID: uuid.New(), DrugAID: ibu.ID, DrugBID: lis.ID, ReviewerID: uuid.New(),
	}}

	res := Check(snap, []Normalization{
		matched(t, snap, "lisinopril", Mention{}),
		matched(t, snap, "ibuprofen", Mention{}),
	}, overrides)

	if len(res.Findings) != 1 {
		t.Fatalf("finding must still be reported, got %+v", res.Findings)
	}
	f := res.Findings[0]
	if !f.Suppressed {
		t.Error("finding should be marked suppressed")
	}
	if f.AlertWorthy() {
		t.Error("suppressed finding must not be alert-worthy")
	}
	if res.MaxSeverity != vocab.SeverityMajor {
		t.Errorf("suppression must not change the overall rating, got %q", res.MaxSeverity)
	}
}

func TestCheckDosageRules(t *testing.T) {
	snap := testVocabulary()

	t.Run("paracetamol high single dose", func(t *testing.T) {
		norms := []Normalization{matched(t, snap, "paracetamol", Mention{Dose: "1000 mg"})}
		res := Check(snap, norms, nil)
		f := findKind(t, res.Findings, FindingDose)
		if f.Severity != vocab.SeverityModerate {
			t.Errorf("severity = %q, want moderate", f.Severity)
		}
		if f.Message != "High single dose of paracetamol (1000 mg). Review total daily dose." {
			t.Errorf("message = %q", f.Message)
		}
	})

	t.Run("paracetamol 650 three times daily", func(t *testing.T) {
		norms := []Normalization{matched(t, snap, "crocin", Mention{Dose: "650 mg", Frequency: "Three times a day"})}
		res := Check(snap, norms, nil)
		f := findKind(t, res.Findings, FindingFrequency)
		if f.Message != "Paracetamol 650 mg taken ≥3 times daily may exceed safe limits." {
			t.Errorf("message = %q", f.Message)
		}
	})

	t.Run("amoxicillin uncommon frequency", func(t *testing.T) {
		norms := []Normalization{matched(t, snap, "amoxicillin", Mention{Frequency: "once daily"})}
		res := Check(snap, norms, nil)
		f := findKind(t, res.Findings, FindingFrequency)
		if f.Severity != vocab.SeverityMinor {
			t.Errorf("severity = %q, want minor", f.Severity)
		}
		if f.Message != "Amoxicillin frequency looks uncommon; verify dosing interval." {
			t.Errorf("message = %q", f.Message)
		}
	})

	t.Run("amoxicillin twice daily passes", func(t *testing.T) {
		norms := []Normalization{matched(t, snap, "amoxicillin", Mention{Frequency: "Twice daily"})}
		res := Check(snap, norms, nil)
		if len(res.Findings) != 0 {
			t.Fatalf("expected no findings, got %+v", res.Findings)
		}
	})

	t.Run("moderate dosage finding reaches summary", func(t *testing.T) {
		norms := []Normalization{matched(t, snap, "paracetamol", Mention{Dose: "1000 mg"})}
		res := Check(snap, norms, nil)
		if res.Summary != "Dosage/frequency review recommended." {
			t.Errorf("summary = %q", res.Summary)
		}
	})
}

func TestCheckDuplicateEntries(t *testing.T) {
	snap := testVocabulary()
	// Same canonical drug via canonical name and brand alias.
	norms := []Normalization{
		matched(t, snap, "paracetamol", Mention{Name: "Paracetamol 500mg"}),
		matched(t, snap, "crocin", Mention{Name: "Crocin"}),
	}

	res := Check(snap, norms, nil)
	f := findKind(t, res.Findings, FindingDuplicate)
	if f.Message != "Duplicate medication entries detected for 'paracetamol'." {
		t.Errorf("message = %q", f.Message)
	}
	if res.Summary != "Duplicate entries found." {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestCheckUnmatchedReported(t *testing.T) {
	snap := testVocabulary()
	norms := []Normalization{
		{Mention: Mention{Name: "Xydrozil"}, Confidence: 0.55, BestCandidate: "lisinopril"},
		{Mention: Mention{Name: ""}},
	}

	res := Check(snap, norms, nil)
	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding (empty names are skipped), got %+v", res.Findings)
	}
	f := res.Findings[0]
	if f.Kind != FindingUnmatched || f.Severity != vocab.SeverityMinor {
		t.Errorf("kind/severity = %q/%q", f.Kind, f.Severity)
	}
	if !strings.Contains(f.Message, "best candidate 'lisinopril'") {
		t.Errorf("message = %q", f.Message)
	}
	if f.AlertWorthy() {
		t.Error("unmatched findings must not raise alerts")
	}
	if !strings.Contains(res.Summary, "1 unrecognized medication(s) require review") {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestCheckDeterminism(t *testing.T) {
	snap := testVocabulary()
	norms := []Normalization{
		matched(t, snap, "warfarin", Mention{Dose: "5 mg"}),
		matched(t, snap, "aspirin", Mention{}),
		matched(t, snap, "ibuprofen", Mention{}),
		{Mention: Mention{Name: "Mysterin"}, Confidence: 0.4, BestCandidate: "aspirin"},
	}
	first := Check(snap, norms, nil)
	second := Check(snap, norms, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("check is not deterministic:\n first: %+v\n second: %+v", first, second)
	}
}

func TestFindingRootCause(t *testing.T) {
	interaction := Finding{Kind: FindingInteraction, DrugA: "Lisinopril", DrugB: "Ibuprofen"}
	if got := interaction.RootCause(); got != "interaction:ibuprofen+lisinopril" {
		t.Errorf("root cause = %q", got)
	}
	reversed := Finding{Kind: FindingInteraction, DrugA: "Ibuprofen", DrugB: "Lisinopril"}
	if interaction.RootCause() != reversed.RootCause() {
		t.Error("root cause must be order-insensitive")
	}
	dose := Finding{Kind: FindingDose}
	if dose.RootCause() != "" {
		t.Errorf("dose findings have no root cause, got %q", dose.RootCause())
	}
}

func findKind(t *testing.T, findings []Finding, kind FindingKind) Finding {
	t.Helper()
	for _, f := range findings {
		if f.Kind == kind {
			return f
		}
	}
	t.Fatalf("no %q finding in %+v", kind, findings)
	return Finding{}
}
