package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepulse/carepulse/internal/domain/alerts"
	"github.com/carepulse/carepulse/internal/domain/medication"
	"github.com/carepulse/carepulse/internal/domain/patient"
	"github.com/carepulse/carepulse/internal/domain/risk"
	"github.com/carepulse/carepulse/internal/domain/vitals"
	"github.com/carepulse/carepulse/internal/domain/vocab"
	"github.com/carepulse/carepulse/internal/platform/metrics"
)

// ErrInvalidInput wraps payload validation failures so handlers can
// answer 422 instead of 500.
var ErrInvalidInput = errors.New("invalid payload")

// DefaultWindowDays is the trailing window for risk scoring and the
// relative anomaly baseline.
const DefaultWindowDays = 7

const (
	statusOK      = "ok"
	statusPartial = "partial"
	statusError   = "error"
)

// The orchestrator consumes narrow views of the domain services so runs
// can be exercised against fakes.
type (
	PatientGate interface {
		RequireActive(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	}

	VitalsRecorder interface {
		NewSample(patientID uuid.UUID, req vitals.RecordRequest) (*vitals.Sample, error)
		Insert(ctx context.Context, sample *vitals.Sample) error
		Window(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*vitals.Sample, error)
	}

	RiskScorer interface {
		Types() []risk.Type
		Compute(t risk.Type, window []*vitals.Sample) (risk.Assessment, error)
	}

	RiskRecorder interface {
		Record(ctx context.Context, patientID uuid.UUID, t risk.Type, a risk.Assessment) (*risk.Score, error)
	}

	AnomalyDetector interface {
		EvaluateVitals(sample *vitals.Sample, history []*vitals.Sample) []alerts.Candidate
	}

	AlertRaiser interface {
		Raise(ctx context.Context, patientID uuid.UUID, c alerts.Candidate) (*alerts.Alert, alerts.Outcome, error)
	}

	PrescriptionStore interface {
		SavePrescription(ctx context.Context, p *medication.Prescription) error
		Overrides(ctx context.Context, patientID uuid.UUID) ([]*medication.InteractionOverride, error)
	}

	TextExtractor interface {
		Enabled() bool
		ExtractText(ctx context.Context, doc []byte, contentType string) (string, error)
	}
)

// Deps wires the orchestrator. Nil Normalizer falls back to the default
// threshold and metric; WindowDays <= 0 falls back to DefaultWindowDays.
type Deps struct {
	Patients      PatientGate
	Vitals        VitalsRecorder
	RiskEngine    RiskScorer
	Risk          RiskRecorder
	AnomalyEngine AnomalyDetector
	Alerts        AlertRaiser
	Prescriptions PrescriptionStore
	Vocabulary    medication.SnapshotSource
	Normalizer    *medication.Normalizer
	OCR           TextExtractor
	Logger        zerolog.Logger
	WindowDays    int
}

// Orchestrator runs the decision support sequence. Runs are not atomic
// across stages: a failed stage leaves earlier writes in place and the
// trigger can be retried. Scoring recomputes idempotently and alert
// raising reconciles against open alerts, so retries do not duplicate.
type Orchestrator struct {
	patients      PatientGate
	vitals        VitalsRecorder
	riskEngine    RiskScorer
	risk          RiskRecorder
	anomalyEngine AnomalyDetector
	alerts        AlertRaiser
	prescriptions PrescriptionStore
	vocabulary    medication.SnapshotSource
	normalizer    *medication.Normalizer
	ocr           TextExtractor
	logger        zerolog.Logger
	window        time.Duration
	locks         *patientLocks
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.WindowDays <= 0 {
		d.WindowDays = DefaultWindowDays
	}
	if d.Normalizer == nil {
		d.Normalizer = medication.NewNormalizer(0, nil)
	}
	return &Orchestrator{
		patients:      d.Patients,
		vitals:        d.Vitals,
		riskEngine:    d.RiskEngine,
		risk:          d.Risk,
		anomalyEngine: d.AnomalyEngine,
		alerts:        d.Alerts,
		prescriptions: d.Prescriptions,
		vocabulary:    d.Vocabulary,
		normalizer:    d.Normalizer,
		ocr:           d.OCR,
		logger:        d.Logger,
		window:        time.Duration(d.WindowDays) * 24 * time.Hour,
		locks:         newPatientLocks(),
	}
}

// AlertOutcome pairs a raised alert with how it was reconciled against
// the patient's open alerts.
type AlertOutcome struct {
	Alert   *alerts.Alert  `json:"alert"`
	Outcome alerts.Outcome `json:"outcome"`
}

// VitalsRunResult reports everything one vitals trigger produced.
type VitalsRunResult struct {
	Sample     *vitals.Sample `json:"sample"`
	RiskScores []*risk.Score  `json:"risk_scores"`
	Alerts     []AlertOutcome `json:"alerts"`
}

// RunVitals executes the vitals trigger: validate and store the sample,
// recompute every registered risk type over the trailing window, then
// evaluate the sample for anomalies and reconcile the candidates into
// alerts. The patient's lock is held for the whole run.
func (o *Orchestrator) RunVitals(ctx context.Context, patientID uuid.UUID, req vitals.RecordRequest) (*VitalsRunResult, error) {
	start := time.Now()

	if _, err := o.patients.RequireActive(ctx, patientID); err != nil {
		return nil, err
	}
	sample, err := o.vitals.NewSample(patientID, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	unlock := o.locks.acquire(patientID)
	defer unlock()

	if err := o.vitals.Insert(ctx, sample); err != nil {
		o.finish(start, statusError)
		return nil, fmt.Errorf("storing sample: %w", err)
	}

	now := time.Now().UTC()
	window, err := o.vitals.Window(ctx, patientID, now.Add(-o.window), now)
	if err != nil {
		o.finish(start, statusError)
		return nil, fmt.Errorf("loading vitals window: %w", err)
	}

	result := &VitalsRunResult{
		Sample:     sample,
		RiskScores: []*risk.Score{},
		Alerts:     []AlertOutcome{},
	}

	for _, t := range o.riskEngine.Types() {
		a, err := o.riskEngine.Compute(t, window)
		if err != nil {
			o.finish(start, statusError)
			return nil, fmt.Errorf("scoring %s: %w", t, err)
		}
		score, err := o.risk.Record(ctx, patientID, t, a)
		if err != nil {
			o.finish(start, statusError)
			return nil, err
		}
		metrics.RecordRiskScore(string(t), a.RiskLevel)
		result.RiskScores = append(result.RiskScores, score)
	}

	// The stored window includes the sample just written; the relative
	// anomaly baseline must not.
	history := make([]*vitals.Sample, 0, len(window))
	for _, h := range window {
		if h.ID != sample.ID {
			history = append(history, h)
		}
	}

	for _, c := range o.anomalyEngine.EvaluateVitals(sample, history) {
		alert, outcome, err := o.alerts.Raise(ctx, patientID, c)
		if err != nil {
			o.finish(start, statusError)
			return nil, fmt.Errorf("raising %s alert: %w", c.RootCause, err)
		}
		result.Alerts = append(result.Alerts, AlertOutcome{Alert: alert, Outcome: outcome})
	}

	o.finish(start, statusOK)
	o.logger.Info().
		Str("patient_id", patientID.String()).
		Int("risk_scores", len(result.RiskScores)).
		Int("alerts", len(result.Alerts)).
		Msg("vitals pipeline run complete")
	return result, nil
}

// PrescriptionInput is one prescription trigger: either raw text or an
// uploaded document for OCR.
type PrescriptionInput struct {
	Text        string
	Document    []byte
	ContentType string
	Filename    string
}

// PrescriptionRunResult reports everything one prescription trigger
// produced. MaxSeverity and Recommendation summarize the findings.
type PrescriptionRunResult struct {
	Prescription   *medication.Prescription `json:"prescription"`
	MaxSeverity    vocab.Severity           `json:"max_severity,omitempty"`
	Recommendation string                   `json:"recommendation,omitempty"`
	Alerts         []AlertOutcome           `json:"alerts"`
}

// RunPrescription executes the prescription trigger: extract text when a
// document was uploaded (degrading to a partial run if OCR is down),
// parse mentions, normalize against the vocabulary snapshot, check
// interactions with the patient's overrides applied, persist the
// prescription with its analysis, and raise alerts for the unsuppressed
// interaction findings.
func (o *Orchestrator) RunPrescription(ctx context.Context, patientID, uploadedBy uuid.UUID, in PrescriptionInput) (*PrescriptionRunResult, error) {
	start := time.Now()

	if _, err := o.patients.RequireActive(ctx, patientID); err != nil {
		return nil, err
	}

	unlock := o.locks.acquire(patientID)
	defer unlock()

	p := &medication.Prescription{
		PatientID:  patientID,
		UploadedBy: uploadedBy,
		Source:     medication.SourceText,
		RawText:    in.Text,
		Status:     medication.StatusCompleted,
		UploadedAt: time.Now().UTC(),
	}
	if in.Filename != "" {
		p.Filename = &in.Filename
	}

	if len(in.Document) > 0 {
		p.Source = medication.SourceDocument
		text, gap := o.extractText(ctx, in)
		p.RawText = text
		if gap != "" {
			p.Status = medication.StatusPartial
			p.Gaps = append(p.Gaps, gap)
		}
	}

	snap := o.vocabulary.Snapshot()
	if snap.DrugCount() == 0 {
		p.Gaps = append(p.Gaps, "drug vocabulary is empty; no mention can be matched")
	}

	p.Mentions = medication.ParseFreeText(p.RawText)
	if len(p.Mentions) == 0 && strings.TrimSpace(p.RawText) != "" {
		p.Gaps = append(p.Gaps, "no medication mentions recognized in the text")
	}

	p.Normalizations = o.normalizer.Normalize(snap, p.Mentions)

	overrides, err := o.prescriptions.Overrides(ctx, patientID)
	if err != nil {
		o.finish(start, statusError)
		return nil, fmt.Errorf("loading interaction overrides: %w", err)
	}

	res := medication.Check(snap, p.Normalizations, overrides)
	p.Findings = res.Findings
	p.Summary = res.Summary

	if err := o.prescriptions.SavePrescription(ctx, p); err != nil {
		o.finish(start, statusError)
		return nil, fmt.Errorf("storing prescription: %w", err)
	}

	result := &PrescriptionRunResult{
		Prescription:   p,
		MaxSeverity:    res.MaxSeverity,
		Recommendation: res.Recommendation,
		Alerts:         []AlertOutcome{},
	}
	for _, fnd := range res.Findings {
		if !fnd.AlertWorthy() {
			continue
		}
		alert, outcome, err := o.alerts.Raise(ctx, patientID, candidateFromFinding(fnd, p.ID))
		if err != nil {
			o.finish(start, statusError)
			return nil, fmt.Errorf("raising interaction alert: %w", err)
		}
		result.Alerts = append(result.Alerts, AlertOutcome{Alert: alert, Outcome: outcome})
	}

	status := statusOK
	if p.Status == medication.StatusPartial {
		status = statusPartial
	}
	o.finish(start, status)
	o.logger.Info().
		Str("patient_id", patientID.String()).
		Str("prescription_id", p.ID.String()).
		Str("status", string(p.Status)).
		Int("mentions", len(p.Mentions)).
		Int("findings", len(p.Findings)).
		Int("alerts", len(result.Alerts)).
		Msg("prescription pipeline run complete")
	return result, nil
}

// extractText runs OCR on an uploaded document. A missing or failing
// collaborator degrades the run instead of failing it: the prescription
// is stored for later re-processing and the gap says why.
func (o *Orchestrator) extractText(ctx context.Context, in PrescriptionInput) (text, gap string) {
	if o.ocr == nil || !o.ocr.Enabled() {
		return "", "ocr service not configured; document text was not extracted"
	}
	text, err := o.ocr.ExtractText(ctx, in.Document, in.ContentType)
	if err != nil {
		o.logger.Warn().Err(err).Msg("ocr extraction failed, storing prescription without analysis")
		return "", "document text extraction failed; medication analysis skipped"
	}
	return text, ""
}

func candidateFromFinding(f medication.Finding, prescriptionID uuid.UUID) alerts.Candidate {
	md := map[string]interface{}{
		"prescription_id": prescriptionID.String(),
	}
	title := "Drug Interaction"
	switch f.Kind {
	case medication.FindingInteraction:
		md["drug_a"] = f.DrugA
		md["drug_b"] = f.DrugB
		if f.Mechanism != "" {
			md["mechanism"] = f.Mechanism
		}
		title = fmt.Sprintf("Drug Interaction: %s + %s", f.DrugA, f.DrugB)
	case medication.FindingCumulative:
		md["drugs"] = f.Drugs
		md["mechanism"] = f.Mechanism
		title = "Cumulative Medication Exposure"
	}
	return alerts.Candidate{
		Type:           alerts.TypeDrugInteraction,
		Severity:       alerts.FromInteractionSeverity(f.Severity),
		RootCause:      f.RootCause(),
		Title:          title,
		Message:        f.Message,
		Recommendation: f.Management,
		Metadata:       md,
	}
}

func (o *Orchestrator) finish(start time.Time, status string) {
	metrics.RecordPipelineRun(status, time.Since(start))
}
