package alerts

import (
	"fmt"
	"math"
	"strconv"

	"github.com/carepulse/carepulse/internal/domain/vitals"
)

// Defaults for the relative anomaly check.
const (
	DefaultDeviationFraction = 0.20
	DefaultMinHistory        = 3
)

// Rule is one absolute threshold on a vital sign. Above selects the
// direction of the comparison: value > Limit when true, value < Limit
// when false.
type Rule struct {
	Field          vitals.Field
	Above          bool
	Limit          float64
	Severity       Severity
	Title          string
	Qualifier      string
	Recommendation string
}

func (r Rule) matches(v float64) bool {
	if r.Above {
		return v > r.Limit
	}
	return v < r.Limit
}

// DefaultRules returns the emergency threshold table. Per field the
// rules are ordered most to least severe; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Field: vitals.FieldSystolic, Above: true, Limit: 180, Severity: SeverityUrgent,
			Title: "Hypertensive Crisis", Qualifier: "critically high",
			Recommendation: "Seek immediate medical attention"},
		{Field: vitals.FieldDiastolic, Above: true, Limit: 120, Severity: SeverityUrgent,
			Title: "Hypertensive Crisis", Qualifier: "critically high",
			Recommendation: "Seek immediate medical attention"},
		{Field: vitals.FieldHeartRate, Above: true, Limit: 120, Severity: SeveritySerious,
			Title: "Tachycardia", Qualifier: "elevated",
			Recommendation: "Monitor closely and consult healthcare provider"},
		{Field: vitals.FieldHeartRate, Above: false, Limit: 50, Severity: SeveritySerious,
			Title: "Bradycardia", Qualifier: "low",
			Recommendation: "Monitor closely and consult healthcare provider"},
		{Field: vitals.FieldOxygenSaturation, Above: false, Limit: 88, Severity: SeverityCritical,
			Title: "Severe Hypoxemia", Qualifier: "critically low",
			Recommendation: "Seek immediate medical attention"},
		{Field: vitals.FieldOxygenSaturation, Above: false, Limit: 90, Severity: SeverityUrgent,
			Title: "Hypoxemia", Qualifier: "critically low",
			Recommendation: "Seek immediate medical attention"},
		{Field: vitals.FieldOxygenSaturation, Above: false, Limit: 95, Severity: SeveritySerious,
			Title: "Low Oxygen", Qualifier: "below normal",
			Recommendation: "Monitor closely and consider medical consultation"},
		{Field: vitals.FieldBloodGlucose, Above: true, Limit: 300, Severity: SeverityUrgent,
			Title: "Severe Hyperglycemia", Qualifier: "dangerously high",
			Recommendation: "Seek immediate medical attention"},
		{Field: vitals.FieldBloodGlucose, Above: false, Limit: 70, Severity: SeverityUrgent,
			Title: "Hypoglycemia", Qualifier: "low",
			Recommendation: "Consume fast-acting carbohydrates and monitor"},
		{Field: vitals.FieldTemperature, Above: true, Limit: 39.0, Severity: SeveritySerious,
			Title: "High Fever", Qualifier: "elevated",
			Recommendation: "Monitor temperature and consider medical consultation"},
		{Field: vitals.FieldTemperature, Above: false, Limit: 35.0, Severity: SeveritySerious,
			Title: "Hypothermia", Qualifier: "low",
			Recommendation: "Seek warming measures and medical attention"},
	}
}

// Config tunes the engine. Zero values fall back to the defaults.
type Config struct {
	Rules             []Rule
	DeviationFraction float64
	MinHistory        int
}

// DefaultConfig returns the stock rule table and deviation settings.
func DefaultConfig() Config {
	return Config{
		Rules:             DefaultRules(),
		DeviationFraction: DefaultDeviationFraction,
		MinHistory:        DefaultMinHistory,
	}
}

// Engine evaluates vitals samples against absolute thresholds and a
// relative deviation check over recent history.
type Engine struct {
	rules      []Rule
	deviation  float64
	minHistory int
}

// NewEngine builds an engine from cfg, filling unset fields from the
// defaults.
func NewEngine(cfg Config) *Engine {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	if cfg.DeviationFraction <= 0 {
		cfg.DeviationFraction = DefaultDeviationFraction
	}
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = DefaultMinHistory
	}
	return &Engine{
		rules:      cfg.Rules,
		deviation:  cfg.DeviationFraction,
		minHistory: cfg.MinHistory,
	}
}

// Candidate is a detected anomaly before it is reconciled against the
// patient's open alerts.
type Candidate struct {
	Type           Type
	Severity       Severity
	RootCause      string
	Title          string
	Message        string
	Recommendation string
	Metadata       map[string]interface{}
}

// EvaluateVitals checks one sample against the threshold table, then
// runs the relative deviation check against history for every field
// that no absolute rule fired on. History must not include the sample
// itself. Candidates come back in field order, absolute before
// relative; each field yields at most one candidate, keyed by the field
// name so repeated runs reconcile against the same open alert.
func (e *Engine) EvaluateVitals(sample *vitals.Sample, history []*vitals.Sample) []Candidate {
	if sample == nil {
		return nil
	}

	var out []Candidate
	absolute := map[vitals.Field]bool{}

	for _, f := range vitals.Fields() {
		v := sample.Value(f)
		if v == nil {
			continue
		}
		for _, r := range e.rules {
			if r.Field != f || !r.matches(*v) {
				continue
			}
			info := vitals.Info(f)
			out = append(out, Candidate{
				Type:           TypeAnomaly,
				Severity:       r.Severity,
				RootCause:      string(f),
				Title:          r.Title,
				Message:        fmt.Sprintf("%s %s: %s", info.Display, r.Qualifier, valueWithUnit(*v, info.Unit)),
				Recommendation: r.Recommendation,
				Metadata: map[string]interface{}{
					"vital_type": string(f),
					"value":      *v,
				},
			})
			absolute[f] = true
			break
		}
	}

	if len(history) < e.minHistory {
		return out
	}

	for _, f := range vitals.Fields() {
		if absolute[f] {
			continue
		}
		v := sample.Value(f)
		if v == nil {
			continue
		}
		var vals []float64
		for _, h := range history {
			if hv := h.Value(f); hv != nil {
				vals = append(vals, *hv)
			}
		}
		if len(vals) < e.minHistory {
			continue
		}
		mean := average(vals)
		if mean <= 0 {
			continue
		}
		dev := math.Abs(*v-mean) / mean
		if dev <= e.deviation {
			continue
		}
		direction := "increased"
		if *v < mean {
			direction = "decreased"
		}
		info := vitals.Info(f)
		out = append(out, Candidate{
			Type:      TypeAnomaly,
			Severity:  SeverityMild,
			RootCause: string(f),
			Title:     fmt.Sprintf("%s Anomaly", info.Display),
			Message: fmt.Sprintf("%s %s by %d%% from recent average: %s %s",
				info.Display, direction, int(dev*100), formatValue(*v), info.Unit),
			Recommendation: "Monitor trend and consult healthcare provider if pattern continues",
			Metadata: map[string]interface{}{
				"vital_type":           string(f),
				"current_value":        *v,
				"historical_mean":      math.Round(mean*100) / 100,
				"deviation_percentage": math.Round(dev*1000) / 10,
			},
		})
	}

	return out
}

func average(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// valueWithUnit renders a measurement for threshold messages. The
// percent and degree units attach directly to the number.
func valueWithUnit(v float64, unit string) string {
	s := formatValue(v)
	if unit == "%" || unit == "°C" {
		return s + unit
	}
	return s + " " + unit
}
