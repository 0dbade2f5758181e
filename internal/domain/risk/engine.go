package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/carepulse/carepulse/internal/domain/vitals"
)

// ErrUnsupportedType is returned when no scorer is registered for the
// requested risk type. Distinct from an insufficient-data assessment:
// asking for heart_disease is a caller error, a window with no glucose
// readings is not.
var ErrUnsupportedType = errors.New("unsupported risk type")

// Config carries the tunable scoring thresholds. Defaults mirror AHA/ADA
// guideline cutoffs.
type Config struct {
	SystolicBaseline  float64
	SystolicWeight    float64
	DiastolicBaseline float64
	DiastolicWeight   float64
	HighSystolic      float64
	HighDiastolic     float64

	GlucoseNormal      float64
	GlucosePrediabetic float64
	GlucoseSpike       float64
}

func DefaultConfig() Config {
	return Config{
		SystolicBaseline:  120,
		SystolicWeight:    1.2,
		DiastolicBaseline: 80,
		DiastolicWeight:   1.5,
		HighSystolic:      140,
		HighDiastolic:     90,

		GlucoseNormal:      100,
		GlucosePrediabetic: 126,
		GlucoseSpike:       200,
	}
}

// Assessment is the outcome of scoring one risk type over one window.
// When the window carries no usable readings, InsufficientData is set and
// the zero score must not be read as "no risk".
type Assessment struct {
	Score            float64
	RiskLevel        string
	Drivers          map[string]interface{}
	Recommendations  []string
	Confidence       float64
	InsufficientData bool
}

type scorerFunc func(cfg Config, window []*vitals.Sample) Assessment

// Engine dispatches risk types to their scorers. Scoring is deterministic:
// the same window always produces the same assessment.
type Engine struct {
	cfg     Config
	scorers map[Type]scorerFunc
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		scorers: map[Type]scorerFunc{
			TypeHypertension: scoreHypertension,
			TypeDiabetes:     scoreDiabetes,
		},
	}
}

// Types returns the registered risk types in stable order.
func (e *Engine) Types() []Type {
	return []Type{TypeHypertension, TypeDiabetes}
}

// Supported reports whether a scorer is registered for the type.
func (e *Engine) Supported(t Type) bool {
	_, ok := e.scorers[t]
	return ok
}

// Compute scores one risk type over a window of samples.
func (e *Engine) Compute(t Type, window []*vitals.Sample) (Assessment, error) {
	scorer, ok := e.scorers[t]
	if !ok {
		return Assessment{}, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return scorer(e.cfg, window), nil
}

func scoreHypertension(cfg Config, window []*vitals.Sample) Assessment {
	// Only samples carrying both pressures count as a BP reading.
	var systolics, diastolics []float64
	for _, s := range window {
		if s.Systolic != nil && s.Diastolic != nil {
			systolics = append(systolics, *s.Systolic)
			diastolics = append(diastolics, *s.Diastolic)
		}
	}
	if len(systolics) == 0 {
		return Assessment{
			RiskLevel:        LevelLow,
			Drivers:          map[string]interface{}{"blood_pressure": "no_data"},
			InsufficientData: true,
		}
	}

	avgSys := mean(systolics)
	avgDia := mean(diastolics)

	score := math.Max(0, (avgSys-cfg.SystolicBaseline)*cfg.SystolicWeight) +
		math.Max(0, (avgDia-cfg.DiastolicBaseline)*cfg.DiastolicWeight)
	score = clamp(score, 0, 100)

	var level string
	switch {
	case score < 20:
		level = LevelLow
	case score < 50:
		level = LevelModerate
	case score < 80:
		level = LevelHigh
	default:
		level = LevelCritical
	}

	drivers := map[string]interface{}{
		"avg_systolic":   round1(avgSys),
		"avg_diastolic":  round1(avgDia),
		"readings_count": len(systolics),
	}
	if avgSys > cfg.HighSystolic {
		drivers["high_systolic"] = true
	}
	if avgDia > cfg.HighDiastolic {
		drivers["high_diastolic"] = true
	}

	var recs []string
	if score > 50 {
		recs = append(recs,
			"Monitor blood pressure daily",
			"Reduce sodium intake",
			"Increase physical activity")
	}
	if score > 75 {
		recs = append(recs,
			"Consult healthcare provider immediately",
			"Consider medication review")
	}

	return Assessment{
		Score:           round2(score),
		RiskLevel:       level,
		Drivers:         drivers,
		Recommendations: recs,
		Confidence:      math.Min(100, float64(len(systolics))*20),
	}
}

func scoreDiabetes(cfg Config, window []*vitals.Sample) Assessment {
	var readings []float64
	for _, s := range window {
		if s.BloodGlucose != nil {
			readings = append(readings, *s.BloodGlucose)
		}
	}
	if len(readings) == 0 {
		return Assessment{
			RiskLevel:        LevelLow,
			Drivers:          map[string]interface{}{"blood_glucose": "no_data"},
			InsufficientData: true,
		}
	}

	avg := mean(readings)
	peak := maxOf(readings)

	var score float64
	switch {
	case avg < cfg.GlucoseNormal:
		score = 0
	case avg < cfg.GlucosePrediabetic:
		score = 30 + (avg-cfg.GlucoseNormal)*1.5
	default:
		score = 70 + math.Min(30, (avg-cfg.GlucosePrediabetic)*0.5)
	}
	// A single random reading above the spike cutoff is diagnostic on
	// its own, so it sets a floor on the score.
	if peak > cfg.GlucoseSpike {
		score = math.Max(score, 80)
	}
	score = clamp(score, 0, 100)

	var level string
	switch {
	case score < 25:
		level = LevelLow
	case score < 50:
		level = LevelModerate
	case score < 75:
		level = LevelHigh
	default:
		level = LevelCritical
	}

	drivers := map[string]interface{}{
		"avg_glucose":    round1(avg),
		"max_glucose":    round1(peak),
		"readings_count": len(readings),
	}

	var recs []string
	if score > 30 {
		recs = append(recs,
			"Monitor blood glucose regularly",
			"Follow diabetic diet guidelines",
			"Maintain regular exercise routine")
	}
	if score > 70 {
		recs = append(recs,
			"Urgent medical consultation required",
			"Review medication adherence")
	}

	return Assessment{
		Score:           round2(score),
		RiskLevel:       level,
		Drivers:         drivers,
		Recommendations: recs,
		Confidence:      math.Min(100, float64(len(readings))*25),
	}
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func clamp(x, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, x)) }

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
