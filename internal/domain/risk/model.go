// Package risk computes longitudinal risk scores from trailing windows of
// vitals. Scorers are pure functions registered per risk type; the score
// history is append-only so assessments can be compared over time.
package risk

import (
	"time"

	"github.com/google/uuid"
)

// Type names a supported risk assessment.
type Type string

const (
	TypeHypertension Type = "hypertension"
	TypeDiabetes     Type = "diabetes"
	// TypeHeartDisease is reserved in the data model; no scorer is
	// registered for it yet.
	TypeHeartDisease Type = "heart_disease"
)

// Risk levels, least to most severe.
const (
	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// methodHeuristicV1 tags scores produced by the rule-based engine so they
// can be told apart from future model-based scores.
const methodHeuristicV1 = "heuristic-v1"

// Score maps to the risk_scores table. Rows are never updated.
type Score struct {
	ID              uuid.UUID              `db:"id" json:"id"`
	PatientID       uuid.UUID              `db:"patient_id" json:"patient_id"`
	RiskType        Type                   `db:"risk_type" json:"risk_type"`
	Score           float64                `db:"score" json:"score"`
	RiskLevel       string                 `db:"risk_level" json:"risk_level"`
	Drivers         map[string]interface{} `db:"drivers" json:"drivers"`
	Recommendations []string               `db:"recommendations" json:"recommendations"`
	Method          string                 `db:"method" json:"method"`
	Confidence      float64                `db:"confidence_score" json:"confidence_score"`
	ComputedAt      time.Time              `db:"computed_at" json:"computed_at"`
}
