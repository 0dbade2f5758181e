// Package alerts implements the anomaly and alert engine: absolute
// emergency thresholds, relative deviation detection against a trailing
// window, and the alert lifecycle. An alert is open until a reviewer
// acknowledges it; while open it is deduplicated by (patient, type, root
// cause) and may only be upgraded in severity, never duplicated.
package alerts

import (
	"time"

	"github.com/google/uuid"

	"github.com/carepulse/carepulse/internal/domain/vocab"
)

// Severity tiers an alert for routing and display.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeveritySerious  Severity = "serious"
	SeverityUrgent   Severity = "urgent"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityMild:     1,
	SeveritySerious:  2,
	SeverityUrgent:   3,
	SeverityCritical: 4,
}

// Rank orders severities; unknown values rank below mild.
func (s Severity) Rank() int { return severityRank[s] }

// Outranks reports whether s is strictly more severe than other.
func (s Severity) Outranks(other Severity) bool { return s.Rank() > other.Rank() }

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return severityRank[s] != 0 }

// Type distinguishes vitals-driven alerts from medication-driven ones.
type Type string

const (
	TypeAnomaly         Type = "anomaly"
	TypeDrugInteraction Type = "drug_interaction"
)

// Valid reports whether t is a known alert type.
func (t Type) Valid() bool { return t == TypeAnomaly || t == TypeDrugInteraction }

// FromInteractionSeverity maps vocabulary interaction severities onto
// alert tiers.
func FromInteractionSeverity(s vocab.Severity) Severity {
	switch s {
	case vocab.SeverityMinor:
		return SeverityMild
	case vocab.SeverityModerate:
		return SeveritySerious
	case vocab.SeverityMajor:
		return SeverityUrgent
	case vocab.SeverityContraindicated:
		return SeverityCritical
	default:
		return SeverityMild
	}
}

// Alert maps to the alerts table. Alerts are an audit trail: created by
// the pipeline, mutated only by a severity upgrade while open or by the
// acknowledge transition, never deleted.
type Alert struct {
	ID             uuid.UUID              `db:"id" json:"id"`
	PatientID      uuid.UUID              `db:"patient_id" json:"patient_id"`
	Type           Type                   `db:"type" json:"type"`
	Severity       Severity               `db:"severity" json:"severity"`
	RootCause      string                 `db:"root_cause" json:"root_cause"`
	Title          string                 `db:"title" json:"title"`
	Message        string                 `db:"message" json:"message"`
	Recommendation string                 `db:"recommendation" json:"recommendation,omitempty"`
	Metadata       map[string]interface{} `db:"metadata" json:"metadata"`
	Acknowledged   bool                   `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy *uuid.UUID             `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time             `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `db:"updated_at" json:"updated_at"`
}
