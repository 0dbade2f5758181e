package chat

import (
	"fmt"
	"strings"
)

// maxContextLen bounds the context block sent to the collaborator.
const maxContextLen = 4000

// VitalsSnapshot is the most recent vitals reading, fields optional.
type VitalsSnapshot struct {
	Systolic    *float64
	Diastolic   *float64
	HeartRate   *float64
	Temperature *float64
	Glucose     *float64
	SpO2        *float64
}

// RiskLine is one current risk assessment.
type RiskLine struct {
	Type  string
	Level string
	Score float64
}

// ContextData carries the clinical facts used to ground a reply. It holds
// no direct identifiers; the collaborator sees age and measurements only.
type ContextData struct {
	AgeYears          int
	Gender            string
	Latest            *VitalsSnapshot
	Risks             []RiskLine
	PrescriptionCount int
	OpenAlertCount    int
}

// BuildContext renders the sanitized plain-text context block for a prompt.
func BuildContext(d ContextData) string {
	var b strings.Builder

	b.WriteString("PATIENT CONTEXT:\n")
	if d.AgeYears > 0 {
		fmt.Fprintf(&b, "- Age: %d years\n", d.AgeYears)
	} else {
		b.WriteString("- Age: unknown\n")
	}
	gender := d.Gender
	if gender == "" {
		gender = "Not specified"
	}
	fmt.Fprintf(&b, "- Gender: %s\n", gender)

	b.WriteString("\nCURRENT HEALTH DATA:\n")
	b.WriteString("- " + vitalsSummary(d.Latest) + "\n")
	b.WriteString("- " + riskSummary(d.Risks) + "\n")
	fmt.Fprintf(&b, "- Recent prescriptions: %d; Open alerts: %d\n", d.PrescriptionCount, d.OpenAlertCount)

	return Sanitize(b.String())
}

func vitalsSummary(v *VitalsSnapshot) string {
	if v == nil {
		return "No recent vitals data available."
	}

	var parts []string
	if v.Systolic != nil && v.Diastolic != nil {
		parts = append(parts, fmt.Sprintf("Blood pressure: %.0f/%.0f mmHg", *v.Systolic, *v.Diastolic))
	}
	if v.HeartRate != nil {
		parts = append(parts, fmt.Sprintf("Heart rate: %.0f BPM", *v.HeartRate))
	}
	if v.Temperature != nil {
		parts = append(parts, fmt.Sprintf("Temperature: %.1f°C", *v.Temperature))
	}
	if v.Glucose != nil {
		parts = append(parts, fmt.Sprintf("Blood glucose: %.0f mg/dL", *v.Glucose))
	}
	if v.SpO2 != nil {
		parts = append(parts, fmt.Sprintf("Oxygen saturation: %.0f%%", *v.SpO2))
	}
	if len(parts) == 0 {
		return "No recent vitals data available."
	}
	return "Latest vitals: " + strings.Join(parts, ", ")
}

func riskSummary(risks []RiskLine) string {
	if len(risks) == 0 {
		return "No risk assessments available."
	}

	parts := make([]string, 0, len(risks))
	for _, r := range risks {
		parts = append(parts, fmt.Sprintf("%s: %s risk (score: %.1f)", r.Type, r.Level, r.Score))
	}
	return "Current risk assessments: " + strings.Join(parts, ", ")
}

// Sanitize strips null bytes and control characters (newlines and tabs
// survive) and truncates the result to the context size limit.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0 {
			continue
		}
		if r < 32 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxContextLen {
		out = out[:maxContextLen]
	}
	return out
}
