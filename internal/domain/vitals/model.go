// Package vitals owns time-stamped vital sign samples. A sample is a
// sparse record: any subset of the tracked measurements may be present.
package vitals

import (
	"time"

	"github.com/google/uuid"
)

// Field identifies one tracked measurement on a sample.
type Field string

const (
	FieldSystolic         Field = "systolic"
	FieldDiastolic        Field = "diastolic"
	FieldHeartRate        Field = "heart_rate"
	FieldTemperature      Field = "temperature"
	FieldBloodGlucose     Field = "blood_glucose"
	FieldOxygenSaturation Field = "oxygen_saturation"
)

// FieldInfo carries the display name and unit used in alert messages.
type FieldInfo struct {
	Display string
	Unit    string
}

var fieldInfo = map[Field]FieldInfo{
	FieldSystolic:         {Display: "Systolic Blood Pressure", Unit: "mmHg"},
	FieldDiastolic:        {Display: "Diastolic Blood Pressure", Unit: "mmHg"},
	FieldHeartRate:        {Display: "Heart Rate", Unit: "BPM"},
	FieldTemperature:      {Display: "Temperature", Unit: "°C"},
	FieldBloodGlucose:     {Display: "Blood Glucose", Unit: "mg/dL"},
	FieldOxygenSaturation: {Display: "Oxygen Saturation", Unit: "%"},
}

// Fields returns the monitored measurements in stable order. Weight is
// stored but not monitored for anomalies.
func Fields() []Field {
	return []Field{
		FieldSystolic, FieldDiastolic, FieldHeartRate,
		FieldTemperature, FieldBloodGlucose, FieldOxygenSaturation,
	}
}

// Info returns display metadata for a field.
func Info(f Field) FieldInfo { return fieldInfo[f] }

// Sample maps to the vitals_samples table.
type Sample struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	Systolic         *float64  `db:"systolic" json:"systolic,omitempty"`
	Diastolic        *float64  `db:"diastolic" json:"diastolic,omitempty"`
	HeartRate        *float64  `db:"heart_rate" json:"heart_rate,omitempty"`
	Temperature      *float64  `db:"temperature" json:"temperature,omitempty"`
	BloodGlucose     *float64  `db:"blood_glucose" json:"blood_glucose,omitempty"`
	OxygenSaturation *float64  `db:"oxygen_saturation" json:"oxygen_saturation,omitempty"`
	Weight           *float64  `db:"weight" json:"weight,omitempty"`
	Note             *string   `db:"note" json:"note,omitempty"`
	RecordedAt       time.Time `db:"recorded_at" json:"recorded_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Value returns the measurement for a field, nil when absent.
func (s *Sample) Value(f Field) *float64 {
	switch f {
	case FieldSystolic:
		return s.Systolic
	case FieldDiastolic:
		return s.Diastolic
	case FieldHeartRate:
		return s.HeartRate
	case FieldTemperature:
		return s.Temperature
	case FieldBloodGlucose:
		return s.BloodGlucose
	case FieldOxygenSaturation:
		return s.OxygenSaturation
	default:
		return nil
	}
}

// Empty reports whether the sample carries no measurement at all.
func (s *Sample) Empty() bool {
	for _, f := range Fields() {
		if s.Value(f) != nil {
			return false
		}
	}
	return s.Weight == nil
}
