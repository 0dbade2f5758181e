package main

import (
	"testing"
	"time"

	"github.com/carepulse/carepulse/internal/domain/vitals"
)

func TestAgeYears(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		dob  time.Time
		want int
	}{
		{"birthday passed this year", time.Date(1990, 3, 1, 0, 0, 0, 0, time.UTC), 36},
		{"birthday later this year", time.Date(1990, 10, 1, 0, 0, 0, 0, time.UTC), 35},
		{"birthday today", time.Date(2000, 6, 15, 0, 0, 0, 0, time.UTC), 26},
		{"infant", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), 0},
		{"future date clamps to zero", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ageYears(tt.dob, now); got != tt.want {
				t.Errorf("ageYears(%v) = %d, want %d", tt.dob, got, tt.want)
			}
		})
	}
}

func TestVitalsContext(t *testing.T) {
	if got := vitalsContext(nil); got != nil {
		t.Fatalf("vitalsContext(nil) = %v, want nil", got)
	}

	sys, dia, hr := 120.0, 80.0, 72.0
	s := &vitals.Sample{Systolic: &sys, Diastolic: &dia, HeartRate: &hr}

	got := vitalsContext(s)
	if got == nil {
		t.Fatal("vitalsContext returned nil for a populated sample")
	}
	if got.Systolic == nil || *got.Systolic != 120 {
		t.Errorf("Systolic = %v, want 120", got.Systolic)
	}
	if got.Diastolic == nil || *got.Diastolic != 80 {
		t.Errorf("Diastolic = %v, want 80", got.Diastolic)
	}
	if got.HeartRate == nil || *got.HeartRate != 72 {
		t.Errorf("HeartRate = %v, want 72", got.HeartRate)
	}
	if got.Temperature != nil || got.Glucose != nil || got.SpO2 != nil {
		t.Error("unset measurements should stay nil in the snapshot")
	}
}
