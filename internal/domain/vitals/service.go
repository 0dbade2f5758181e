package vitals

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordRequest is the ingestion payload. All measurements are optional
// but at least one must be present.
type RecordRequest struct {
	Systolic         *float64   `json:"systolic"`
	Diastolic        *float64   `json:"diastolic"`
	HeartRate        *float64   `json:"heart_rate"`
	Temperature      *float64   `json:"temperature"`
	BloodGlucose     *float64   `json:"blood_glucose"`
	OxygenSaturation *float64   `json:"oxygen_saturation"`
	Weight           *float64   `json:"weight"`
	Note             *string    `json:"note"`
	RecordedAt       *time.Time `json:"recorded_at"`
}

// bound rejects physiologically impossible values; devices and manual
// entry both produce the occasional fat-fingered reading.
type bound struct{ min, max float64 }

var plausible = map[Field]bound{
	FieldSystolic:         {40, 300},
	FieldDiastolic:        {20, 250},
	FieldHeartRate:        {20, 300},
	FieldTemperature:      {25, 45},
	FieldBloodGlucose:     {10, 1500},
	FieldOxygenSaturation: {50, 100},
}

// NewSample validates and normalizes an ingestion payload into a Sample
// ready for insertion. Pure: no storage access.
func (s *Service) NewSample(patientID uuid.UUID, req RecordRequest) (*Sample, error) {
	sample := &Sample{
		PatientID:        patientID,
		Systolic:         req.Systolic,
		Diastolic:        req.Diastolic,
		HeartRate:        req.HeartRate,
		Temperature:      req.Temperature,
		BloodGlucose:     req.BloodGlucose,
		OxygenSaturation: req.OxygenSaturation,
		Weight:           req.Weight,
		Note:             req.Note,
		RecordedAt:       time.Now().UTC(),
	}
	if req.RecordedAt != nil {
		sample.RecordedAt = req.RecordedAt.UTC()
	}
	if sample.RecordedAt.After(time.Now().UTC().Add(5 * time.Minute)) {
		return nil, fmt.Errorf("recorded_at is in the future")
	}

	// Clients mix units: clearly-Fahrenheit temperatures and pound
	// weights are converted before range checks.
	if sample.Temperature != nil && *sample.Temperature > 45 {
		c := round1((*sample.Temperature - 32) * 5 / 9)
		sample.Temperature = &c
	}
	if sample.Weight != nil && *sample.Weight > 200 {
		kg := round1(*sample.Weight / 2.20462)
		sample.Weight = &kg
	}

	if sample.Empty() {
		return nil, fmt.Errorf("at least one measurement is required")
	}

	for _, f := range Fields() {
		v := sample.Value(f)
		if v == nil {
			continue
		}
		b := plausible[f]
		if *v < b.min || *v > b.max {
			return nil, fmt.Errorf("%s value %.1f outside plausible range [%.0f, %.0f]", f, *v, b.min, b.max)
		}
	}
	if sample.Weight != nil && (*sample.Weight < 1 || *sample.Weight > 500) {
		return nil, fmt.Errorf("weight value %.1f outside plausible range [1, 500]", *sample.Weight)
	}
	return sample, nil
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func (s *Service) Insert(ctx context.Context, sample *Sample) error {
	return s.repo.Insert(ctx, sample)
}

// Window returns the samples recorded in [from, to], oldest first.
func (s *Service) Window(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Sample, error) {
	return s.repo.Window(ctx, patientID, from, to)
}

func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Sample, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Sample, error) {
	return s.repo.Latest(ctx, patientID)
}
