package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrPatientInactive is returned for operations against a soft-deleted
// patient. Reads of the record itself still succeed.
var ErrPatientInactive = errors.New("patient is deactivated")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("full_name is required")
	}
	p.Active = true
	return s.repo.Create(ctx, p)
}

// CreatePatientProfile provisions a minimal record for a self-registered
// patient account. Satisfies identity.ProfileCreator.
func (s *Service) CreatePatientProfile(ctx context.Context, fullName string) (uuid.UUID, error) {
	p := &Patient{FullName: fullName}
	if err := s.CreatePatient(ctx, p); err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// RequireActive loads a patient and rejects soft-deleted records. Clinical
// writes (vitals, prescriptions) go through this gate.
func (s *Service) RequireActive(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPatientInactive
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("full_name is required")
	}
	current, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if !current.Active {
		return ErrPatientInactive
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Deactivate(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}
