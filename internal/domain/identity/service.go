package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/carepulse/carepulse/internal/platform/auth"
	"github.com/carepulse/carepulse/internal/platform/db"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
)

const (
	bcryptCost = 10
	tokenTTL   = 24 * time.Hour
)

// ProfileCreator provisions the patient record linked to a self-registered
// patient account. Implemented by the patient service.
type ProfileCreator interface {
	CreatePatientProfile(ctx context.Context, fullName string) (uuid.UUID, error)
}

type Service struct {
	users    UserRepository
	profiles ProfileCreator
	secret   []byte
	runInTx  func(ctx context.Context, fn func(context.Context) error) error
}

func NewService(pool *pgxpool.Pool, users UserRepository, profiles ProfileCreator, secret []byte) *Service {
	return &Service{
		users:    users,
		profiles: profiles,
		secret:   secret,
		runInTx: func(ctx context.Context, fn func(context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		},
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Register creates an account and, for patient accounts, the linked
// patient record in the same transaction. Returns the user and a signed
// access token.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, string, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, "", fmt.Errorf("a valid email is required")
	}
	if len(req.Password) < 8 {
		return nil, "", fmt.Errorf("password must be at least 8 characters")
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, "", fmt.Errorf("full_name is required")
	}
	if req.Role == "" {
		req.Role = RolePatient
	}
	if !validRoles[req.Role] {
		return nil, "", fmt.Errorf("invalid role %q", req.Role)
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) && !isNotFound(err) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       true,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if user.Role == RolePatient && s.profiles != nil {
			pid, err := s.profiles.CreatePatientProfile(txCtx, user.FullName)
			if err != nil {
				return fmt.Errorf("creating patient profile: %w", err)
			}
			user.PatientID = &pid
		}
		return s.users.Create(txCtx, user)
	})
	if err != nil {
		// Unique index on email closes the check-then-create race.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login verifies credentials and returns the user and a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !user.Active {
		return nil, "", ErrAccountDisabled
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Me returns the account for the authenticated user id.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Service) issueToken(user *User) (string, error) {
	patientID := ""
	if user.PatientID != nil {
		patientID = user.PatientID.String()
	}
	token, err := auth.IssueUserToken(s.secret, user.ID.String(), patientID, []string{user.Role}, tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// isNotFound lets mock repositories signal absence without a pgx error.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
