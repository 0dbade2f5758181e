package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows alert listings. Nil fields match everything.
type Filter struct {
	PatientID    *uuid.UUID
	Type         *Type
	Severity     *Severity
	Acknowledged *bool
}

// Repository is the persistence boundary for alerts.
type Repository interface {
	Insert(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	// FindOpenForUpdate locks the patient's open alert for the given
	// (type, root cause) key, returning (nil, nil) when there is none.
	// Callers must hold a transaction on the context.
	FindOpenForUpdate(ctx context.Context, patientID uuid.UUID, typ Type, rootCause string) (*Alert, error)
	// Upgrade rewrites the mutable fields of an open alert. It returns
	// pgx.ErrNoRows if the alert is gone or already acknowledged.
	Upgrade(ctx context.Context, a *Alert) error
	// Acknowledge closes an open alert. It returns pgx.ErrNoRows both
	// when the alert does not exist and when it is already closed;
	// callers disambiguate.
	Acknowledge(ctx context.Context, id, reviewerID uuid.UUID, at time.Time) (*Alert, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Alert, int, error)
	CountOpen(ctx context.Context) (int, error)
}
