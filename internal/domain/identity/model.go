// Package identity owns user accounts and authentication: registration,
// login, and the linkage between a user account and its patient record.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// Roles assignable to an account. Patients see only their own records,
// clinicians see their panel, admins see everything.
const (
	RolePatient   = "patient"
	RoleClinician = "clinician"
	RoleAdmin     = "admin"
)

var validRoles = map[string]bool{
	RolePatient:   true,
	RoleClinician: true,
	RoleAdmin:     true,
}

// User maps to the users table.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         string     `db:"role" json:"role"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
