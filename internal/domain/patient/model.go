// Package patient owns the patient roster: demographics, known conditions,
// and the soft-delete lifecycle. Every other clinical domain hangs off a
// patient id issued here.
package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. Conditions is a free-form list of
// known diagnoses ("hypertension", "type 2 diabetes") used for display,
// not for scoring.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FullName    string     `db:"full_name" json:"full_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	BloodGroup  *string    `db:"blood_group" json:"blood_group,omitempty"`
	Conditions  []string   `db:"conditions" json:"conditions"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
