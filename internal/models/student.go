package models

import "time"

// Student holds the registrar's view of a student, including the placement
// level used by the eligibility evaluator. A nil placement level means the
// student never took the placement test.
type Student struct {
	ID             string    `db:"id" json:"id"`
	FullName       string    `db:"full_name" json:"full_name"`
	Email          string    `db:"email" json:"email"`
	PlacementLevel *int      `db:"placement_level" json:"placement_level,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
