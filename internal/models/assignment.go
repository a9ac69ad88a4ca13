package models

import "time"

// Assignment is gradeable work attached to a section.
type Assignment struct {
	ID          string     `db:"id" json:"id"`
	SectionID   string     `db:"section_id" json:"section_id"`
	Title       string     `db:"title" json:"title"`
	TotalPoints float64    `db:"total_points" json:"total_points"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	IsPublished bool       `db:"is_published" json:"is_published"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// AssignmentFilter defines filter criteria for listing assignments.
type AssignmentFilter struct {
	SectionID   string
	IsPublished *bool
	Page        int
	PageSize    int
}
