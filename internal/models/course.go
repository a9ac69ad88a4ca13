package models

import (
	"time"

	"github.com/lib/pq"
)

// Course represents a course offered within a session. The prerequisite
// expression combines a required-course set with an optional placement-level
// requirement; a student satisfies the expression when either branch holds.
type Course struct {
	ID                     string         `db:"id" json:"id"`
	SessionID              string         `db:"session_id" json:"session_id"`
	Code                   string         `db:"code" json:"code"`
	Name                   string         `db:"name" json:"name"`
	HoursPerWeek           int            `db:"hours_per_week" json:"hours_per_week"`
	IsActive               bool           `db:"is_active" json:"is_active"`
	RequiredCourseCodes    pq.StringArray `db:"required_course_codes" json:"required_course_codes"`
	RequiredPlacementLevel *int           `db:"required_placement_level" json:"required_placement_level,omitempty"`
	AllowHigherPlacement   bool           `db:"allow_higher_placement" json:"allow_higher_placement"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// HasPrerequisites reports whether the course carries any prerequisite branch.
func (c *Course) HasPrerequisites() bool {
	return len(c.RequiredCourseCodes) > 0 || c.RequiredPlacementLevel != nil
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	SessionID string
	IsActive  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
