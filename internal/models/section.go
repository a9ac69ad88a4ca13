package models

import "time"

// SectionStatus represents the lifecycle of a section.
type SectionStatus string

const (
	SectionStatusDraft     SectionStatus = "DRAFT"
	SectionStatusPublished SectionStatus = "PUBLISHED"
	SectionStatusCompleted SectionStatus = "COMPLETED"
	SectionStatusCancelled SectionStatus = "CANCELLED"
)

// Section is one scheduled offering of a course. EnrolledCount is a
// materialized seat counter maintained atomically by the capacity ledger and
// always equals the number of ENROLLED plus COMPLETED enrollments.
type Section struct {
	ID               string        `db:"id" json:"id"`
	CourseID         string        `db:"course_id" json:"course_id"`
	SectionCode      string        `db:"section_code" json:"section_code"`
	Capacity         int           `db:"capacity" json:"capacity"`
	MinEnrollment    int           `db:"min_enrollment" json:"min_enrollment"`
	Status           SectionStatus `db:"status" json:"status"`
	EnrollmentLocked bool          `db:"enrollment_locked" json:"enrollment_locked"`
	EnrolledCount    int           `db:"enrolled_count" json:"enrolled_count"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// SeatsAvailable returns the number of free seats.
func (s *Section) SeatsAvailable() int {
	remaining := s.Capacity - s.EnrolledCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SectionDetail enriches Section with course and session info.
type SectionDetail struct {
	Section
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
	SessionID   string `db:"session_id" json:"session_id"`
	SessionCode string `db:"session_code" json:"session_code"`
}

// SectionFilter defines filter criteria for listing sections.
type SectionFilter struct {
	CourseID  string
	SessionID string
	Status    SectionStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
