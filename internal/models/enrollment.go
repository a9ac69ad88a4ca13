package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Enrollment captures one student's relationship to one section over time.
// At most one ENROLLED or COMPLETED record exists per (student, section) pair;
// DROPPED records accumulate as history and re-enrollment creates a fresh
// record. Version supports optimistic concurrency on state transitions.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SectionID  string           `db:"section_id" json:"section_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Version    int              `db:"version" json:"version"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt  *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
	DroppedBy  *string          `db:"dropped_by" json:"dropped_by,omitempty"`
	DropReason *string          `db:"drop_reason" json:"drop_reason,omitempty"`
	FinalGrade *float64         `db:"final_grade" json:"final_grade,omitempty"`
}

// Active reports whether the enrollment currently occupies a seat.
func (e *Enrollment) Active() bool {
	return e.Status == EnrollmentStatusEnrolled || e.Status == EnrollmentStatusCompleted
}

// EnrollmentDetail enriches Enrollment with student and section info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	SectionCode string `db:"section_code" json:"section_code"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
