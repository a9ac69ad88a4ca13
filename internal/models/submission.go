package models

import "time"

// SubmissionStatus represents the grading state of a submission.
type SubmissionStatus string

const (
	SubmissionStatusMissing   SubmissionStatus = "MISSING"
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionStatusGraded    SubmissionStatus = "GRADED"
	SubmissionStatusLate      SubmissionStatus = "LATE"
)

// Submission is one attempt by a student at an assignment. The highest
// attempt number for a (assignment, student) pair is the latest submission;
// earlier attempts are kept as history.
type Submission struct {
	ID            string           `db:"id" json:"id"`
	AssignmentID  string           `db:"assignment_id" json:"assignment_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	AttemptNumber int              `db:"attempt_number" json:"attempt_number"`
	Grade         *float64         `db:"grade" json:"grade,omitempty"`
	Feedback      *string          `db:"feedback" json:"feedback,omitempty"`
	Status        SubmissionStatus `db:"status" json:"status"`
	SubmittedAt   time.Time        `db:"submitted_at" json:"submitted_at"`
	GradedAt      *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
}

// GradedSubmission pairs a graded submission with its assignment's weight.
type GradedSubmission struct {
	AssignmentID  string  `db:"assignment_id" json:"assignment_id"`
	TotalPoints   float64 `db:"total_points" json:"total_points"`
	AttemptNumber int     `db:"attempt_number" json:"attempt_number"`
	Grade         float64 `db:"grade" json:"grade"`
}
