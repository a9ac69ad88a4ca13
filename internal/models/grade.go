package models

import "time"

// GradeSummary is the aggregate of a student's graded work in a section.
// Assignments without a graded submission contribute to neither earned nor
// total points.
type GradeSummary struct {
	StudentID    string    `json:"student_id"`
	SectionID    string    `json:"section_id"`
	EarnedPoints float64   `json:"earned_points"`
	TotalPoints  float64   `json:"total_points"`
	Percentage   float64   `json:"percentage"`
	ComputedAt   time.Time `json:"computed_at"`
}

// EligibilityResult reports a prerequisite check outcome.
type EligibilityResult struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	Eligible  bool   `json:"eligible"`
	Reason    string `json:"reason,omitempty"`
}
