package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

// SubmissionRepository handles persistence of assignment submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, assignment_id, student_id, attempt_number, grade, feedback, status, submitted_at, graded_at`

// FindByID returns a submission by its ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE id = $1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// MaxAttempt returns the highest attempt number recorded for the pair, zero
// when the student has not submitted yet.
func (r *SubmissionRepository) MaxAttempt(ctx context.Context, assignmentID, studentID string) (int, error) {
	const query = `SELECT COALESCE(MAX(attempt_number), 0) FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	var attempt int
	if err := r.db.GetContext(ctx, &attempt, query, assignmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("max submission attempt: %w", err)
	}
	return attempt, nil
}

// Create persists a new submission attempt.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusSubmitted
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, attempt_number, grade, feedback, status, submitted_at, graded_at)
        VALUES (:id, :assignment_id, :student_id, :attempt_number, :grade, :feedback, :status, :submitted_at, :graded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// SetGrade marks a submission GRADED with the awarded points and feedback.
func (r *SubmissionRepository) SetGrade(ctx context.Context, id string, grade float64, feedback *string, gradedAt time.Time) error {
	const query = `UPDATE submissions SET grade = $2, feedback = $3, status = $4, graded_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, feedback, models.SubmissionStatusGraded, gradedAt); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}

// ListByAssignment returns submissions for an assignment, newest attempt first.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE assignment_id = $1 ORDER BY student_id, attempt_number DESC`, submissionColumns)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list assignment submissions: %w", err)
	}
	return submissions, nil
}

// LatestGraded returns, for every assignment in the section, the student's
// graded submission with the highest attempt number. Assignments the student
// has no graded submission for are absent from the result.
func (r *SubmissionRepository) LatestGraded(ctx context.Context, sectionID, studentID string) ([]models.GradedSubmission, error) {
	const query = `SELECT DISTINCT ON (s.assignment_id)
        s.assignment_id, a.total_points, s.attempt_number, s.grade
        FROM submissions s
        JOIN assignments a ON a.id = s.assignment_id
        WHERE a.section_id = $1 AND s.student_id = $2 AND s.status = $3 AND s.grade IS NOT NULL
        ORDER BY s.assignment_id, s.attempt_number DESC`
	var graded []models.GradedSubmission
	if err := r.db.SelectContext(ctx, &graded, query, sectionID, studentID, models.SubmissionStatusGraded); err != nil {
		return nil, fmt.Errorf("latest graded submissions: %w", err)
	}
	return graded, nil
}
