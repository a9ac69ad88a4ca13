package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type submissionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	MaxAttempt(ctx context.Context, assignmentID, studentID string) (int, error)
	Create(ctx context.Context, submission *models.Submission) error
	SetGrade(ctx context.Context, id string, grade float64, feedback *string, gradedAt time.Time) error
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error)
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type activeEnrollmentChecker interface {
	ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error)
}

type gradeInvalidator interface {
	Invalidate(ctx context.Context, studentID, sectionID string)
}

// SubmitRequest describes a submission attempt payload.
type SubmitRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	StudentID    string `json:"student_id" validate:"required"`
}

// GradeSubmissionRequest carries awarded points and optional feedback.
type GradeSubmissionRequest struct {
	Grade    float64 `json:"grade" validate:"min=0"`
	Feedback string  `json:"feedback" validate:"max=1000"`
}

// SubmissionService manages submission attempts and grading. Grading feeds the
// grade aggregator, so every grading event invalidates the cached aggregate
// for the affected (student, section) pair.
type SubmissionService struct {
	repo        submissionRepository
	assignments assignmentReader
	enrollments activeEnrollmentChecker
	grades      gradeInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(repo submissionRepository, assignments assignmentReader, enrollments activeEnrollmentChecker, grades gradeInvalidator, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		repo:        repo,
		assignments: assignments,
		enrollments: enrollments,
		grades:      grades,
		validator:   validate,
		logger:      logger,
	}
}

// Get returns a submission by id.
func (s *SubmissionService) Get(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load submission")
	}
	return submission, nil
}

// ListByAssignment returns all submissions for an assignment.
func (s *SubmissionService) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	submissions, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Submit records a new attempt. The attempt number increments from the
// student's previous attempts and is capped at the assignment's limit; a
// submission past the due date is recorded as LATE, not rejected.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load assignment")
	}
	if !assignment.IsPublished {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "assignment is not published")
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, req.StudentID, assignment.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to validate enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this section")
	}

	attempt, err := s.repo.MaxAttempt(ctx, req.AssignmentID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to count attempts")
	}
	if attempt >= assignment.MaxAttempts {
		return nil, appErrors.Clone(appErrors.ErrConflict, "attempt limit reached")
	}

	now := time.Now().UTC()
	status := models.SubmissionStatusSubmitted
	if assignment.DueDate != nil && now.After(*assignment.DueDate) {
		status = models.SubmissionStatusLate
	}

	submission := &models.Submission{
		ID:            uuid.NewString(),
		AssignmentID:  req.AssignmentID,
		StudentID:     req.StudentID,
		AttemptNumber: attempt + 1,
		Status:        status,
		SubmittedAt:   now,
	}
	if err := s.repo.Create(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create submission")
	}
	return submission, nil
}

// Grade awards points to a submission. Points cannot exceed the assignment's
// total; re-grading an already GRADED submission replaces the previous award.
func (s *SubmissionService) Grade(ctx context.Context, id string, req GradeSubmissionRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload")
	}

	submission, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load assignment")
	}
	if req.Grade > assignment.TotalPoints {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade exceeds assignment total points")
	}

	gradedAt := time.Now().UTC()
	var feedback *string
	if req.Feedback != "" {
		feedback = &req.Feedback
	}
	if err := s.repo.SetGrade(ctx, id, req.Grade, feedback, gradedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to grade submission")
	}

	s.grades.Invalidate(ctx, submission.StudentID, assignment.SectionID)

	submission.Grade = &req.Grade
	submission.Feedback = feedback
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &gradedAt
	return submission, nil
}
