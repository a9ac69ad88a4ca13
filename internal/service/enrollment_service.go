package service

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	MarkDropped(ctx context.Context, id string, version int, droppedAt time.Time, droppedBy, reason *string) (int64, error)
	MarkCompleted(ctx context.Context, id string, version int, finalGrade float64) (int64, error)
	RevertDrop(ctx context.Context, id string) error
}

type seatLedger interface {
	TryReserve(ctx context.Context, sectionID string) error
	Release(ctx context.Context, sectionID string) error
}

type eligibilityChecker interface {
	Check(ctx context.Context, studentID, courseID string) (*models.EligibilityResult, error)
	InvalidateStudent(ctx context.Context, studentID string)
}

type gradeComputer interface {
	ComputeGrade(ctx context.Context, studentID, sectionID string) (*models.GradeSummary, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type transitionRecorder interface {
	RecordEnrollmentTransition(action string)
}

// EnrollRequest describes an enrollment creation request.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// DropRequest describes a drop payload.
type DropRequest struct {
	Reason    string `json:"reason"`
	DroppedBy string `json:"dropped_by"`
}

// CompleteRequest carries the caller-computed final grade, validated against
// the grade aggregator before being snapshotted.
type CompleteRequest struct {
	FinalGrade float64 `json:"final_grade" validate:"min=0,max=100"`
}

// EnrollmentService owns the enrollment lifecycle:
// UNENROLLED -> ENROLLED -> {DROPPED, COMPLETED}, with DROPPED -> ENROLLED
// allowed as a fresh record. Seat accounting is delegated to the capacity
// ledger; every two-step sequence compensates on persistence failure so seats
// are neither leaked nor lost.
type EnrollmentService struct {
	repo        enrollmentRepository
	ledger      seatLedger
	eligibility eligibilityChecker
	grades      gradeComputer
	sections    sectionReader
	courses     courseReader
	students    studentReader
	sessions    sessionReader
	metrics     transitionRecorder
	validator   *validator.Validate
	logger      *zap.Logger

	gradeTolerance float64
}

// NewEnrollmentService constructs EnrollmentService. Metrics may be nil.
func NewEnrollmentService(repo enrollmentRepository, ledger seatLedger, eligibility eligibilityChecker, grades gradeComputer, sections sectionReader, courses courseReader, students studentReader, sessions sessionReader, metrics transitionRecorder, validate *validator.Validate, logger *zap.Logger, gradeTolerance float64) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gradeTolerance <= 0 {
		gradeTolerance = 0.01
	}
	return &EnrollmentService{
		repo:           repo,
		ledger:         ledger,
		eligibility:    eligibility,
		grades:         grades,
		sections:       sections,
		courses:        courses,
		students:       students,
		sessions:       sessions,
		metrics:        metrics,
		validator:      validate,
		logger:         logger,
		gradeTolerance: gradeTolerance,
	}
}

func (s *EnrollmentService) recordTransition(action string) {
	if s.metrics != nil {
		s.metrics.RecordEnrollmentTransition(action)
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Get returns a single enrollment with contextual info.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll registers a student into a section. The seat is reserved before the
// record is persisted; a failed persist releases the seat again so the
// counter never drifts from the records.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student inactive")
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load section")
	}

	exists, err := s.repo.ExistsActive(ctx, req.StudentID, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already holds a seat in this section")
	}

	check, err := s.eligibility.Check(ctx, req.StudentID, section.CourseID)
	if err != nil {
		return nil, err
	}
	if !check.Eligible {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, check.Reason)
	}

	if err := s.ledger.TryReserve(ctx, req.SectionID); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		SectionID:  req.SectionID,
		Status:     models.EnrollmentStatusEnrolled,
		Version:    1,
		EnrolledAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		// Compensate the reservation so the seat is not leaked.
		if relErr := s.ledger.Release(ctx, req.SectionID); relErr != nil {
			s.logger.Error("failed to release seat after persist failure",
				zap.String("section_id", req.SectionID), zap.Error(relErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create enrollment")
	}
	s.recordTransition("enroll")

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Drop marks the record DROPPED under the optimistic version guard and only
// then releases the seat. The guard is the gate: of two racing drops exactly
// one reaches Release, so the counter can never fall below the seats the
// remaining active enrollments hold. A failed release reverts the transition
// so the seat is not lost either.
func (s *EnrollmentService) Drop(ctx context.Context, id string, req DropRequest) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment is not active")
	}

	droppedAt := time.Now().UTC()
	var droppedBy, reason *string
	if req.DroppedBy != "" {
		droppedBy = &req.DroppedBy
	}
	if req.Reason != "" {
		reason = &req.Reason
	}

	affected, err := s.repo.MarkDropped(ctx, id, enrollment.Version, droppedAt, droppedBy, reason)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update enrollment")
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment was modified concurrently")
	}

	if err := s.ledger.Release(ctx, enrollment.SectionID); err != nil {
		// Undo the transition so the seat is not lost.
		if revErr := s.repo.RevertDrop(ctx, id); revErr != nil {
			s.logger.Error("failed to revert drop after release failure",
				zap.String("enrollment_id", id), zap.Error(revErr))
		}
		return nil, err
	}
	s.recordTransition("drop")

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Complete snapshots the final grade and marks the record COMPLETED. Only
// allowed while the owning session is closing; the caller-supplied grade must
// agree with the aggregator's own computation within the configured
// tolerance. The seat stays occupied for historical occupancy accounting.
func (s *EnrollmentService) Complete(ctx context.Context, id string, req CompleteRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment is not active")
	}

	section, err := s.sections.FindByID(ctx, enrollment.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load section")
	}
	course, err := s.courses.FindByID(ctx, section.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load course")
	}
	session, err := s.sessions.FindByID(ctx, course.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load session")
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is not being closed")
	}

	computed, err := s.grades.ComputeGrade(ctx, enrollment.StudentID, enrollment.SectionID)
	if err != nil {
		return nil, err
	}
	if math.Abs(computed.Percentage-req.FinalGrade) > s.gradeTolerance {
		return nil, appErrors.Clone(appErrors.ErrValidation, "final grade does not match computed grade")
	}

	affected, err := s.repo.MarkCompleted(ctx, id, enrollment.Version, computed.Percentage)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to complete enrollment")
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment was modified concurrently")
	}
	s.recordTransition("complete")

	// The student's academic record changed; stale eligibility answers for
	// future sessions must not survive.
	s.eligibility.InvalidateStudent(ctx, enrollment.StudentID)

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load enrollment detail")
	}
	return detail, nil
}
