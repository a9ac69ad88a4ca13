package service

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/jobs"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActive(ctx context.Context) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
}

type sessionSectionStore interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.Section, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	Update(ctx context.Context, section *models.Section) error
}

type closingEnrollmentStore interface {
	ListActiveBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error)
	MarkCompleted(ctx context.Context, id string, version int, finalGrade float64) (int64, error)
}

// CreateSessionRequest describes session creation payload.
type CreateSessionRequest struct {
	Code      string    `json:"code" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// UpdateSessionRequest describes session update payload.
type UpdateSessionRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

var sessionCodePattern = regexp.MustCompile(`^\d{4}-S[1-9]$`)

// SessionService manages academic sessions and drives the term-close flow
// that snapshots final grades and completes enrollments section by section.
type SessionService struct {
	repo        sessionRepository
	sections    sessionSectionStore
	enrollments closingEnrollmentStore
	grades      gradeComputer
	eligibility eligibilityChecker
	validator   *validator.Validate
	logger      *zap.Logger
	queue       *jobs.Queue
}

// NewSessionService constructs SessionService with its own close-worker queue.
func NewSessionService(repo sessionRepository, sections sessionSectionStore, enrollments closingEnrollmentStore, grades gradeComputer, eligibility eligibilityChecker, validate *validator.Validate, logger *zap.Logger, workers, retries int) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionService{
		repo:        repo,
		sections:    sections,
		enrollments: enrollments,
		grades:      grades,
		eligibility: eligibility,
		validator:   validate,
		logger:      logger,
	}
	s.queue = jobs.NewQueue("session-close", s.handleCloseJob, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// StartWorkers starts the close-worker queue.
func (s *SessionService) StartWorkers(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopWorkers drains and stops the close-worker queue.
func (s *SessionService) StopWorkers() {
	s.queue.Stop()
}

// List returns sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load session")
	}
	return session, nil
}

// Active returns the currently ACTIVE session. Callers that used to assume an
// ambient "current session" resolve it here explicitly instead.
func (s *SessionService) Active(ctx context.Context) (*models.Session, error) {
	session, err := s.repo.FindActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load active session")
	}
	return session, nil
}

// Create registers a new UPCOMING session.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !sessionCodePattern.MatchString(req.Code) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session code must match YYYY-S#")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	session := &models.Session{
		ID:        uuid.NewString(),
		Code:      req.Code,
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    models.SessionStatusUpcoming,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create session")
	}
	return session, nil
}

// Update modifies session metadata. Dates are immutable once ACTIVE.
func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusUpcoming {
		if !session.StartDate.Equal(req.StartDate) || !session.EndDate.Equal(req.EndDate) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "session dates are immutable once active")
		}
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	session.Name = req.Name
	session.StartDate = req.StartDate
	session.EndDate = req.EndDate
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update session")
	}
	return session, nil
}

// Activate transitions an UPCOMING session to ACTIVE.
func (s *SessionService) Activate(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusUpcoming {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only upcoming sessions can be activated")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.SessionStatusActive); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to activate session")
	}
	session.Status = models.SessionStatusActive
	return session, nil
}

// Close transitions an ACTIVE session to COMPLETED and enqueues one close job
// per section. The jobs compute final grades and complete every active
// enrollment; Complete requires the session to already be COMPLETED, which
// this transition guarantees before the first job runs.
func (s *SessionService) Close(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only active sessions can be closed")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.SessionStatusCompleted); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to close session")
	}
	session.Status = models.SessionStatusCompleted

	sections, err := s.sections.ListBySession(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list session sections")
	}
	for _, section := range sections {
		job := jobs.Job{ID: uuid.NewString(), Type: "close_section", Payload: section.ID}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Error("failed to enqueue section close", zap.String("section_id", section.ID), zap.Error(err))
		}
	}
	return session, nil
}

func (s *SessionService) handleCloseJob(ctx context.Context, job jobs.Job) error {
	sectionID, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("close job with malformed payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.closeSection(ctx, sectionID)
}

// closeSection snapshots the final grade of every active enrollment in the
// section, completes it, and finally moves the section itself to COMPLETED.
// A failing enrollment leaves the section for the retry; completed
// enrollments are skipped on the second pass by the version guard.
func (s *SessionService) closeSection(ctx context.Context, sectionID string) error {
	enrollments, err := s.enrollments.ListActiveBySection(ctx, sectionID)
	if err != nil {
		return err
	}
	for _, enrollment := range enrollments {
		summary, err := s.grades.ComputeGrade(ctx, enrollment.StudentID, enrollment.SectionID)
		if err != nil {
			return err
		}
		affected, err := s.enrollments.MarkCompleted(ctx, enrollment.ID, enrollment.Version, summary.Percentage)
		if err != nil {
			return err
		}
		if affected == 0 {
			// Dropped or completed concurrently; nothing to do.
			s.logger.Debug("enrollment changed during close", zap.String("enrollment_id", enrollment.ID))
			continue
		}
		s.eligibility.InvalidateStudent(ctx, enrollment.StudentID)
	}

	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		return err
	}
	switch section.Status {
	case models.SectionStatusPublished:
		section.Status = models.SectionStatusCompleted
	case models.SectionStatusDraft:
		// Never published, nobody enrolled.
		section.Status = models.SectionStatusCancelled
	default:
		return nil
	}
	if err := s.sections.Update(ctx, section); err != nil {
		return err
	}
	s.logger.Sugar().Infow("section closed", "section_id", sectionID, "completed", len(enrollments))
	return nil
}
