package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, sessionID, code string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	CountSections(ctx context.Context, courseID string) (int, error)
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	SessionID              string   `json:"session_id" validate:"required"`
	Code                   string   `json:"code" validate:"required,max=20"`
	Name                   string   `json:"name" validate:"required,max=150"`
	HoursPerWeek           int      `json:"hours_per_week" validate:"required,min=1,max=20"`
	RequiredCourseCodes    []string `json:"required_course_codes"`
	RequiredPlacementLevel *int     `json:"required_placement_level" validate:"omitempty,min=1,max=10"`
	AllowHigherPlacement   bool     `json:"allow_higher_placement"`
}

// UpdateCourseRequest describes course update payload.
type UpdateCourseRequest struct {
	Name                   string   `json:"name" validate:"required,max=150"`
	HoursPerWeek           int      `json:"hours_per_week" validate:"required,min=1,max=20"`
	IsActive               *bool    `json:"is_active"`
	RequiredCourseCodes    []string `json:"required_course_codes"`
	RequiredPlacementLevel *int     `json:"required_placement_level" validate:"omitempty,min=1,max=10"`
	AllowHigherPlacement   bool     `json:"allow_higher_placement"`
}

// CourseService manages the course catalog and its prerequisite expressions.
type CourseService struct {
	repo      courseRepository
	sessions  sessionReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, sessions sessionReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, sessions: sessions, validator: validate, logger: logger}
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course in a session. The code must be unique within
// the session, and a course cannot require itself.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	for _, code := range req.RequiredCourseCodes {
		if code == req.Code {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course cannot require itself")
		}
	}

	if _, err := s.sessions.FindByID(ctx, req.SessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load session")
	}

	existing, err := s.repo.FindByCode(ctx, req.SessionID, req.Code)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to validate course code")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use for this session")
	}

	course := &models.Course{
		ID:                     uuid.NewString(),
		SessionID:              req.SessionID,
		Code:                   req.Code,
		Name:                   req.Name,
		HoursPerWeek:           req.HoursPerWeek,
		IsActive:               true,
		RequiredCourseCodes:    pq.StringArray(req.RequiredCourseCodes),
		RequiredPlacementLevel: req.RequiredPlacementLevel,
		AllowHigherPlacement:   req.AllowHigherPlacement,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies an existing course. The code and session are immutable.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, code := range req.RequiredCourseCodes {
		if code == course.Code {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course cannot require itself")
		}
	}

	course.Name = req.Name
	course.HoursPerWeek = req.HoursPerWeek
	course.RequiredCourseCodes = pq.StringArray(req.RequiredCourseCodes)
	course.RequiredPlacementLevel = req.RequiredPlacementLevel
	course.AllowHigherPlacement = req.AllowHigherPlacement
	if req.IsActive != nil {
		course.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course that has no sections.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountSections(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to count sections")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "course still has sections")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to delete course")
	}
	return nil
}
