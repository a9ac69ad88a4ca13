package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
	Delete(ctx context.Context, id string) error
}

type sectionEnrollmentCounter interface {
	CountActiveBySection(ctx context.Context, sectionID string) (int, error)
}

// CreateSectionRequest describes section creation payload.
type CreateSectionRequest struct {
	CourseID      string `json:"course_id" validate:"required"`
	SectionCode   string `json:"section_code" validate:"required,max=10"`
	Capacity      int    `json:"capacity" validate:"required,min=1,max=50"`
	MinEnrollment int    `json:"min_enrollment" validate:"required,min=1"`
}

// UpdateSectionRequest describes section update payload.
type UpdateSectionRequest struct {
	SectionCode   string `json:"section_code" validate:"required,max=10"`
	Capacity      int    `json:"capacity" validate:"required,min=1,max=50"`
	MinEnrollment int    `json:"min_enrollment" validate:"required,min=1"`
}

// SectionService manages section scheduling and its lifecycle:
// DRAFT -> PUBLISHED -> COMPLETED, with CANCELLED reachable from DRAFT and
// from PUBLISHED while nobody holds a seat. Seat mutation itself belongs to
// the capacity ledger; this service only changes what the ledger's
// conditional update checks.
type SectionService struct {
	repo        sectionRepository
	courses     courseReader
	enrollments sectionEnrollmentCounter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSectionService constructs SectionService.
func NewSectionService(repo sectionRepository, courses courseReader, enrollments sectionEnrollmentCounter, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, courses: courses, enrollments: enrollments, validator: validate, logger: logger}
}

// List returns sections with pagination metadata.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a section by id.
func (s *SectionService) Get(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load section")
	}
	return section, nil
}

// Create registers a new DRAFT section under a course.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if req.MinEnrollment > req.Capacity {
		return nil, appErrors.Clone(appErrors.ErrValidation, "minimum enrollment cannot exceed capacity")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load course")
	}
	if !course.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "course is inactive")
	}

	section := &models.Section{
		ID:            uuid.NewString(),
		CourseID:      req.CourseID,
		SectionCode:   req.SectionCode,
		Capacity:      req.Capacity,
		MinEnrollment: req.MinEnrollment,
		Status:        models.SectionStatusDraft,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create section")
	}
	return section, nil
}

// Update modifies a section. Capacity can never drop below the current
// enrolled count, so existing seat holders are never displaced.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if req.MinEnrollment > req.Capacity {
		return nil, appErrors.Clone(appErrors.ErrValidation, "minimum enrollment cannot exceed capacity")
	}
	section, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if section.Status == models.SectionStatusCompleted || section.Status == models.SectionStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "section is closed")
	}
	if req.Capacity < section.EnrolledCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity cannot drop below enrolled count")
	}

	section.SectionCode = req.SectionCode
	section.Capacity = req.Capacity
	section.MinEnrollment = req.MinEnrollment
	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update section")
	}
	return section, nil
}

// Publish opens a DRAFT section for enrollment.
func (s *SectionService) Publish(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if section.Status != models.SectionStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only draft sections can be published")
	}
	section.Status = models.SectionStatusPublished
	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to publish section")
	}
	return section, nil
}

// Cancel withdraws a section that nobody is enrolled in.
func (s *SectionService) Cancel(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if section.Status != models.SectionStatusDraft && section.Status != models.SectionStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "section is closed")
	}
	count, err := s.enrollments.CountActiveBySection(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to count enrollments")
	}
	if count > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "section still has seat holders")
	}
	section.Status = models.SectionStatusCancelled
	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to cancel section")
	}
	return section, nil
}

// Lock freezes enrollment on a published section without hiding it. Further
// reservations fail with SECTION_LOCKED; drops keep working.
func (s *SectionService) Lock(ctx context.Context, id string) (*models.Section, error) {
	return s.setLocked(ctx, id, true)
}

// Unlock re-opens a locked section for enrollment.
func (s *SectionService) Unlock(ctx context.Context, id string) (*models.Section, error) {
	return s.setLocked(ctx, id, false)
}

func (s *SectionService) setLocked(ctx context.Context, id string, locked bool) (*models.Section, error) {
	section, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if section.Status != models.SectionStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only published sections can be locked or unlocked")
	}
	if section.EnrollmentLocked == locked {
		return section, nil
	}
	section.EnrollmentLocked = locked
	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update section lock")
	}
	return section, nil
}

// Delete removes a DRAFT section that never had enrollments.
func (s *SectionService) Delete(ctx context.Context, id string) error {
	section, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if section.Status != models.SectionStatusDraft {
		return appErrors.Clone(appErrors.ErrInvalidState, "only draft sections can be deleted")
	}
	count, err := s.enrollments.CountActiveBySection(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to count enrollments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "section has enrollments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to delete section")
	}
	return nil
}
