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

type assignmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListBySection(ctx context.Context, sectionID string, publishedOnly bool) ([]models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

// CreateAssignmentRequest describes assignment creation payload.
type CreateAssignmentRequest struct {
	SectionID   string     `json:"section_id" validate:"required"`
	Title       string     `json:"title" validate:"required,max=200"`
	TotalPoints float64    `json:"total_points" validate:"required,gt=0"`
	DueDate     *time.Time `json:"due_date"`
	MaxAttempts int        `json:"max_attempts" validate:"required,min=1"`
	IsPublished bool       `json:"is_published"`
}

// UpdateAssignmentRequest describes assignment update payload.
type UpdateAssignmentRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	TotalPoints float64    `json:"total_points" validate:"required,gt=0"`
	DueDate     *time.Time `json:"due_date"`
	MaxAttempts int        `json:"max_attempts" validate:"required,min=1"`
	IsPublished *bool      `json:"is_published"`
}

// AssignmentService manages gradeable work attached to sections.
type AssignmentService struct {
	repo      assignmentRepository
	sections  sectionReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, sections sectionReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, sections: sections, validator: validate, logger: logger}
}

// ListBySection returns the assignments of a section.
func (s *AssignmentService) ListBySection(ctx context.Context, sectionID string, publishedOnly bool) ([]models.Assignment, error) {
	assignments, err := s.repo.ListBySection(ctx, sectionID, publishedOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list assignments")
	}
	return assignments, nil
}

// Get returns an assignment by id.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Create attaches a new assignment to a section.
func (s *AssignmentService) Create(ctx context.Context, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load section")
	}
	if section.Status == models.SectionStatusCompleted || section.Status == models.SectionStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "section is closed")
	}

	assignment := &models.Assignment{
		ID:          uuid.NewString(),
		SectionID:   req.SectionID,
		Title:       req.Title,
		TotalPoints: req.TotalPoints,
		DueDate:     req.DueDate,
		MaxAttempts: req.MaxAttempts,
		IsPublished: req.IsPublished,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create assignment")
	}
	return assignment, nil
}

// Update modifies an assignment. Changing total points reweights every grade
// computed from it, so cached aggregates for the section are stale afterwards;
// the per-student invalidation happens lazily on the next grading event.
func (s *AssignmentService) Update(ctx context.Context, id string, req UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	assignment.Title = req.Title
	assignment.TotalPoints = req.TotalPoints
	assignment.DueDate = req.DueDate
	assignment.MaxAttempts = req.MaxAttempts
	if req.IsPublished != nil {
		assignment.IsPublished = *req.IsPublished
	}
	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update assignment")
	}
	return assignment, nil
}

// Delete removes an assignment and its submission history.
func (s *AssignmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to delete assignment")
	}
	return nil
}
