package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

// IsEligible decides whether a student satisfies a course's prerequisite
// expression. The expression is the OR of two branches:
//
//   - course branch: the student's completed course codes form a superset of
//     the required set (skipped when no courses are required);
//   - placement branch: the student's placement level matches the required
//     level, or exceeds it when higher placement is allowed (skipped when no
//     level is required; a student without a placement level fails it).
//
// A course with neither branch has no prerequisite and every student is
// eligible. The function is pure; malformed input counts as not eligible.
func IsEligible(completedCourseCodes []string, placementLevel *int, course *models.Course) bool {
	if course == nil {
		return false
	}
	if !course.HasPrerequisites() {
		return true
	}

	if len(course.RequiredCourseCodes) > 0 {
		completed := make(map[string]struct{}, len(completedCourseCodes))
		for _, code := range completedCourseCodes {
			completed[code] = struct{}{}
		}
		satisfied := true
		for _, required := range course.RequiredCourseCodes {
			if _, ok := completed[required]; !ok {
				satisfied = false
				break
			}
		}
		if satisfied {
			return true
		}
	}

	if course.RequiredPlacementLevel != nil && placementLevel != nil {
		required := *course.RequiredPlacementLevel
		if course.AllowHigherPlacement {
			return *placementLevel >= required
		}
		return *placementLevel == required
	}

	return false
}

type eligibilityCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type eligibilityStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type completedCourseReader interface {
	CompletedCourseCodes(ctx context.Context, studentID string) ([]string, error)
}

type eligibilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// EligibilityService resolves a student's academic record and evaluates the
// prerequisite expression of a course against it.
type EligibilityService struct {
	courses     eligibilityCourseReader
	students    eligibilityStudentReader
	enrollments completedCourseReader
	cache       eligibilityCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewEligibilityService constructs EligibilityService. Cache may be nil.
func NewEligibilityService(courses eligibilityCourseReader, students eligibilityStudentReader, enrollments completedCourseReader, cache eligibilityCache, cacheTTL time.Duration, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{
		courses:     courses,
		students:    students,
		enrollments: enrollments,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func eligibilityCacheKey(studentID, courseID string) string {
	return fmt.Sprintf("eligibility:%s:%s", studentID, courseID)
}

// Check evaluates whether the student may enroll in the course.
func (s *EligibilityService) Check(ctx context.Context, studentID, courseID string) (*models.EligibilityResult, error) {
	if studentID == "" || courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and course required")
	}

	if s.cache != nil {
		var cached models.EligibilityResult
		if err := s.cache.Get(ctx, eligibilityCacheKey(studentID, courseID), &cached); err == nil {
			return &cached, nil
		}
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load course")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load student")
	}

	completed, err := s.enrollments.CompletedCourseCodes(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load academic record")
	}

	result := &models.EligibilityResult{
		StudentID: studentID,
		CourseID:  courseID,
		Eligible:  IsEligible(completed, student.PlacementLevel, course),
	}
	if !result.Eligible {
		result.Reason = prerequisiteSummary(course)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, eligibilityCacheKey(studentID, courseID), result, s.cacheTTL); err != nil {
			s.logger.Warn("eligibility cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// InvalidateStudent drops cached eligibility answers for a student. Called
// when the student's academic record changes, e.g. on course completion.
func (s *EligibilityService) InvalidateStudent(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, eligibilityCacheKey(studentID, "*")); err != nil {
		s.logger.Warn("eligibility cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

func prerequisiteSummary(course *models.Course) string {
	courseBranch := ""
	if len(course.RequiredCourseCodes) > 0 {
		courseBranch = fmt.Sprintf("completion of %v", []string(course.RequiredCourseCodes))
	}
	placementBranch := ""
	if course.RequiredPlacementLevel != nil {
		comparison := "exactly"
		if course.AllowHigherPlacement {
			comparison = "at least"
		}
		placementBranch = fmt.Sprintf("placement level %s %d", comparison, *course.RequiredPlacementLevel)
	}
	switch {
	case courseBranch != "" && placementBranch != "":
		return fmt.Sprintf("requires %s OR %s", courseBranch, placementBranch)
	case courseBranch != "":
		return fmt.Sprintf("requires %s", courseBranch)
	case placementBranch != "":
		return fmt.Sprintf("requires %s", placementBranch)
	default:
		return ""
	}
}
