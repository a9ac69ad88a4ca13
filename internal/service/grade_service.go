package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type gradedSubmissionReader interface {
	LatestGraded(ctx context.Context, sectionID, studentID string) ([]models.GradedSubmission, error)
}

type gradeCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// GradeService aggregates per-assignment grades into a running percentage.
// Only assignments with a graded submission count; the result is a weighted
// average over graded work, not a zero-fill over everything assigned.
type GradeService struct {
	submissions gradedSubmissionReader
	cache       gradeCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewGradeService constructs GradeService. Cache may be nil.
func NewGradeService(submissions gradedSubmissionReader, cache gradeCache, cacheTTL time.Duration, logger *zap.Logger) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{submissions: submissions, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func gradeCacheKey(studentID, sectionID string) string {
	return fmt.Sprintf("grade:%s:%s", sectionID, studentID)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeGrade returns the student's aggregate grade in the section. The
// computation is a pure function of the graded submissions snapshot and can
// be re-run idempotently; no data yields a zero percentage, never an error.
func (s *GradeService) ComputeGrade(ctx context.Context, studentID, sectionID string) (*models.GradeSummary, error) {
	if studentID == "" || sectionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and section required")
	}

	if s.cache != nil {
		var cached models.GradeSummary
		if err := s.cache.Get(ctx, gradeCacheKey(studentID, sectionID), &cached); err == nil {
			return &cached, nil
		}
	}

	graded, err := s.submissions.LatestGraded(ctx, sectionID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load graded submissions")
	}

	summary := Aggregate(studentID, sectionID, graded)

	if s.cache != nil {
		if err := s.cache.Set(ctx, gradeCacheKey(studentID, sectionID), summary, s.cacheTTL); err != nil {
			s.logger.Warn("grade cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// Invalidate drops the cached summary for a (student, section) pair. Called
// whenever a submission for that pair is graded or re-graded.
func (s *GradeService) Invalidate(ctx context.Context, studentID, sectionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, gradeCacheKey(studentID, sectionID)); err != nil {
		s.logger.Warn("grade cache invalidation failed", zap.Error(err))
	}
}

// Aggregate folds graded submissions into a GradeSummary. Pure.
func Aggregate(studentID, sectionID string, graded []models.GradedSubmission) *models.GradeSummary {
	summary := &models.GradeSummary{
		StudentID:  studentID,
		SectionID:  sectionID,
		ComputedAt: time.Now().UTC(),
	}
	for _, sub := range graded {
		summary.EarnedPoints += sub.Grade
		summary.TotalPoints += sub.TotalPoints
	}
	if summary.TotalPoints > 0 {
		summary.Percentage = round2(summary.EarnedPoints / summary.TotalPoints * 100)
	}
	return summary
}
