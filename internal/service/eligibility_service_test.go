package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

func intPtr(v int) *int { return &v }

func TestIsEligible(t *testing.T) {
	tests := []struct {
		name      string
		completed []string
		placement *int
		course    *models.Course
		want      bool
	}{
		{
			name:   "no prerequisites",
			course: &models.Course{},
			want:   true,
		},
		{
			name:      "course branch satisfied",
			completed: []string{"MATH-1", "PHYS-1", "CHEM-1"},
			course:    &models.Course{RequiredCourseCodes: pq.StringArray{"MATH-1", "PHYS-1"}},
			want:      true,
		},
		{
			name:      "course branch partially satisfied",
			completed: []string{"A"},
			course:    &models.Course{RequiredCourseCodes: pq.StringArray{"A", "B"}},
			want:      false,
		},
		{
			name:      "placement rescues missing courses when higher allowed",
			completed: []string{"A"},
			placement: intPtr(4),
			course: &models.Course{
				RequiredCourseCodes:    pq.StringArray{"A", "B"},
				RequiredPlacementLevel: intPtr(3),
				AllowHigherPlacement:   true,
			},
			want: true,
		},
		{
			name:      "placement exact match required",
			placement: intPtr(4),
			course: &models.Course{
				RequiredPlacementLevel: intPtr(3),
				AllowHigherPlacement:   false,
			},
			want: false,
		},
		{
			name:      "placement exact match satisfied",
			placement: intPtr(3),
			course:    &models.Course{RequiredPlacementLevel: intPtr(3)},
			want:      true,
		},
		{
			name:   "placement required but student has none",
			course: &models.Course{RequiredPlacementLevel: intPtr(2), AllowHigherPlacement: true},
			want:   false,
		},
		{
			name:      "only course branch exists and fails",
			completed: nil,
			placement: intPtr(9),
			course:    &models.Course{RequiredCourseCodes: pq.StringArray{"X"}},
			want:      false,
		},
		{
			name: "nil course",
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsEligible(tc.completed, tc.placement, tc.course))
		})
	}
}

type mockEligibilityCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockEligibilityCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockEligibilityStudentReader struct {
	students map[string]*models.Student
}

func (m *mockEligibilityStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCompletedReader struct {
	codes map[string][]string
}

func (m *mockCompletedReader) CompletedCourseCodes(ctx context.Context, studentID string) ([]string, error) {
	return m.codes[studentID], nil
}

type memoryCache struct {
	store   map[string][]byte
	deletes []string
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	m.store[key] = nil
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletes = append(m.deletes, pattern)
	return nil
}

func newEligibilityFixture() (*EligibilityService, *memoryCache) {
	cache := &memoryCache{}
	svc := NewEligibilityService(
		&mockEligibilityCourseReader{courses: map[string]*models.Course{
			"course-open": {ID: "course-open", Code: "ART-1"},
			"course-gated": {
				ID:                     "course-gated",
				Code:                   "MATH-2",
				RequiredCourseCodes:    pq.StringArray{"MATH-1"},
				RequiredPlacementLevel: intPtr(3),
				AllowHigherPlacement:   true,
			},
		}},
		&mockEligibilityStudentReader{students: map[string]*models.Student{
			"stu-new":    {ID: "stu-new", Active: true},
			"stu-placed": {ID: "stu-placed", Active: true, PlacementLevel: intPtr(4)},
			"stu-done":   {ID: "stu-done", Active: true},
		}},
		&mockCompletedReader{codes: map[string][]string{
			"stu-done": {"MATH-1"},
		}},
		cache,
		time.Minute,
		nil,
	)
	return svc, cache
}

func TestEligibilityCheck(t *testing.T) {
	svc, _ := newEligibilityFixture()
	ctx := context.Background()

	result, err := svc.Check(ctx, "stu-new", "course-open")
	require.NoError(t, err)
	assert.True(t, result.Eligible)

	result, err = svc.Check(ctx, "stu-new", "course-gated")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Contains(t, result.Reason, "MATH-1")
	assert.Contains(t, result.Reason, "OR")

	result, err = svc.Check(ctx, "stu-done", "course-gated")
	require.NoError(t, err)
	assert.True(t, result.Eligible)

	result, err = svc.Check(ctx, "stu-placed", "course-gated")
	require.NoError(t, err)
	assert.True(t, result.Eligible)
}

func TestEligibilityCheckMissingEntities(t *testing.T) {
	svc, _ := newEligibilityFixture()
	ctx := context.Background()

	_, err := svc.Check(ctx, "stu-new", "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Check(ctx, "missing", "course-open")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Check(ctx, "", "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestEligibilityInvalidateStudent(t *testing.T) {
	svc, cache := newEligibilityFixture()
	svc.InvalidateStudent(context.Background(), "stu-done")
	require.Len(t, cache.deletes, 1)
	assert.Equal(t, "eligibility:stu-done:*", cache.deletes[0])
}
