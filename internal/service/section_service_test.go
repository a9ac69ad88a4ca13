package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type mockSectionRepo struct {
	sections map[string]models.Section
	deleted  []string
}

func (m *mockSectionRepo) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	return nil, 0, nil
}

func (m *mockSectionRepo) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) Create(ctx context.Context, section *models.Section) error {
	if m.sections == nil {
		m.sections = make(map[string]models.Section)
	}
	m.sections[section.ID] = *section
	return nil
}

func (m *mockSectionRepo) Update(ctx context.Context, section *models.Section) error {
	m.sections[section.ID] = *section
	return nil
}

func (m *mockSectionRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.sections, id)
	return nil
}

type mockSectionEnrollmentCounter struct {
	counts map[string]int
}

func (m *mockSectionEnrollmentCounter) CountActiveBySection(ctx context.Context, sectionID string) (int, error) {
	return m.counts[sectionID], nil
}

func newSectionFixture() (*SectionService, *mockSectionRepo, *mockSectionEnrollmentCounter) {
	repo := &mockSectionRepo{sections: map[string]models.Section{
		"sec-draft":     {ID: "sec-draft", CourseID: "course-1", Status: models.SectionStatusDraft, Capacity: 20, MinEnrollment: 5},
		"sec-published": {ID: "sec-published", CourseID: "course-1", Status: models.SectionStatusPublished, Capacity: 20, MinEnrollment: 5, EnrolledCount: 12},
	}}
	counter := &mockSectionEnrollmentCounter{counts: map[string]int{"sec-published": 12}}
	svc := NewSectionService(repo, &mockCourseReader{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", IsActive: true},
		"course-2": {ID: "course-2", IsActive: false},
	}}, counter, nil, nil)
	return svc, repo, counter
}

func TestSectionCreateBounds(t *testing.T) {
	svc, _, _ := newSectionFixture()
	ctx := context.Background()

	section, err := svc.Create(ctx, CreateSectionRequest{CourseID: "course-1", SectionCode: "A", Capacity: 30, MinEnrollment: 5})
	require.NoError(t, err)
	assert.Equal(t, models.SectionStatusDraft, section.Status)

	_, err = svc.Create(ctx, CreateSectionRequest{CourseID: "course-1", SectionCode: "B", Capacity: 51, MinEnrollment: 5})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, CreateSectionRequest{CourseID: "course-1", SectionCode: "C", Capacity: 10, MinEnrollment: 11})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, CreateSectionRequest{CourseID: "course-2", SectionCode: "D", Capacity: 10, MinEnrollment: 5})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestSectionCapacityCannotDropBelowEnrolled(t *testing.T) {
	svc, _, _ := newSectionFixture()

	_, err := svc.Update(context.Background(), "sec-published", UpdateSectionRequest{SectionCode: "A", Capacity: 10, MinEnrollment: 5})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	section, err := svc.Update(context.Background(), "sec-published", UpdateSectionRequest{SectionCode: "A", Capacity: 15, MinEnrollment: 5})
	require.NoError(t, err)
	assert.Equal(t, 15, section.Capacity)
}

func TestSectionPublishAndLockLifecycle(t *testing.T) {
	svc, _, _ := newSectionFixture()
	ctx := context.Background()

	section, err := svc.Publish(ctx, "sec-draft")
	require.NoError(t, err)
	assert.Equal(t, models.SectionStatusPublished, section.Status)

	_, err = svc.Publish(ctx, "sec-draft")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	section, err = svc.Lock(ctx, "sec-draft")
	require.NoError(t, err)
	assert.True(t, section.EnrollmentLocked)

	section, err = svc.Unlock(ctx, "sec-draft")
	require.NoError(t, err)
	assert.False(t, section.EnrollmentLocked)
}

func TestSectionCancelRequiresEmpty(t *testing.T) {
	svc, _, _ := newSectionFixture()
	ctx := context.Background()

	_, err := svc.Cancel(ctx, "sec-published")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	section, err := svc.Cancel(ctx, "sec-draft")
	require.NoError(t, err)
	assert.Equal(t, models.SectionStatusCancelled, section.Status)
}

func TestSectionDeleteGuards(t *testing.T) {
	svc, repo, _ := newSectionFixture()
	ctx := context.Background()

	err := svc.Delete(ctx, "sec-published")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	require.NoError(t, svc.Delete(ctx, "sec-draft"))
	assert.Equal(t, []string{"sec-draft"}, repo.deleted)
}
