package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type mockSessionRepo struct {
	sessions map[string]models.Session
	statuses map[string]models.SessionStatus
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	var out []models.Session
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindActive(ctx context.Context) (*models.Session, error) {
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusActive {
			copied := s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if m.sessions == nil {
		m.sessions = make(map[string]models.Session)
	}
	m.sessions[session.ID] = *session
	return nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *models.Session) error {
	m.sessions[session.ID] = *session
	return nil
}

func (m *mockSessionRepo) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.SessionStatus)
	}
	m.statuses[id] = status
	s := m.sessions[id]
	s.Status = status
	m.sessions[id] = s
	return nil
}

type mockSessionSections struct {
	bySession map[string][]models.Section
	updated   []models.Section
}

func (m *mockSessionSections) ListBySession(ctx context.Context, sessionID string) ([]models.Section, error) {
	return m.bySession[sessionID], nil
}

func (m *mockSessionSections) FindByID(ctx context.Context, id string) (*models.Section, error) {
	for _, sections := range m.bySession {
		for _, s := range sections {
			if s.ID == id {
				copied := s
				return &copied, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionSections) Update(ctx context.Context, section *models.Section) error {
	m.updated = append(m.updated, *section)
	return nil
}

type mockClosingEnrollments struct {
	bySection map[string][]models.Enrollment
	completed map[string]float64
}

func (m *mockClosingEnrollments) ListActiveBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	return m.bySection[sectionID], nil
}

func (m *mockClosingEnrollments) MarkCompleted(ctx context.Context, id string, version int, finalGrade float64) (int64, error) {
	if m.completed == nil {
		m.completed = make(map[string]float64)
	}
	if _, done := m.completed[id]; done {
		return 0, nil
	}
	m.completed[id] = finalGrade
	return 1, nil
}

func newSessionFixture() (*SessionService, *mockSessionRepo, *mockSessionSections, *mockClosingEnrollments, *mockEligibility) {
	repo := &mockSessionRepo{sessions: map[string]models.Session{
		"ses-up":     {ID: "ses-up", Code: "2026-S2", Status: models.SessionStatusUpcoming, StartDate: time.Now(), EndDate: time.Now().Add(time.Hour)},
		"ses-active": {ID: "ses-active", Code: "2026-S1", Status: models.SessionStatusActive, StartDate: time.Now(), EndDate: time.Now().Add(time.Hour)},
	}}
	sections := &mockSessionSections{bySession: map[string][]models.Section{
		"ses-active": {
			{ID: "sec-1", Status: models.SectionStatusPublished},
			{ID: "sec-2", Status: models.SectionStatusDraft},
		},
	}}
	enrollments := &mockClosingEnrollments{bySection: map[string][]models.Enrollment{
		"sec-1": {
			{ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled, Version: 1},
			{ID: "enr-2", StudentID: "stu-2", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled, Version: 1},
		},
	}}
	eligibility := &mockEligibility{eligible: true}
	svc := NewSessionService(repo, sections, enrollments, &mockGradeComputer{percentage: 91.5}, eligibility, nil, nil, 1, 1)
	return svc, repo, sections, enrollments, eligibility
}

func TestSessionCreateValidatesCode(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture()
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 4, 0)

	session, err := svc.Create(ctx, CreateSessionRequest{Code: "2026-S3", Name: "Fall 2026", StartDate: start, EndDate: end})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusUpcoming, session.Status)

	_, err = svc.Create(ctx, CreateSessionRequest{Code: "S3-2026", Name: "Bad", StartDate: start, EndDate: end})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, CreateSessionRequest{Code: "2026-S3", Name: "Bad", StartDate: end, EndDate: start})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSessionActivate(t *testing.T) {
	svc, repo, _, _, _ := newSessionFixture()
	ctx := context.Background()

	session, err := svc.Activate(ctx, "ses-up")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, models.SessionStatusActive, repo.statuses["ses-up"])

	_, err = svc.Activate(ctx, "ses-active")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestSessionDatesImmutableOnceActive(t *testing.T) {
	svc, repo, _, _, _ := newSessionFixture()
	ctx := context.Background()
	active := repo.sessions["ses-active"]

	_, err := svc.Update(ctx, "ses-active", UpdateSessionRequest{
		Name:      "Renamed",
		StartDate: active.StartDate.Add(time.Hour),
		EndDate:   active.EndDate,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	updated, err := svc.Update(ctx, "ses-active", UpdateSessionRequest{
		Name:      "Renamed",
		StartDate: active.StartDate,
		EndDate:   active.EndDate,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
}

func TestSessionCloseTransitions(t *testing.T) {
	svc, repo, _, _, _ := newSessionFixture()
	ctx := context.Background()
	svc.StartWorkers(ctx)
	defer svc.StopWorkers()

	_, err := svc.Close(ctx, "ses-up")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	session, err := svc.Close(ctx, "ses-active")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, models.SessionStatusCompleted, repo.statuses["ses-active"])
}

func TestCloseSectionCompletesEnrollments(t *testing.T) {
	svc, _, sections, enrollments, eligibility := newSessionFixture()

	require.NoError(t, svc.closeSection(context.Background(), "sec-1"))

	assert.InDelta(t, 91.5, enrollments.completed["enr-1"], 0.001)
	assert.InDelta(t, 91.5, enrollments.completed["enr-2"], 0.001)
	assert.ElementsMatch(t, []string{"stu-1", "stu-2"}, eligibility.invalidated)

	require.Len(t, sections.updated, 1)
	assert.Equal(t, models.SectionStatusCompleted, sections.updated[0].Status)
}

func TestCloseSectionIsIdempotent(t *testing.T) {
	svc, _, _, enrollments, _ := newSessionFixture()
	ctx := context.Background()

	require.NoError(t, svc.closeSection(ctx, "sec-1"))
	// Second pass finds already-completed enrollments; the zero-row updates
	// are skipped without error.
	require.NoError(t, svc.closeSection(ctx, "sec-1"))
	assert.Len(t, enrollments.completed, 2)
}

func TestCloseSectionCancelsUnpublishedDrafts(t *testing.T) {
	svc, _, sections, _, _ := newSessionFixture()

	require.NoError(t, svc.closeSection(context.Background(), "sec-2"))
	require.Len(t, sections.updated, 1)
	assert.Equal(t, models.SectionStatusCancelled, sections.updated[0].Status)
}
