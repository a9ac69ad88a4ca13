package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	active      map[string]bool
	created     *models.Enrollment
	createErr   error
	markErr     error
	conflict    bool
	reverted    []string

	// stale simulates a racing reader: FindByID serves this snapshot while
	// MarkDropped keeps checking the real record.
	stale *models.Enrollment
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if m.stale != nil && m.stale.ID == id {
		copied := *m.stale
		return &copied, nil
	}
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error) {
	return m.active[studentID+":"+sectionID], nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) MarkDropped(ctx context.Context, id string, version int, droppedAt time.Time, droppedBy, reason *string) (int64, error) {
	if m.markErr != nil {
		return 0, m.markErr
	}
	if m.conflict {
		return 0, nil
	}
	e, ok := m.enrollments[id]
	if !ok || e.Version != version || e.Status != models.EnrollmentStatusEnrolled {
		return 0, nil
	}
	e.Status = models.EnrollmentStatusDropped
	e.Version++
	e.DroppedAt = &droppedAt
	e.DroppedBy = droppedBy
	e.DropReason = reason
	m.enrollments[id] = e
	return 1, nil
}

func (m *mockEnrollmentRepo) MarkCompleted(ctx context.Context, id string, version int, finalGrade float64) (int64, error) {
	if m.markErr != nil {
		return 0, m.markErr
	}
	if m.conflict {
		return 0, nil
	}
	e, ok := m.enrollments[id]
	if !ok || e.Version != version || e.Status != models.EnrollmentStatusEnrolled {
		return 0, nil
	}
	e.Status = models.EnrollmentStatusCompleted
	e.Version++
	e.FinalGrade = &finalGrade
	m.enrollments[id] = e
	return 1, nil
}

func (m *mockEnrollmentRepo) RevertDrop(ctx context.Context, id string) error {
	m.reverted = append(m.reverted, id)
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = models.EnrollmentStatusEnrolled
	e.Version++
	e.DroppedAt = nil
	e.DroppedBy = nil
	e.DropReason = nil
	m.enrollments[id] = e
	return nil
}

type mockLedger struct {
	reserved   []string
	released   []string
	reserveErr error
	releaseErr error
}

func (m *mockLedger) TryReserve(ctx context.Context, sectionID string) error {
	if m.reserveErr != nil {
		return m.reserveErr
	}
	m.reserved = append(m.reserved, sectionID)
	return nil
}

func (m *mockLedger) Release(ctx context.Context, sectionID string) error {
	if m.releaseErr != nil {
		return m.releaseErr
	}
	m.released = append(m.released, sectionID)
	return nil
}

type mockEligibility struct {
	eligible    bool
	reason      string
	invalidated []string
}

func (m *mockEligibility) Check(ctx context.Context, studentID, courseID string) (*models.EligibilityResult, error) {
	return &models.EligibilityResult{StudentID: studentID, CourseID: courseID, Eligible: m.eligible, Reason: m.reason}, nil
}

func (m *mockEligibility) InvalidateStudent(ctx context.Context, studentID string) {
	m.invalidated = append(m.invalidated, studentID)
}

type mockGradeComputer struct {
	percentage float64
}

func (m *mockGradeComputer) ComputeGrade(ctx context.Context, studentID, sectionID string) (*models.GradeSummary, error) {
	return &models.GradeSummary{StudentID: studentID, SectionID: sectionID, Percentage: m.percentage}, nil
}

type mockSectionReader struct {
	sections map[string]*models.Section
}

func (m *mockSectionReader) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockSessionReader struct {
	sessions map[string]*models.Session
}

func (m *mockSessionReader) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type enrollmentFixture struct {
	svc         *EnrollmentService
	repo        *mockEnrollmentRepo
	ledger      *mockLedger
	eligibility *mockEligibility
	grades      *mockGradeComputer
	sessions    *mockSessionReader
}

func newEnrollmentFixture() *enrollmentFixture {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{},
		active:      map[string]bool{},
	}
	ledger := &mockLedger{}
	eligibility := &mockEligibility{eligible: true}
	grades := &mockGradeComputer{percentage: 86.67}
	sessions := &mockSessionReader{sessions: map[string]*models.Session{
		"ses-1": {ID: "ses-1", Status: models.SessionStatusActive},
	}}
	svc := NewEnrollmentService(
		repo,
		ledger,
		eligibility,
		grades,
		&mockSectionReader{sections: map[string]*models.Section{
			"sec-1": {ID: "sec-1", CourseID: "course-1", Status: models.SectionStatusPublished, Capacity: 10},
		}},
		&mockCourseReader{courses: map[string]*models.Course{
			"course-1": {ID: "course-1", SessionID: "ses-1", Code: "MATH-1"},
		}},
		&mockStudentReader{students: map[string]*models.Student{
			"stu-1": {ID: "stu-1", Active: true},
			"stu-2": {ID: "stu-2", Active: false},
		}},
		sessions,
		nil,
		nil,
		nil,
		0,
	)
	return &enrollmentFixture{svc: svc, repo: repo, ledger: ledger, eligibility: eligibility, grades: grades, sessions: sessions}
}

func TestEnrollHappyPath(t *testing.T) {
	f := newEnrollmentFixture()

	detail, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	assert.Equal(t, 1, detail.Version)
	require.Len(t, f.ledger.reserved, 1)
	assert.Empty(t, f.ledger.released)
}

func TestEnrollRejectsDuplicates(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.active["stu-1:sec-1"] = true

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyEnrolled))
	assert.Empty(t, f.ledger.reserved)
}

func TestEnrollRejectsIneligible(t *testing.T) {
	f := newEnrollmentFixture()
	f.eligibility.eligible = false
	f.eligibility.reason = "requires completion of [MATH-1]"

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotEligible))
	assert.Empty(t, f.ledger.reserved)
}

func TestEnrollRejectsInactiveStudent(t *testing.T) {
	f := newEnrollmentFixture()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-2", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestEnrollSurfacesCapacityErrors(t *testing.T) {
	f := newEnrollmentFixture()
	f.ledger.reserveErr = appErrors.Clone(appErrors.ErrCapacityFull, "")

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCapacityFull))
}

func TestEnrollReleasesSeatWhenPersistFails(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.createErr = errors.New("disk on fire")

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStorage))
	require.Len(t, f.ledger.reserved, 1)
	require.Len(t, f.ledger.released, 1)
}

func TestDropReleasesSeat(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
		Status: models.EnrollmentStatusEnrolled, Version: 1,
	}

	detail, err := f.svc.Drop(context.Background(), "enr-1", DropRequest{Reason: "schedule conflict", DroppedBy: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, detail.Status)
	assert.Equal(t, 2, detail.Version)
	require.NotNil(t, detail.DropReason)
	assert.Equal(t, "schedule conflict", *detail.DropReason)
	require.Len(t, f.ledger.released, 1)
}

func TestDropRejectsNonEnrolled(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", SectionID: "sec-1", Status: models.EnrollmentStatusDropped, Version: 2,
	}

	_, err := f.svc.Drop(context.Background(), "enr-1", DropRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Empty(t, f.ledger.released)
}

func TestDropConflictNeverTouchesSeat(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled, Version: 1,
	}
	f.repo.conflict = true

	_, err := f.svc.Drop(context.Background(), "enr-1", DropRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	// The version guard lost, so the counter must not move.
	assert.Empty(t, f.ledger.released)
	assert.Empty(t, f.ledger.reserved)
}

func TestDropVersionGuardGatesSeatRelease(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
		Status: models.EnrollmentStatusEnrolled, Version: 1,
	}

	_, err := f.svc.Drop(context.Background(), "enr-1", DropRequest{})
	require.NoError(t, err)
	require.Len(t, f.ledger.released, 1)

	// A second caller raced past the status read with a stale ENROLLED
	// snapshot. The version guard must reject it before the seat moves,
	// otherwise two drops of one enrollment would free two seats.
	f.repo.stale = &models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
		Status: models.EnrollmentStatusEnrolled, Version: 1,
	}
	_, err = f.svc.Drop(context.Background(), "enr-1", DropRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Len(t, f.ledger.released, 1)
	assert.Empty(t, f.ledger.reserved)
}

func TestDropRevertsWhenReleaseFails(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
		Status: models.EnrollmentStatusEnrolled, Version: 1,
	}
	f.ledger.releaseErr = appErrors.Clone(appErrors.ErrStorage, "counter unavailable")

	_, err := f.svc.Drop(context.Background(), "enr-1", DropRequest{})
	require.Error(t, err)
	assert.Equal(t, []string{"enr-1"}, f.repo.reverted)
	assert.Equal(t, models.EnrollmentStatusEnrolled, f.repo.enrollments["enr-1"].Status)
}

func TestReEnrollAfterDropCreatesFreshRecord(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
		Status: models.EnrollmentStatusEnrolled, Version: 1,
	}

	_, err := f.svc.Drop(context.Background(), "enr-1", DropRequest{})
	require.NoError(t, err)

	detail, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.NotEqual(t, "enr-1", detail.ID)
	assert.Equal(t, 1, detail.Version)

	old := f.repo.enrollments["enr-1"]
	assert.Equal(t, models.EnrollmentStatusDropped, old.Status)
}

func TestCompleteRequiresClosingSession(t *testing.T) {
	f := newEnrollmentFixture()
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
		Status: models.EnrollmentStatusEnrolled, Version: 1,
	}

	_, err := f.svc.Complete(context.Background(), "enr-1", CompleteRequest{FinalGrade: 86.67})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestCompleteValidatesGradeAgainstAggregator(t *testing.T) {
	f := newEnrollmentFixture()
	f.sessions.sessions["ses-1"].Status = models.SessionStatusCompleted
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
		Status: models.EnrollmentStatusEnrolled, Version: 1,
	}

	_, err := f.svc.Complete(context.Background(), "enr-1", CompleteRequest{FinalGrade: 50})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	detail, err := f.svc.Complete(context.Background(), "enr-1", CompleteRequest{FinalGrade: 86.67})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, detail.Status)
	require.NotNil(t, detail.FinalGrade)
	assert.InDelta(t, 86.67, *detail.FinalGrade, 0.001)
	assert.Equal(t, []string{"stu-1"}, f.eligibility.invalidated)
}

func TestCompleteKeepsSeatOccupied(t *testing.T) {
	f := newEnrollmentFixture()
	f.sessions.sessions["ses-1"].Status = models.SessionStatusCompleted
	f.repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
		Status: models.EnrollmentStatusEnrolled, Version: 1,
	}

	_, err := f.svc.Complete(context.Background(), "enr-1", CompleteRequest{FinalGrade: 86.67})
	require.NoError(t, err)
	assert.Empty(t, f.ledger.released)
}
