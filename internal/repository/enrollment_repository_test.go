package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.Equal(t, 1, enrollment.Version)

	rows := sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "version", "enrolled_at",
		"dropped_at", "dropped_by", "drop_reason", "final_grade"}).
		AddRow(enrollment.ID, "stu-1", "sec-1", "ENROLLED", 1, time.Now(), nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, section_id, status, version")).
		WithArgs(enrollment.ID).
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, "stu-1", found.StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkDroppedVersionGuard(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	droppedAt := time.Now().UTC()
	reason := "schedule conflict"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, version = version + 1")).
		WithArgs("enr-1", string(models.EnrollmentStatusDropped), droppedAt, nil, &reason, 1, string(models.EnrollmentStatusEnrolled)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.MarkDropped(context.Background(), "enr-1", 1, droppedAt, nil, &reason)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	// A stale version matches no row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, version = version + 1")).
		WithArgs("enr-1", string(models.EnrollmentStatusDropped), droppedAt, nil, &reason, 1, string(models.EnrollmentStatusEnrolled)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err = repo.MarkDropped(context.Background(), "enr-1", 1, droppedAt, nil, &reason)
	require.NoError(t, err)
	require.Zero(t, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkCompleted(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, version = version + 1, final_grade = $3")).
		WithArgs("enr-1", string(models.EnrollmentStatusCompleted), 86.67, 2, string(models.EnrollmentStatusEnrolled)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.MarkCompleted(context.Background(), "enr-1", 2, 86.67)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1")).
		WithArgs("stu-1", "sec-1", string(models.EnrollmentStatusEnrolled), string(models.EnrollmentStatusCompleted)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1")).
		WithArgs("stu-2", "sec-1", string(models.EnrollmentStatusEnrolled), string(models.EnrollmentStatusCompleted)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsActive(context.Background(), "stu-2", "sec-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCompletedCourseCodes(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	rows := sqlmock.NewRows([]string{"code"}).AddRow("MATH-1").AddRow("ENG-2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT c.code")).
		WithArgs("stu-1", string(models.EnrollmentStatusCompleted)).
		WillReturnRows(rows)

	codes, err := repo.CompletedCourseCodes(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, []string{"MATH-1", "ENG-2"}, codes)
	require.NoError(t, mock.ExpectationsWereMet())
}
