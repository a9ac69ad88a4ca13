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

func newSectionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSectionRepositoryReserveSeat(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()

	repo := NewSectionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET enrolled_count = enrolled_count + 1")).
		WithArgs("sec-1", sqlmock.AnyArg(), string(models.SectionStatusPublished)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.ReserveSeat(context.Background(), "sec-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	// Full, locked, or unpublished sections match no row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET enrolled_count = enrolled_count + 1")).
		WithArgs("sec-1", sqlmock.AnyArg(), string(models.SectionStatusPublished)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err = repo.ReserveSeat(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Zero(t, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryReleaseSeatFloorsAtZero(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()

	repo := NewSectionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET enrolled_count = enrolled_count - 1")).
		WithArgs("sec-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.ReleaseSeat(context.Background(), "sec-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET enrolled_count = enrolled_count - 1")).
		WithArgs("sec-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err = repo.ReleaseSeat(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Zero(t, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()

	repo := NewSectionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sections")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	section := &models.Section{CourseID: "course-1", SectionCode: "A", Capacity: 25, MinEnrollment: 5}
	require.NoError(t, repo.Create(context.Background(), section))
	require.NotEmpty(t, section.ID)
	require.Equal(t, models.SectionStatusDraft, section.Status)

	rows := sqlmock.NewRows([]string{"id", "course_id", "section_code", "capacity", "min_enrollment", "status",
		"enrollment_locked", "enrolled_count", "created_at", "updated_at"}).
		AddRow(section.ID, "course-1", "A", 25, 5, "DRAFT", false, 0, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_id, section_code, capacity")).
		WithArgs(section.ID).
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), section.ID)
	require.NoError(t, err)
	require.Equal(t, 25, found.Capacity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositorySeatCount(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()

	repo := NewSectionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT enrolled_count FROM sections WHERE id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled_count"}).AddRow(7))

	count, err := repo.SeatCount(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
