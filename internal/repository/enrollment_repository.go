package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollment records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, section_id, status, version, enrolled_at,
        dropped_at, dropped_by, drop_reason, final_grade`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students st ON st.id = e.student_id
JOIN sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "st.full_name",
		"course_code":  "c.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.section_id, e.status, e.version, e.enrolled_at,
        e.dropped_at, e.dropped_by, e.drop_reason, e.final_grade,
        st.full_name AS student_name, s.section_code AS section_code, c.code AS course_code, c.name AS course_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.section_id, e.status, e.version, e.enrolled_at,
        e.dropped_at, e.dropped_by, e.drop_reason, e.final_grade,
        st.full_name AS student_name, s.section_code AS section_code, c.code AS course_code, c.name AS course_name
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActive checks whether an ENROLLED or COMPLETED record exists for the
// (student, section) pair. DROPPED history does not count.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID, sectionID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	if enrollment.Version == 0 {
		enrollment.Version = 1
	}
	const query = `INSERT INTO enrollments (id, student_id, section_id, status, version, enrolled_at,
        dropped_at, dropped_by, drop_reason, final_grade)
        VALUES (:id, :student_id, :section_id, :status, :version, :enrolled_at,
        :dropped_at, :dropped_by, :drop_reason, :final_grade)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// MarkDropped transitions an ENROLLED record to DROPPED, guarded by the
// optimistic version. Returns the number of rows affected; zero means the
// record was concurrently modified or no longer ENROLLED.
func (r *EnrollmentRepository) MarkDropped(ctx context.Context, id string, version int, droppedAt time.Time, droppedBy, reason *string) (int64, error) {
	const query = `UPDATE enrollments SET status = $2, version = version + 1,
        dropped_at = $3, dropped_by = $4, drop_reason = $5
        WHERE id = $1 AND version = $6 AND status = $7`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusDropped,
		droppedAt, droppedBy, reason, version, models.EnrollmentStatusEnrolled)
	if err != nil {
		return 0, fmt.Errorf("mark enrollment dropped: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark dropped rows: %w", err)
	}
	return affected, nil
}

// MarkCompleted transitions an ENROLLED record to COMPLETED with its final
// grade snapshot, guarded by the optimistic version.
func (r *EnrollmentRepository) MarkCompleted(ctx context.Context, id string, version int, finalGrade float64) (int64, error) {
	const query = `UPDATE enrollments SET status = $2, version = version + 1, final_grade = $3
        WHERE id = $1 AND version = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusCompleted,
		finalGrade, version, models.EnrollmentStatusEnrolled)
	if err != nil {
		return 0, fmt.Errorf("mark enrollment completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark completed rows: %w", err)
	}
	return affected, nil
}

// RevertDrop restores a DROPPED record to ENROLLED. Compensating action for a
// drop whose seat release failed after the transition was persisted.
func (r *EnrollmentRepository) RevertDrop(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET status = $2, version = version + 1,
        dropped_at = NULL, dropped_by = NULL, drop_reason = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusEnrolled); err != nil {
		return fmt.Errorf("revert enrollment drop: %w", err)
	}
	return nil
}

// ListActiveBySection returns ENROLLED records for a section.
func (r *EnrollmentRepository) ListActiveBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE section_id = $1 AND status = $2`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return enrollments, nil
}

// CountActiveBySection counts ENROLLED plus COMPLETED records for a section,
// used to audit the materialized seat counter.
func (r *EnrollmentRepository) CountActiveBySection(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status IN ($2, $3)`
	var count int
	err := r.db.GetContext(ctx, &count, query, sectionID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("count section enrollments: %w", err)
	}
	return count, nil
}

// CompletedCourseCodes returns the codes of courses the student completed,
// feeding the course branch of the eligibility evaluator.
func (r *EnrollmentRepository) CompletedCourseCodes(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT DISTINCT c.code
        FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE e.student_id = $1 AND e.status = $2`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("completed course codes: %w", err)
	}
	return codes, nil
}
