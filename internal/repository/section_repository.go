package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

// SectionRepository handles persistence of sections, including the atomic
// seat-counter primitives the capacity ledger builds on.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `id, course_id, section_code, capacity, min_enrollment, status,
        enrollment_locked, enrolled_count, created_at, updated_at`

// List returns sections filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections s
JOIN courses c ON c.id = s.course_id
JOIN sessions ss ON ss.id = c.session_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("c.session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"section_code": "s.section_code",
		"course_code":  "c.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.section_code, s.capacity, s.min_enrollment, s.status,
        s.enrollment_locked, s.enrolled_count, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.session_id AS session_id, ss.code AS session_code
        %s ORDER BY %s %s, s.section_code ASC LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections WHERE id = $1`, sectionColumns)
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// ListByCourse returns sections belonging to a course.
func (r *SectionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections WHERE course_id = $1 ORDER BY section_code`, sectionColumns)
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, courseID); err != nil {
		return nil, fmt.Errorf("list course sections: %w", err)
	}
	return sections, nil
}

// ListBySession returns all sections of courses in the given session.
func (r *SectionRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Section, error) {
	const query = `SELECT s.id, s.course_id, s.section_code, s.capacity, s.min_enrollment, s.status,
        s.enrollment_locked, s.enrolled_count, s.created_at, s.updated_at
        FROM sections s JOIN courses c ON c.id = s.course_id WHERE c.session_id = $1`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session sections: %w", err)
	}
	return sections, nil
}

// Create persists a new section record.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	if section.Status == "" {
		section.Status = models.SectionStatusDraft
	}
	const query = `INSERT INTO sections (id, course_id, section_code, capacity, min_enrollment, status,
        enrollment_locked, enrolled_count, created_at, updated_at)
        VALUES (:id, :course_id, :section_code, :capacity, :min_enrollment, :status,
        :enrollment_locked, :enrolled_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update persists mutable section fields.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections SET section_code = :section_code, capacity = :capacity,
        min_enrollment = :min_enrollment, status = :status, enrollment_locked = :enrollment_locked,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// Delete removes a section. Callers must verify the draft/empty guard first.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sections WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}

// ReserveSeat atomically claims one seat. The conditional update is the
// linearization point: it only succeeds while a seat remains and the section
// is published and unlocked. Returns the number of rows affected (0 or 1).
func (r *SectionRepository) ReserveSeat(ctx context.Context, id string) (int64, error) {
	const query = `UPDATE sections SET enrolled_count = enrolled_count + 1, updated_at = $2
        WHERE id = $1 AND enrolled_count < capacity AND status = $3 AND enrollment_locked = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), models.SectionStatusPublished)
	if err != nil {
		return 0, fmt.Errorf("reserve seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reserve seat rows: %w", err)
	}
	return affected, nil
}

// ReleaseSeat atomically frees one seat, floored at zero. Releasing an
// already-vacated slot affects no rows and is not an error.
func (r *SectionRepository) ReleaseSeat(ctx context.Context, id string) (int64, error) {
	const query = `UPDATE sections SET enrolled_count = enrolled_count - 1, updated_at = $2
        WHERE id = $1 AND enrolled_count > 0`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("release seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release seat rows: %w", err)
	}
	return affected, nil
}

// SeatCount reads the materialized seat counter.
func (r *SectionRepository) SeatCount(ctx context.Context, id string) (int, error) {
	const query = `SELECT enrolled_count FROM sections WHERE id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, err
	}
	return count, nil
}
