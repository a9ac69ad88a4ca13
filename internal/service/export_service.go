package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/export"
)

type rosterEnrollmentLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

// ExportFormat selects the roster output encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes plus HTTP response metadata.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders section rosters as downloadable CSV or PDF files.
type ExportService struct {
	enrollments rosterEnrollmentLister
	sections    sectionReader
	grades      gradeComputer
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	enabled     bool
	maxRows     int
	pdfTitle    string
	logger      *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(enrollments rosterEnrollmentLister, sections sectionReader, grades gradeComputer, enabled bool, maxRows int, pdfTitle string, logger *zap.Logger) *ExportService {
	if maxRows <= 0 {
		maxRows = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		enrollments: enrollments,
		sections:    sections,
		grades:      grades,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		enabled:     enabled,
		maxRows:     maxRows,
		pdfTitle:    pdfTitle,
		logger:      logger,
	}
}

var rosterColumns = []string{"Student", "Status", "Enrolled At", "Current Grade"}

// Roster renders the section's enrollment roster. Each row carries the
// student's aggregate grade at render time; DROPPED records are excluded.
func (s *ExportService) Roster(ctx context.Context, sectionID string, format ExportFormat) (*ExportResult, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
	}

	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{
		SectionID: sectionID,
		PageSize:  s.maxRows,
		SortBy:    "student_name",
		SortOrder: "ASC",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load roster")
	}

	title := s.pdfTitle
	if title == "" {
		title = "Section Roster"
	}
	table := export.Table{
		Title:   fmt.Sprintf("%s %s", title, section.SectionCode),
		Columns: rosterColumns,
	}
	for _, enrollment := range enrollments {
		if enrollment.Status == models.EnrollmentStatusDropped {
			continue
		}
		grade := ""
		if enrollment.FinalGrade != nil {
			grade = strconv.FormatFloat(*enrollment.FinalGrade, 'f', 2, 64)
		} else {
			summary, err := s.grades.ComputeGrade(ctx, enrollment.StudentID, sectionID)
			if err != nil {
				s.logger.Warn("grade lookup failed during export",
					zap.String("student_id", enrollment.StudentID), zap.Error(err))
			} else {
				grade = strconv.FormatFloat(summary.Percentage, 'f', 2, 64)
			}
		}
		table.Rows = append(table.Rows, []string{
			enrollment.StudentName,
			string(enrollment.Status),
			enrollment.EnrolledAt.Format("2006-01-02"),
			grade,
		})
	}

	switch format {
	case ExportFormatPDF:
		data, err := s.pdf.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("roster-%s.pdf", section.SectionCode),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		data, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("roster-%s.csv", section.SectionCode),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	}
}
