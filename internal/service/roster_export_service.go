package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/student-tracker-api/internal/models"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/export"
)

// Roster formats.
const (
	RosterFormatCSV = "csv"
	RosterFormatPDF = "pdf"
)

type curriculumReader interface {
	Get(ctx context.Context, id int64) (*models.Curriculum, error)
	GetForTeacher(ctx context.Context, principal models.Principal, id int64) (*models.Curriculum, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// Roster is a rendered curriculum roster ready to be served.
type Roster struct {
	Filename    string
	ContentType string
	Body        []byte
}

// RosterExportService renders curriculum rosters as CSV or PDF.
type RosterExportService struct {
	curricula curriculumReader
	csv       documentRenderer
	pdf       documentRenderer
	logger    *zap.Logger
}

// NewRosterExportService constructs a RosterExportService.
func NewRosterExportService(curricula curriculumReader, csv, pdf documentRenderer, logger *zap.Logger) *RosterExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &RosterExportService{curricula: curricula, csv: csv, pdf: pdf, logger: logger}
}

// Export renders the roster of a curriculum visible to principal.
func (s *RosterExportService) Export(ctx context.Context, principal models.Principal, id int64, format string) (*Roster, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = RosterFormatCSV
	}
	renderer, contentType, err := s.rendererFor(format)
	if err != nil {
		return nil, err
	}

	curriculum, err := s.curricula.GetForTeacher(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	body, err := renderer.Render(rosterDocument(curriculum))
	if err != nil {
		s.logger.Error("failed to render roster", zap.Int64("curriculum_id", id), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to render roster")
	}
	return &Roster{
		Filename:    fmt.Sprintf("roster-%s.%s", sanitizeFilename(curriculum.Code), format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (s *RosterExportService) rendererFor(format string) (documentRenderer, string, error) {
	switch format {
	case RosterFormatCSV:
		return s.csv, "text/csv", nil
	case RosterFormatPDF:
		return s.pdf, "application/pdf", nil
	default:
		return nil, "", appErrors.Validation("unsupported roster format",
			appErrors.FieldError{Field: "format", Message: "format must be csv or pdf"})
	}
}

func rosterDocument(c *models.Curriculum) export.Document {
	subjects := export.Dataset{
		Name:    "Subjects",
		Headers: []string{"Subject Code", "Subject", "Teacher", "Assigned At"},
	}
	for _, row := range c.Subjects {
		subjects.Rows = append(subjects.Rows, map[string]string{
			"Subject Code": row.SubjectCode,
			"Subject":      row.SubjectName,
			"Teacher":      row.TeacherName,
			"Assigned At":  row.AssignedAt.Format("2006-01-02 15:04"),
		})
	}

	students := export.Dataset{
		Name:    "Students",
		Headers: []string{"Student ID", "Name", "Grade", "Enrolled At"},
	}
	for _, row := range c.Students {
		students.Rows = append(students.Rows, map[string]string{
			"Student ID":  strconv.FormatInt(row.StudentID, 10),
			"Name":        row.StudentName,
			"Grade":       strconv.Itoa(row.GradeLevel),
			"Enrolled At": row.EnrolledAt.Format("2006-01-02 15:04"),
		})
	}

	return export.Document{
		Title: fmt.Sprintf("%s (%s)", c.Name, c.Code),
		Summary: []string{
			fmt.Sprintf("Academic year: %s", c.AcademicYear),
			fmt.Sprintf("Semester: %s", c.Semester),
			fmt.Sprintf("Grade level: %d", c.GradeLevel),
		},
		Sections: []export.Dataset{subjects, students},
	}
}

func sanitizeFilename(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "curriculum"
	}
	return b.String()
}
