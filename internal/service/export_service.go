package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/export"
)

// Roster columns shared by exports and course-filled notifications.
var rosterHeaders = []string{"S.No", "Name", "Roll Number", "Year", "Semester", "Batch"}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// rosterFilename derives an attachment name from the course name and date.
func rosterFilename(courseName string, at time.Time, extension string) string {
	safe := unsafeFilenameChars.ReplaceAllString(courseName, "_")
	return fmt.Sprintf("%s_Students_%s.%s", safe, at.Format("2006-01-02"), extension)
}

func rosterDataset(courseName string, roster []models.RosterEntry) export.Dataset {
	rows := make([]map[string]string, 0, len(roster))
	for _, entry := range roster {
		batch := entry.Batch
		if batch == "" {
			batch = "-"
		}
		rows = append(rows, map[string]string{
			"S.No":        strconv.Itoa(entry.Position),
			"Name":        entry.Name,
			"Roll Number": entry.RollNumber,
			"Year":        strconv.Itoa(entry.Year),
			"Semester":    strconv.Itoa(entry.Semester),
			"Batch":       batch,
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s - Enrolled Students", courseName),
		Headers: rosterHeaders,
		Rows:    rows,
	}
}

type rosterSource interface {
	Roster(ctx context.Context, id string) (*models.Course, []models.RosterEntry, error)
}

// ExportFile is a rendered roster ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders course rosters into downloadable files.
type ExportService struct {
	courses rosterSource
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(courses rosterSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{courses: courses, logger: logger, now: time.Now}
}

// ExportRoster renders the roster of courseID as csv, pdf or xlsx.
func (s *ExportService) ExportRoster(ctx context.Context, courseID, format string) (*ExportFile, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv, pdf or xlsx")
	}
	course, roster, err := s.courses.Roster(ctx, courseID)
	if err != nil {
		return nil, err
	}
	content, err := renderer.Render(rosterDataset(course.Name, roster))
	if err != nil {
		s.logger.Error("failed to render roster export", zap.String("course_id", courseID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &ExportFile{
		Filename:    rosterFilename(course.Name, s.now(), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}
