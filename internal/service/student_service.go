package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/importer"
	"github.com/noah-isme/elective-api/pkg/realtime"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByRollNumber(ctx context.Context, roll string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student, releaseSeat bool) (*string, error)
	Delete(ctx context.Context, id string) (*string, error)
	ListBatches(ctx context.Context) ([]string, error)
}

type courseCounter interface {
	Counts(ctx context.Context, ids []string) ([]models.CourseCount, error)
}

// StudentService manages student records for administrators.
type StudentService struct {
	repo      studentRepository
	counts    courseCounter
	publisher realtime.Publisher
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, counts courseCounter, publisher realtime.Publisher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		counts:    counts,
		publisher: publisher,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student. The roll number is the initial password unless one is given.
func (s *StudentService) Create(ctx context.Context, req models.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	req.RollNumber = strings.TrimSpace(req.RollNumber)

	exists, err := s.repo.ExistsByRollNumber(ctx, req.RollNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate roll number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "roll number already exists")
	}

	student, err := s.newStudent(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicateRollNumber) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "roll number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

func (s *StudentService) newStudent(req models.CreateStudentRequest) (*models.Student, error) {
	if req.Semester == 0 {
		req.Semester = models.MinSemester
	}
	if req.Year == 0 {
		req.Year = models.YearForSemester(req.Semester)
	}
	if req.Department == "" {
		req.Department = models.DefaultDepartment
	}
	password := req.Password
	if password == "" {
		password = req.RollNumber
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	return &models.Student{
		Name:         strings.TrimSpace(req.Name),
		RollNumber:   req.RollNumber,
		Year:         req.Year,
		Semester:     req.Semester,
		Department:   req.Department,
		Batch:        strings.TrimSpace(req.Batch),
		PasswordHash: hashed,
	}, nil
}

// Update applies a partial update. Changing the semester clears the selection
// and frees the seat so the semester gate keeps holding.
func (s *StudentService) Update(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	student := existing.Student
	releaseSeat := false

	if req.Name != nil {
		student.Name = strings.TrimSpace(*req.Name)
	}
	if req.RollNumber != nil && *req.RollNumber != student.RollNumber {
		roll := strings.TrimSpace(*req.RollNumber)
		exists, err := s.repo.ExistsByRollNumber(ctx, roll, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate roll number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "roll number already exists")
		}
		student.RollNumber = roll
	}
	if req.Year != nil {
		student.Year = *req.Year
	}
	if req.Semester != nil && *req.Semester != student.Semester {
		student.Semester = *req.Semester
		releaseSeat = true
	}
	if req.Department != nil {
		student.Department = *req.Department
	}
	if req.Batch != nil {
		student.Batch = strings.TrimSpace(*req.Batch)
	}
	if req.Password != nil {
		hashed, err := hashPassword(*req.Password)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		student.PasswordHash = hashed
	}

	detached, err := s.repo.Update(ctx, &student, releaseSeat)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrStudentNotFound
		case errors.Is(err, repository.ErrDuplicateRollNumber):
			return nil, appErrors.Clone(appErrors.ErrConflict, "roll number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	if detached != nil {
		s.broadcastReset(ctx, *detached)
	}
	return s.Get(ctx, id)
}

// Delete removes a student and frees any seat it held.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	detached, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStudentNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if detached != nil {
		s.broadcastReset(ctx, *detached)
	}
	return nil
}

// ListBatches returns distinct batch tags.
func (s *StudentService) ListBatches(ctx context.Context) ([]string, error) {
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, nil
}

// Import creates students from parsed rows. Rows without a roll number and
// existing roll numbers are skipped; per-row failures are collected.
func (s *StudentService) Import(ctx context.Context, rows []importer.Row) (*models.ImportReport, error) {
	report := &models.ImportReport{Errors: []string{}}
	defaultBatch := strconv.Itoa(s.now().Year())

	for _, row := range rows {
		roll := row.Get("RollNumber", "Roll Number", "Roll")
		if roll == "" {
			report.Skipped++
			continue
		}

		exists, err := s.repo.ExistsByRollNumber(ctx, roll, "")
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to add %s: %v", roll, err))
			continue
		}
		if exists {
			report.Skipped++
			continue
		}

		name := row.Get("Name", "Student Name")
		if name == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to add %s: name is required", roll))
			continue
		}
		batch := row.Get("Batch")
		if batch == "" {
			batch = defaultBatch
		}
		req := models.CreateStudentRequest{
			Name:       name,
			RollNumber: roll,
			Year:       parseBounded(row.Get("Year"), models.MinYear, models.MaxYear),
			Semester:   parseBounded(row.Get("Semester", "Sem"), models.MinSemester, models.MaxSemester),
			Department: row.Get("Department"),
			Batch:      batch,
		}
		student, err := s.newStudent(req)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to add %s: %v", roll, err))
			continue
		}
		if err := s.repo.Create(ctx, student); err != nil {
			if errors.Is(err, repository.ErrDuplicateRollNumber) {
				report.Skipped++
				continue
			}
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to add %s: %v", roll, err))
			continue
		}
		report.Created++
	}

	s.logger.Info("student import finished",
		zap.Int("rows", len(rows)),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Errors)))
	return report, nil
}

// parseBounded returns the parsed value, or the lower bound when it is missing or out of range.
func parseBounded(raw string, min, max int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < min || v > max {
		return min
	}
	return v
}

func (s *StudentService) broadcastReset(ctx context.Context, courseID string) {
	_ = s.cache.Invalidate(ctx, courseCachePattern)
	publishResets(ctx, s.counts, s.publisher, s.logger, []string{courseID})
}

// publishResets sends authoritative counts for courses whose enrollment shrank.
func publishResets(ctx context.Context, counts courseCounter, publisher realtime.Publisher, logger *zap.Logger, courseIDs []string) {
	if publisher == nil || counts == nil || len(courseIDs) == 0 {
		return
	}
	current, err := counts.Counts(ctx, courseIDs)
	if err != nil {
		logger.Warn("failed to load course counts for broadcast", zap.Error(err))
		return
	}
	publishCounts(ctx, publisher, logger, current)
}

func publishCounts(ctx context.Context, publisher realtime.Publisher, logger *zap.Logger, counts []models.CourseCount) {
	if publisher == nil {
		return
	}
	for _, c := range counts {
		update := realtime.CourseUpdate{CourseID: c.CourseID, EnrolledCount: c.EnrolledCount, Capacity: c.Capacity, Reset: true}
		if err := publisher.Publish(ctx, update); err != nil {
			logger.Warn("failed to publish course update", zap.String("course_id", c.CourseID), zap.Error(err))
		}
	}
}
