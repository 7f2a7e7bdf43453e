package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/realtime"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	Roster(ctx context.Context, courseID string) ([]models.RosterEntry, error)
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type cachedCourseList struct {
	Courses    []models.Course    `json:"courses"`
	Pagination *models.Pagination `json:"pagination"`
}

// CourseService manages the elective catalogue.
type CourseService struct {
	repo      courseRepository
	students  studentLookup
	publisher realtime.Publisher
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, students studentLookup, publisher realtime.Publisher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, students: students, publisher: publisher, cache: cache, validator: validate, logger: logger}
}

// List returns courses with their enrolled counts. Results are cached until the next seat change.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	key := courseListKey(courseFilterKey(filter)...)

	var cached cachedCourseList
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Courses, cached.Pagination, nil
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	_ = s.cache.Set(ctx, key, cachedCourseList{Courses: courses, Pagination: pagination}, 0)
	return courses, pagination, nil
}

// ListForStudent restricts the catalogue to the student's current semester.
func (s *CourseService) ListForStudent(ctx context.Context, studentID string, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrStudentNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	semester := student.Semester
	filter.Semester = &semester
	return s.List(ctx, filter)
}

func courseFilterKey(filter models.CourseFilter) []string {
	semester := "all"
	if filter.Semester != nil {
		semester = strconv.Itoa(*filter.Semester)
	}
	return []string{
		semester,
		strings.ToLower(filter.Department),
		strings.ToLower(filter.Search),
		strconv.Itoa(filter.Page),
		strconv.Itoa(filter.PageSize),
		filter.SortBy,
		filter.SortOrder,
	}
}

// Get returns a course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course, applying catalogue defaults.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Teacher:      strings.TrimSpace(req.Teacher),
		TeacherEmail: strings.TrimSpace(req.TeacherEmail),
		Semester:     req.Semester,
		Department:   req.Department,
		Capacity:     req.Capacity,
		SyllabusLink: req.SyllabusLink,
	}
	if course.Semester == 0 {
		course.Semester = models.MinSemester
	}
	if course.Capacity == 0 {
		course.Capacity = models.DefaultCapacity
	}
	if course.Department == "" {
		course.Department = models.DefaultDepartment
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	_ = s.cache.Invalidate(ctx, courseCachePattern)
	return course, nil
}

// Update applies a partial update. Capacity may not drop below the enrolled count
// and the semester cannot change while students hold seats.
func (s *CourseService) Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		course.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Teacher != nil {
		course.Teacher = strings.TrimSpace(*req.Teacher)
	}
	if req.TeacherEmail != nil {
		course.TeacherEmail = strings.TrimSpace(*req.TeacherEmail)
	}
	if req.Semester != nil {
		course.Semester = *req.Semester
	}
	if req.Department != nil {
		course.Department = *req.Department
	}
	if req.Capacity != nil {
		course.Capacity = *req.Capacity
	}
	if req.SyllabusLink != nil {
		course.SyllabusLink = *req.SyllabusLink
	}

	if err := s.repo.Update(ctx, course); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrCourseNotFound
		case errors.Is(err, repository.ErrCapacityBelowEnrolled):
			return nil, appErrors.Clone(appErrors.ErrConflict, "capacity cannot be lower than the number of enrolled students")
		case errors.Is(err, repository.ErrCourseHasEnrollments):
			return nil, appErrors.Clone(appErrors.ErrConflict, "semester cannot change while students are enrolled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	_ = s.cache.Invalidate(ctx, courseCachePattern)
	publishCounts(ctx, s.publisher, s.logger, []models.CourseCount{{
		CourseID:      course.ID,
		EnrolledCount: course.EnrolledCount,
		Capacity:      course.Capacity,
	}})
	return course, nil
}

// Delete removes a course and releases every seat on it.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrCourseNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	_ = s.cache.Invalidate(ctx, courseCachePattern)
	return nil
}

// Roster returns the enrolled students in enrollment order.
func (s *CourseService) Roster(ctx context.Context, id string) (*models.Course, []models.RosterEntry, error) {
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	roster, err := s.repo.Roster(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return course, roster, nil
}
