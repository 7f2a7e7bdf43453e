package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elective-api/internal/dto"
	"github.com/noah-isme/elective-api/internal/middleware"
	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/service"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error)
	ListForStudent(ctx context.Context, studentID string, filter models.CourseFilter) ([]models.Course, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, req models.CreateCourseRequest) (*models.Course, error)
	Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.Course, error)
	Delete(ctx context.Context, id string) error
	Roster(ctx context.Context, id string) (*models.Course, []models.RosterEntry, error)
}

type seatService interface {
	Select(ctx context.Context, studentID, courseID, origin string) (*models.SelectionResult, error)
}

type rosterExporter interface {
	ExportRoster(ctx context.Context, courseID, format string) (*service.ExportFile, error)
}

// CourseHandler exposes the catalogue, seat selection and course administration.
type CourseHandler struct {
	courses courseService
	seats   seatService
	exports rosterExporter
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService, seats seatService, exports rosterExporter) *CourseHandler {
	return &CourseHandler{courses: courses, seats: seats, exports: exports}
}

// List godoc
// @Summary List courses
// @Description Students only see courses offered for their current semester
// @Tags Courses
// @Produce json
// @Param semester query int false "Semester (admins only)"
// @Param department query string false "Department"
// @Param search query string false "Search by name or teacher"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims := middleware.CurrentUser(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.CourseFilter{
		Department: strings.TrimSpace(c.Query("department")),
		Search:     strings.TrimSpace(c.Query("search")),
		Page:       parseQueryInt(c, "page", 1),
		PageSize:   parseQueryInt(c, "limit", 20),
		SortBy:     c.Query("sort"),
		SortOrder:  c.Query("order"),
	}

	var (
		courses    []models.Course
		pagination *models.Pagination
		err        error
	)
	if claims.Role == models.RoleStudent {
		courses, pagination, err = h.courses.ListForStudent(c.Request.Context(), claims.UserID, filter)
	} else {
		filter.Semester = optionalQueryInt(c, "semester")
		courses, pagination, err = h.courses.List(c.Request.Context(), filter)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Select godoc
// @Summary Select a course
// @Description Claims a seat for the signed-in student. A student holds at most one course.
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/select [post]
func (h *CourseHandler) Select(c *gin.Context) {
	claims := middleware.CurrentUser(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.seats.Select(c.Request.Context(), claims.UserID, c.Param("id"), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SelectionResponse{Message: "Course selected successfully", Selection: result}, nil)
}

// Create godoc
// @Summary Create course
// @Tags Admin Courses
// @Accept json
// @Produce json
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req models.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Created course: %s", course.Name)
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Description Partial update. Capacity cannot drop below enrolled count.
// @Tags Admin Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req models.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Updated course: %s", course.Name)
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Admin Courses
// @Param id path string true "Course ID"
// @Success 204
// @Security BearerAuth
// @Router /admin/courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.courses.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Deleted course %s", id)
	response.NoContent(c)
}

// Roster godoc
// @Summary Course roster
// @Description Enrolled students in enrollment order
// @Tags Admin Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/courses/{id}/roster [get]
func (h *CourseHandler) Roster(c *gin.Context) {
	course, roster, err := h.courses.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RosterResponse{Course: course, Students: roster}, nil)
}

// ExportRoster godoc
// @Summary Export course roster
// @Tags Admin Courses
// @Produce octet-stream
// @Param id path string true "Course ID"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /admin/courses/{id}/roster/export [get]
func (h *CourseHandler) ExportRoster(c *gin.Context) {
	file, err := h.exports.ExportRoster(c.Request.Context(), c.Param("id"), strings.ToLower(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}
