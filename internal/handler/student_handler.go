package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elective-api/internal/dto"
	"github.com/noah-isme/elective-api/internal/middleware"
	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/importer"
	"github.com/noah-isme/elective-api/pkg/response"
)

const maxImportSize = 5 << 20

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.StudentDetail, error)
	Create(ctx context.Context, req models.CreateStudentRequest) (*models.Student, error)
	Update(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.StudentDetail, error)
	Delete(ctx context.Context, id string) error
	ListBatches(ctx context.Context) ([]string, error)
	Import(ctx context.Context, rows []importer.Row) (*models.ImportReport, error)
}

type courseGetter interface {
	Get(ctx context.Context, id string) (*models.Course, error)
}

// StudentHandler manages student records and the signed-in student's profile.
type StudentHandler struct {
	service studentService
	courses courseGetter
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(svc studentService, courses courseGetter) *StudentHandler {
	return &StudentHandler{service: svc, courses: courses}
}

// Me godoc
// @Summary Current student profile
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/me [get]
func (h *StudentHandler) Me(c *gin.Context) {
	claims := middleware.CurrentUser(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	student, err := h.service.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	profile := dto.StudentProfile{StudentDetail: *student}
	if student.HasSelection() && h.courses != nil {
		course, err := h.courses.Get(c.Request.Context(), *student.SelectedCourseID)
		if err != nil && !appErrors.IsCode(err, appErrors.ErrCourseNotFound.Code) {
			response.Error(c, err)
			return
		}
		profile.SelectedCourse = course
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// List godoc
// @Summary List students
// @Tags Admin Students
// @Produce json
// @Param year query int false "Year"
// @Param semester query int false "Semester"
// @Param batch query string false "Batch"
// @Param search query string false "Search by name or roll number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Year:      optionalQueryInt(c, "year"),
		Semester:  optionalQueryInt(c, "semester"),
		Batch:     strings.TrimSpace(c.Query("batch")),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "limit", 20),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	students, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student
// @Tags Admin Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Create student
// @Description Password defaults to the roll number
// @Tags Admin Students
// @Accept json
// @Produce json
// @Param payload body models.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req models.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Added student: %s (%s)", student.Name, student.RollNumber)
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Description Partial update. Changing the semester releases the held seat.
// @Tags Admin Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req models.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Updated student: %s (%s)", student.Name, student.RollNumber)
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student
// @Tags Admin Students
// @Param id path string true "Student ID"
// @Success 204
// @Security BearerAuth
// @Router /admin/students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Deleted student %s", id)
	response.NoContent(c)
}

// Import godoc
// @Summary Bulk import students
// @Description CSV upload with RollNumber, Name, Year, Semester, Department and Batch columns
// @Tags Admin Students
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/students/import [post]
func (h *StudentHandler) Import(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if header.Size > maxImportSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds 5MB limit"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read upload"))
		return
	}
	defer file.Close()

	rows, err := importer.ReadRows(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid csv file"))
		return
	}
	report, err := h.service.Import(c.Request.Context(), rows)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Imported %d students from %s", report.Created, header.Filename)
	response.JSON(c, http.StatusOK, dto.ImportResponse{
		Message: fmt.Sprintf("%d students uploaded successfully", report.Created),
		Report:  report,
	}, nil)
}

// Batches godoc
// @Summary List batches
// @Tags Admin Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/batches [get]
func (h *StudentHandler) Batches(c *gin.Context) {
	batches, err := h.service.ListBatches(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.BatchList{Batches: batches}, nil)
}
