package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/importer"
)

type fakeStudentService struct {
	detail     *models.StudentDetail
	err        error
	filter     models.StudentFilter
	importRows []importer.Row
	batches    []string
	updateReq  models.UpdateStudentRequest
}

func (f *fakeStudentService) List(_ context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	f.filter = filter
	return []models.StudentDetail{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, f.err
}

func (f *fakeStudentService) Get(context.Context, string) (*models.StudentDetail, error) {
	return f.detail, f.err
}

func (f *fakeStudentService) Create(_ context.Context, req models.CreateStudentRequest) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Student{ID: "s1", Name: req.Name, RollNumber: req.RollNumber}, nil
}

func (f *fakeStudentService) Update(_ context.Context, id string, req models.UpdateStudentRequest) (*models.StudentDetail, error) {
	f.updateReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.StudentDetail{Student: models.Student{ID: id, Name: "Asha", RollNumber: "R1"}}, nil
}

func (f *fakeStudentService) Delete(context.Context, string) error { return f.err }

func (f *fakeStudentService) ListBatches(context.Context) ([]string, error) {
	return f.batches, f.err
}

func (f *fakeStudentService) Import(_ context.Context, rows []importer.Row) (*models.ImportReport, error) {
	f.importRows = rows
	return &models.ImportReport{Created: len(rows), Errors: []string{}}, nil
}

type fakeCourseGetter struct {
	course *models.Course
	err    error
}

func (f *fakeCourseGetter) Get(context.Context, string) (*models.Course, error) {
	return f.course, f.err
}

func TestStudentHandlerMeIncludesSelectedCourse(t *testing.T) {
	selected := "c1"
	svc := &fakeStudentService{detail: &models.StudentDetail{Student: models.Student{ID: "student-1", Name: "Asha", SelectedCourseID: &selected}}}
	h := NewStudentHandler(svc, &fakeCourseGetter{course: &models.Course{ID: "c1", Name: "ML"}})

	c, rec := newTestContext(http.MethodGet, "/students/me", nil, studentClaims())
	h.Me(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Name           string         `json:"name"`
		SelectedCourse *models.Course `json:"selected_course"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, "Asha", body.Name)
	require.NotNil(t, body.SelectedCourse)
	assert.Equal(t, "ML", body.SelectedCourse.Name)
}

func TestStudentHandlerMeToleratesMissingCourse(t *testing.T) {
	selected := "gone"
	svc := &fakeStudentService{detail: &models.StudentDetail{Student: models.Student{ID: "student-1", SelectedCourseID: &selected}}}
	h := NewStudentHandler(svc, &fakeCourseGetter{err: appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")})

	c, rec := newTestContext(http.MethodGet, "/students/me", nil, studentClaims())
	h.Me(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStudentHandlerListFilters(t *testing.T) {
	svc := &fakeStudentService{}
	h := NewStudentHandler(svc, nil)

	c, rec := newTestContext(http.MethodGet, "/admin/students?year=2&semester=3&batch=2024&search=ash&limit=10", nil, adminClaims())
	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.Year)
	require.NotNil(t, svc.filter.Semester)
	assert.Equal(t, 2, *svc.filter.Year)
	assert.Equal(t, 3, *svc.filter.Semester)
	assert.Equal(t, "2024", svc.filter.Batch)
	assert.Equal(t, "ash", svc.filter.Search)
	assert.Equal(t, 10, svc.filter.PageSize)
}

func TestStudentHandlerCreateDuplicateRoll(t *testing.T) {
	svc := &fakeStudentService{err: appErrors.Clone(appErrors.ErrConflict, "roll number already exists")}
	h := NewStudentHandler(svc, nil)

	c, rec := newTestContext(http.MethodPost, "/admin/students", jsonBody(t, map[string]string{"name": "Asha", "roll_number": "R1"}), adminClaims())
	h.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStudentHandlerUpdatePassesPartialFields(t *testing.T) {
	svc := &fakeStudentService{}
	h := NewStudentHandler(svc, nil)

	c, rec := newTestContext(http.MethodPut, "/admin/students/s1", jsonBody(t, map[string]int{"semester": 2}), adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	h.Update(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updateReq.Semester)
	assert.Equal(t, 2, *svc.updateReq.Semester)
	assert.Nil(t, svc.updateReq.Name)
}

func TestStudentHandlerImportReadsMultipartCSV(t *testing.T) {
	svc := &fakeStudentService{}
	h := NewStudentHandler(svc, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "students.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("RollNumber,Name,Semester\nR1,Asha,1\nR2,Ravi,1\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	c, rec := newTestContext(http.MethodPost, "/admin/students/import", &buf, adminClaims())
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	h.Import(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.importRows, 2)
	assert.Equal(t, "R1", svc.importRows[0].Get("RollNumber"))

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, "2 students uploaded successfully", body.Message)
}

func TestStudentHandlerImportRequiresFile(t *testing.T) {
	h := NewStudentHandler(&fakeStudentService{}, nil)

	c, rec := newTestContext(http.MethodPost, "/admin/students/import", nil, adminClaims())
	h.Import(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentHandlerBatches(t *testing.T) {
	h := NewStudentHandler(&fakeStudentService{batches: []string{"2024", "2025"}}, nil)

	c, rec := newTestContext(http.MethodGet, "/admin/batches", nil, adminClaims())
	h.Batches(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Batches []string `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, []string{"2024", "2025"}, body.Batches)
}
