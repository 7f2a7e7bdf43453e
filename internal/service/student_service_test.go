package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository/memory"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/importer"
)

func newTestStudentService(store *memory.Store, publisher *recordingPublisher) *StudentService {
	svc := NewStudentService(store.Students(), store.Courses(), publisher, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestCreateStudentDefaults(t *testing.T) {
	store := memory.NewStore()
	svc := newTestStudentService(store, nil)

	student, err := svc.Create(context.Background(), models.CreateStudentRequest{Name: " Asha ", RollNumber: "MCA010", Semester: 3})
	require.NoError(t, err)
	assert.Equal(t, "Asha", student.Name)
	assert.Equal(t, 2, student.Year)
	assert.Equal(t, models.DefaultDepartment, student.Department)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte("MCA010")))

	_, err = svc.Create(context.Background(), models.CreateStudentRequest{Name: "Other", RollNumber: "MCA010"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	_, err = svc.Create(context.Background(), models.CreateStudentRequest{Name: "Bad", RollNumber: "MCA011", Semester: 5})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestUpdateStudentSemesterReleasesSeat(t *testing.T) {
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	svc := newTestStudentService(store, publisher)
	ctx := context.Background()
	course := seedCourse(t, store, "Cyber Security", 1, 4)
	student := seedStudent(t, store, "MCA020", 1, "2024")
	_, err := store.Seats().ClaimSeat(ctx, student.ID, course.ID)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, student.ID, models.UpdateStudentRequest{Semester: intPtr(2), Batch: strPtr("2023")})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Semester)
	assert.Equal(t, "2023", updated.Batch)
	assert.Equal(t, student.Name, updated.Name)
	assert.Nil(t, updated.SelectedCourseID)

	reloaded, err := store.Courses().FindByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.EnrolledCount)

	updates := publisher.snapshot()
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Reset)
	assert.Zero(t, updates[0].EnrolledCount)
}

func TestUpdateStudentKeepsSelectionWhenSemesterUnchanged(t *testing.T) {
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	svc := newTestStudentService(store, publisher)
	ctx := context.Background()
	course := seedCourse(t, store, "Cyber Security", 1, 4)
	student := seedStudent(t, store, "MCA021", 1, "2024")
	_, err := store.Seats().ClaimSeat(ctx, student.ID, course.ID)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, student.ID, models.UpdateStudentRequest{Name: strPtr("Renamed"), Semester: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	require.NotNil(t, updated.SelectedCourseID)
	assert.Empty(t, publisher.snapshot())

	_, err = svc.Update(ctx, "missing", models.UpdateStudentRequest{Name: strPtr("x")})
	assert.ErrorIs(t, err, appErrors.ErrStudentNotFound)
}

func TestDeleteStudentDetachesFromCourse(t *testing.T) {
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	svc := newTestStudentService(store, publisher)
	ctx := context.Background()
	course := seedCourse(t, store, "Blockchain", 2, 2)
	student := seedStudent(t, store, "MCA030", 2, "2024")
	_, err := store.Seats().ClaimSeat(ctx, student.ID, course.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, student.ID))
	assert.ErrorIs(t, svc.Delete(ctx, student.ID), appErrors.ErrStudentNotFound)

	roster, err := store.Courses().Roster(ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, roster)
	updates := publisher.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, course.ID, updates[0].CourseID)
	assert.Zero(t, updates[0].EnrolledCount)
}

func TestImportStudents(t *testing.T) {
	store := memory.NewStore()
	svc := newTestStudentService(store, nil)
	seedStudent(t, store, "MCA040", 1, "2024")

	doc := "\ufeffName, RollNumber ,Year,Semester,Batch\n" +
		"Ravi,MCA041,2,3,2023\n" +
		"No Roll,,1,1,2024\n" +
		"Existing,MCA040,1,1,2024\n" +
		"Meena,MCA042,x,9,\n" +
		",MCA043,1,1,2024\n"
	rows, err := importer.ReadRows(strings.NewReader(doc))
	require.NoError(t, err)

	report, err := svc.Import(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "Failed to add MCA043: name is required", report.Errors[0])

	students, _, err := svc.List(context.Background(), models.StudentFilter{Search: "mca04"})
	require.NoError(t, err)
	byRoll := make(map[string]models.StudentDetail)
	for _, st := range students {
		byRoll[st.RollNumber] = st
	}
	require.Contains(t, byRoll, "MCA042")
	assert.Equal(t, 1, byRoll["MCA042"].Year)
	assert.Equal(t, 1, byRoll["MCA042"].Semester)
	assert.Equal(t, "2025", byRoll["MCA042"].Batch)
	assert.Equal(t, 3, byRoll["MCA041"].Semester)
	assert.Equal(t, "2023", byRoll["MCA041"].Batch)
}

func TestListStudentsPagination(t *testing.T) {
	store := memory.NewStore()
	svc := newTestStudentService(store, nil)
	for _, roll := range []string{"A1", "A2", "A3"} {
		seedStudent(t, store, roll, 2, "2024")
	}
	seedStudent(t, store, "B1", 1, "2025")

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{Semester: intPtr(2), PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, 3, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)

	batches, err := svc.ListBatches(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2024", "2025"}, batches)
}
