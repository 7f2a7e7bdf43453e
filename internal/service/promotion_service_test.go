package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository/memory"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
)

func TestPromoteNextGraduatesFinalSemester(t *testing.T) {
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	svc := NewPromotionService(store.Promotions(), publisher, nil, nil, nil, nil)
	ctx := context.Background()

	course := seedCourse(t, store, "Cloud", 2, 5)
	promoted := seedStudent(t, store, "P1", 2, "2024")
	finalist := seedStudent(t, store, "P2", 4, "2024")
	other := seedStudent(t, store, "P3", 2, "2025")
	for _, st := range []*models.Student{promoted, other} {
		_, err := store.Seats().ClaimSeat(ctx, st.ID, course.ID)
		require.NoError(t, err)
	}

	result, err := svc.PromoteNext(ctx, models.PromoteBatchRequest{Batch: " 2024 "})
	require.NoError(t, err)
	assert.Equal(t, "2024", result.Batch)
	assert.Equal(t, 1, result.PromotedCount)
	assert.Equal(t, 1, result.GraduatedCount)

	moved, err := store.Students().FindByID(ctx, promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, moved.Semester)
	assert.Equal(t, 2, moved.Year)
	assert.Nil(t, moved.SelectedCourseID)

	graduated, err := store.Students().FindByID(ctx, finalist.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, graduated.Semester)

	roster, err := store.Courses().Roster(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, other.ID, roster[0].StudentID)

	updates := publisher.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, 1, updates[0].EnrolledCount)
	assert.True(t, updates[0].Reset)
}

func TestPromoteNextUnknownBatch(t *testing.T) {
	store := memory.NewStore()
	svc := NewPromotionService(store.Promotions(), nil, nil, nil, nil, nil)

	_, err := svc.PromoteNext(context.Background(), models.PromoteBatchRequest{Batch: "1999"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.PromoteNext(context.Background(), models.PromoteBatchRequest{Batch: "  "})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestSetSemesterValidatesAndDetaches(t *testing.T) {
	store := memory.NewStore()
	svc := NewPromotionService(store.Promotions(), nil, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.SetSemester(ctx, models.SetSemesterRequest{Batch: "2024", Semester: 5})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	_, err = svc.SetSemester(ctx, models.SetSemesterRequest{Batch: "2024", Semester: 2, Year: intPtr(3)})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	course := seedCourse(t, store, "HCI", 1, 5)
	a := seedStudent(t, store, "Q1", 1, "2024")
	seedStudent(t, store, "Q2", 1, "2024")
	_, err = store.Seats().ClaimSeat(ctx, a.ID, course.ID)
	require.NoError(t, err)

	result, err := svc.SetSemester(ctx, models.SetSemesterRequest{Batch: "2024", Semester: 3, Year: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ModifiedCount)
	assert.Equal(t, 1, result.DetachedCount)

	moved, err := store.Students().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, moved.Semester)
	assert.Equal(t, 2, moved.Year)
	assert.Nil(t, moved.SelectedCourseID)

	empty, err := svc.SetSemester(ctx, models.SetSemesterRequest{Batch: "2030", Semester: 1})
	require.NoError(t, err)
	assert.Zero(t, empty.ModifiedCount)
}
