package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository/memory"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
)

type mapCacheRepo struct {
	mu          sync.Mutex
	items       map[string][]byte
	invalidated []string
}

func newMapCacheRepo() *mapCacheRepo {
	return &mapCacheRepo{items: make(map[string][]byte)}
}

func (m *mapCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *mapCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

func (m *mapCacheRepo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func TestCreateCourseDefaults(t *testing.T) {
	store := memory.NewStore()
	svc := NewCourseService(store.Courses(), store.Students(), nil, nil, nil, nil)

	course, err := svc.Create(context.Background(), models.CreateCourseRequest{Name: "IoT", Teacher: "Dr. Iyer"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCapacity, course.Capacity)
	assert.Equal(t, 1, course.Semester)
	assert.Equal(t, models.DefaultDepartment, course.Department)

	_, err = svc.Create(context.Background(), models.CreateCourseRequest{Name: "IoT", Teacher: "Dr. Iyer", TeacherEmail: "not-an-email"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestUpdateCourseGuards(t *testing.T) {
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	svc := NewCourseService(store.Courses(), store.Students(), publisher, nil, nil, nil)
	ctx := context.Background()
	course := seedCourse(t, store, "Big Data", 2, 3)
	for _, roll := range []string{"S1", "S2"} {
		st := seedStudent(t, store, roll, 2, "2024")
		_, err := store.Seats().ClaimSeat(ctx, st.ID, course.ID)
		require.NoError(t, err)
	}

	_, err := svc.Update(ctx, course.ID, models.UpdateCourseRequest{Capacity: intPtr(1)})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	_, err = svc.Update(ctx, course.ID, models.UpdateCourseRequest{Semester: intPtr(3)})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	updated, err := svc.Update(ctx, course.ID, models.UpdateCourseRequest{Capacity: intPtr(2), Teacher: strPtr("Dr. Menon")})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Menon", updated.Teacher)
	assert.Equal(t, "Big Data", updated.Name)
	assert.True(t, updated.IsFull())

	updates := publisher.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, 2, updates[0].Capacity)
	assert.Equal(t, 2, updates[0].EnrolledCount)
	assert.True(t, updates[0].Reset)

	_, err = svc.Update(ctx, "missing", models.UpdateCourseRequest{Name: strPtr("x")})
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)
}

func TestDeleteCourseClearsSelections(t *testing.T) {
	store := memory.NewStore()
	svc := NewCourseService(store.Courses(), store.Students(), nil, nil, nil, nil)
	ctx := context.Background()
	course := seedCourse(t, store, "AR/VR", 1, 5)
	st := seedStudent(t, store, "S9", 1, "2024")
	_, err := store.Seats().ClaimSeat(ctx, st.ID, course.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, course.ID))
	detail, err := store.Students().FindByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.SelectedCourseID)
	assert.ErrorIs(t, svc.Delete(ctx, course.ID), appErrors.ErrCourseNotFound)
}

func TestListForStudentUsesOwnSemesterAndCache(t *testing.T) {
	store := memory.NewStore()
	cacheRepo := newMapCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewCourseService(store.Courses(), store.Students(), nil, cache, nil, nil)
	ctx := context.Background()
	seedCourse(t, store, "Sem1 A", 1, 5)
	seedCourse(t, store, "Sem1 B", 1, 5)
	seedCourse(t, store, "Sem2 A", 2, 5)
	st := seedStudent(t, store, "S10", 1, "2024")

	courses, pagination, err := svc.ListForStudent(ctx, st.ID, models.CourseFilter{})
	require.NoError(t, err)
	assert.Len(t, courses, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, "Sem1 A", courses[0].Name)
	assert.Equal(t, 1, cacheRepo.len())

	seedCourse(t, store, "Sem1 C", 1, 5)
	cached, _, err := svc.ListForStudent(ctx, st.ID, models.CourseFilter{})
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	_, err = svc.Create(ctx, models.CreateCourseRequest{Name: "Sem1 D", Teacher: "T", Semester: 1})
	require.NoError(t, err)
	assert.Contains(t, cacheRepo.invalidated, courseCachePattern)
	fresh, _, err := svc.ListForStudent(ctx, st.ID, models.CourseFilter{})
	require.NoError(t, err)
	assert.Len(t, fresh, 4)

	_, _, err = svc.ListForStudent(ctx, "missing", models.CourseFilter{})
	assert.ErrorIs(t, err, appErrors.ErrStudentNotFound)
}
