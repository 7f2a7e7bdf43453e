package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
	"github.com/noah-isme/elective-api/internal/repository/memory"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/realtime"
)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []realtime.CourseUpdate
}

func (p *recordingPublisher) Publish(ctx context.Context, update realtime.CourseUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
	return nil
}

func (p *recordingPublisher) snapshot() []realtime.CourseUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.CourseUpdate(nil), p.updates...)
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Enqueue(outboxID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, outboxID)
}

func (n *recordingNotifier) enqueued() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ids...)
}

type seatFixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	notifier  *recordingNotifier
	svc       *SeatService
}

func newSeatFixture() *seatFixture {
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}
	svc := NewSeatService(store.Seats(), store.Students(), store.Courses(), store.Audit(), publisher, notifier, nil, nil, nil)
	return &seatFixture{store: store, publisher: publisher, notifier: notifier, svc: svc}
}

func TestSelectRecordsSideEffects(t *testing.T) {
	f := newSeatFixture()
	course := seedCourse(t, f.store, "Cloud Computing", 3, 10)
	student := seedStudent(t, f.store, "MCA101", 3, "2023")

	result, err := f.svc.Select(context.Background(), student.ID, course.ID, "192.168.1.4")
	require.NoError(t, err)
	assert.Equal(t, 1, result.EnrolledCount)
	assert.Equal(t, 9, result.Remaining)
	assert.Equal(t, "Cloud Computing", result.CourseName)

	updates := f.publisher.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, realtime.CourseUpdate{CourseID: course.ID, EnrolledCount: 1, Capacity: 10}, updates[0])
	assert.Empty(t, f.notifier.enqueued())

	logs, _, err := f.store.Audit().List(context.Background(), models.AuditFilter{Action: models.AuditActionCourseSelect})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Selected course: Cloud Computing", logs[0].Details)
	assert.Equal(t, "MCA101", logs[0].Actor)
	assert.Equal(t, "192.168.1.4", logs[0].IPAddress)

	detail, err := f.store.Students().FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.SelectedCourseID)
	assert.Equal(t, course.ID, *detail.SelectedCourseID)
}

func TestSelectRejectionsInOrder(t *testing.T) {
	f := newSeatFixture()
	ctx := context.Background()
	sem1 := seedCourse(t, f.store, "Data Mining", 1, 1)
	sem2 := seedCourse(t, f.store, "Compilers", 2, 5)
	first := seedStudent(t, f.store, "MCA201", 1, "2024")
	second := seedStudent(t, f.store, "MCA202", 1, "2024")

	_, err := f.svc.Select(ctx, first.ID, "missing", "")
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)

	_, err = f.svc.Select(ctx, first.ID, sem2.ID, "")
	assert.ErrorIs(t, err, appErrors.ErrSemesterMismatch)

	_, err = f.svc.Select(ctx, first.ID, sem1.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Select(ctx, first.ID, sem1.ID, "")
	assert.ErrorIs(t, err, appErrors.ErrAlreadySelected)

	_, err = f.svc.Select(ctx, second.ID, sem1.ID, "")
	assert.ErrorIs(t, err, appErrors.ErrCourseFull)

	course, err := f.store.Courses().FindByID(ctx, sem1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, course.EnrolledCount)
	assert.Len(t, f.notifier.enqueued(), 1)
	assert.Len(t, f.publisher.snapshot(), 1)
}

func TestSelectRaceForLastSeats(t *testing.T) {
	f := newSeatFixture()
	ctx := context.Background()
	course := seedCourse(t, f.store, "Machine Learning", 2, 2)
	var ids []string
	for _, roll := range []string{"A", "B", "C"} {
		ids = append(ids, seedStudent(t, f.store, roll, 2, "2024").ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.Select(ctx, id, course.ID, "")
		}(i, id)
	}
	wg.Wait()

	var succeeded, full int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, appErrors.ErrCourseFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, full)

	enqueued := f.notifier.enqueued()
	require.Len(t, enqueued, 1)
	msg, err := f.store.Outbox().FindByID(ctx, enqueued[0])
	require.NoError(t, err)
	var payload models.CourseFilledPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Len(t, payload.Roster, 2)
	assert.Equal(t, 1, payload.Roster[0].Position)
	assert.Equal(t, 2, payload.Roster[1].Position)
}

func TestSelectManyClaimantsNeverOverfill(t *testing.T) {
	f := newSeatFixture()
	ctx := context.Background()
	const capacity, claimants = 5, 40
	course := seedCourse(t, f.store, "Distributed Systems", 4, capacity)
	ids := make([]string, claimants)
	for i := range ids {
		ids[i] = seedStudent(t, f.store, fmt.Sprintf("R%03d", i), 4, "2022").ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.svc.Select(ctx, id, course.ID, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, appErrors.ErrCourseFull)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, capacity, succeeded)
	assert.Len(t, f.notifier.enqueued(), 1)
	final, err := f.store.Courses().FindByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, final.EnrolledCount)

	last := -1
	for _, u := range f.publisher.snapshot() {
		assert.LessOrEqual(t, u.EnrolledCount, capacity)
		if u.EnrolledCount > last {
			last = u.EnrolledCount
		}
	}
	assert.Equal(t, capacity, last)
}

type stubClaimer struct {
	err error
}

func (s stubClaimer) ClaimSeat(ctx context.Context, studentID, courseID string) (*models.SeatClaim, error) {
	return nil, s.err
}

func TestSelectTranslatesStoreRejections(t *testing.T) {
	store := memory.NewStore()
	course := seedCourse(t, store, "Networks", 1, 3)
	student := seedStudent(t, store, "MCA301", 1, "2024")

	cases := map[error]*appErrors.Error{
		repository.ErrCourseFull:       appErrors.ErrCourseFull,
		repository.ErrAlreadySelected:  appErrors.ErrAlreadySelected,
		repository.ErrSemesterMismatch: appErrors.ErrSemesterMismatch,
		errors.New("connection reset"): appErrors.ErrInternal,
	}
	for storeErr, want := range cases {
		svc := NewSeatService(stubClaimer{err: storeErr}, store.Students(), store.Courses(), nil, nil, nil, nil, nil, nil)
		_, err := svc.Select(context.Background(), student.ID, course.ID, "")
		assert.True(t, appErrors.IsCode(err, want.Code), "store error %v", storeErr)
	}
}
