package service

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository/memory"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	mailer "github.com/noah-isme/elective-api/pkg/mail"
	"github.com/noah-isme/elective-api/pkg/storage"
)

type fakeMailer struct {
	mu       sync.Mutex
	failures int
	sent     []mailer.Message
}

func (m *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

func newTestNotificationService(t *testing.T, store *memory.Store, m mailer.Mailer) *NotificationService {
	t.Helper()
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewNotificationService(store.Outbox(), m, archive, storage.NewSignedURLSigner("secret", time.Hour), nil, nil, NotificationConfig{
		Workers:       1,
		MaxRetries:    1,
		RetryDelay:    time.Millisecond,
		PublicBaseURL: "https://electives.test",
		APIPrefix:     "/api/v1",
	})
	return svc
}

// fillCourse seats every student in the course and returns the outbox id written on fill.
func fillCourse(t *testing.T, store *memory.Store, course *models.Course, students ...*models.Student) string {
	t.Helper()
	var outboxID string
	for _, st := range students {
		claim, err := store.Seats().ClaimSeat(context.Background(), st.ID, course.ID)
		require.NoError(t, err)
		if claim.Filled() {
			outboxID = *claim.OutboxID
		}
	}
	require.NotEmpty(t, outboxID)
	return outboxID
}

func TestHandleSendsRosterEmail(t *testing.T) {
	store := memory.NewStore()
	m := &fakeMailer{}
	svc := newTestNotificationService(t, store, m)
	ctx := context.Background()
	course := seedCourse(t, store, "Deep Learning (Adv.)", 3, 2)
	a := seedStudent(t, store, "MCA501", 3, "2023")
	b := seedStudent(t, store, "MCA502", 3, "")
	outboxID := fillCourse(t, store, course, a, b)

	require.NoError(t, svc.Handle(ctx, outboxID))

	sent := m.messages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "Course Filled: Deep Learning (Adv.)", msg.Subject)
	assert.Equal(t, "rao@example.edu", msg.To[0].Address)
	assert.Contains(t, msg.Text, "1. Student MCA501 (MCA501) - Year 2, Sem 3, Batch: 2023")
	assert.Contains(t, msg.Text, "2. Student MCA502 (MCA502) - Year 2, Sem 3, Batch: -")
	assert.Contains(t, msg.HTML, "<td>MCA502</td>")

	require.Len(t, msg.Attachments, 1)
	attachment := msg.Attachments[0]
	assert.True(t, strings.HasPrefix(attachment.Filename, "Deep_Learning__Adv___Students_"))
	assert.True(t, strings.HasSuffix(attachment.Filename, ".csv"))
	lines := strings.Split(strings.TrimSpace(string(attachment.Content)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "S.No,Name,Roll Number,Year,Semester,Batch", lines[0])
	assert.Equal(t, "2,Student MCA502,MCA502,2,3,-", lines[2])

	row, err := store.Outbox().FindByID(ctx, outboxID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxSent, row.Status)

	require.NoError(t, svc.Handle(ctx, outboxID))
	assert.Len(t, m.messages(), 1)

	start := strings.Index(msg.Text, "token=")
	require.Positive(t, start)
	token, err := url.QueryUnescape(strings.Fields(msg.Text[start+len("token="):])[0])
	require.NoError(t, err)
	location, name, err := svc.ResolveDownload(token)
	require.NoError(t, err)
	assert.Equal(t, attachment.Filename, name)
	content, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, attachment.Content, content)

	_, _, err = svc.ResolveDownload(token + "x")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestHandleSkipsCourseWithoutTeacherEmail(t *testing.T) {
	store := memory.NewStore()
	m := &fakeMailer{}
	svc := newTestNotificationService(t, store, m)
	course := &models.Course{Name: "Ethics", Teacher: "TBA", Semester: 1, Capacity: 1}
	require.NoError(t, store.Courses().Create(context.Background(), course))
	outboxID := fillCourse(t, store, course, seedStudent(t, store, "MCA510", 1, "2024"))

	require.NoError(t, svc.Handle(context.Background(), outboxID))
	assert.Empty(t, m.messages())
	row, err := store.Outbox().FindByID(context.Background(), outboxID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxSkipped, row.Status)
}

func TestHandleMailFailureIsUnavailable(t *testing.T) {
	store := memory.NewStore()
	m := &fakeMailer{failures: 1}
	svc := newTestNotificationService(t, store, m)
	course := seedCourse(t, store, "Graph Theory", 1, 1)
	outboxID := fillCourse(t, store, course, seedStudent(t, store, "MCA520", 1, "2024"))

	err := svc.Handle(context.Background(), outboxID)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnavailable.Code))
	row, err := store.Outbox().FindByID(context.Background(), outboxID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxPending, row.Status)
	assert.Equal(t, 1, row.Attempts)

	require.NoError(t, svc.Handle(context.Background(), outboxID))
	assert.Len(t, m.messages(), 1)
}

func TestQueueGivesUpAndMarksFailed(t *testing.T) {
	store := memory.NewStore()
	m := &fakeMailer{failures: 10}
	svc := newTestNotificationService(t, store, m)
	course := seedCourse(t, store, "Quantum", 1, 1)
	outboxID := fillCourse(t, store, course, seedStudent(t, store, "MCA530", 1, "2024"))

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		row, err := store.Outbox().FindByID(context.Background(), outboxID)
		return err == nil && row.Status == models.OutboxFailed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, m.messages())
}

func TestCourseFillNotifiesOnceEndToEnd(t *testing.T) {
	store := memory.NewStore()
	m := &fakeMailer{}
	notifications := newTestNotificationService(t, store, m)
	notifications.Start(context.Background())
	defer notifications.Stop()
	seats := NewSeatService(store.Seats(), store.Students(), store.Courses(), store.Audit(), nil, notifications, nil, nil, nil)

	course := seedCourse(t, store, "Capstone", 2, 2)
	var wg sync.WaitGroup
	for _, roll := range []string{"A", "B", "C"} {
		st := seedStudent(t, store, roll, 2, "2024")
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = seats.Select(context.Background(), id, course.ID, "")
		}(st.ID)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(m.messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	sent := m.messages()
	require.Len(t, sent, 1)
	lines := strings.Split(strings.TrimSpace(string(sent[0].Attachments[0].Content)), "\n")
	assert.Len(t, lines, 3)
}

func TestRecoverRequeuesPendingRows(t *testing.T) {
	store := memory.NewStore()
	m := &fakeMailer{}
	svc := newTestNotificationService(t, store, m)
	course := seedCourse(t, store, "Robotics", 1, 1)
	outboxID := fillCourse(t, store, course, seedStudent(t, store, "MCA540", 1, "2024"))

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		row, err := store.Outbox().FindByID(context.Background(), outboxID)
		return err == nil && row.Status == models.OutboxSent
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, m.messages(), 1)
	count, err := svc.Recover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
