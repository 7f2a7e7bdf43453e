package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	var mu sync.Mutex
	var gaveUp []Job
	finished := make(chan struct{})

	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("smtp down")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnGiveUp: func(ctx context.Context, job Job, err error) {
			mu.Lock()
			gaveUp = append(gaveUp, job)
			mu.Unlock()
			close(finished)
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "outbox-1"}))
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("job never gave up")
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gaveUp, 1)
	assert.Equal(t, "outbox-1", gaveUp[0].ID)
	assert.Equal(t, 3, gaveUp[0].Attempt)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))
	assert.Error(t, q.TryEnqueue(Job{ID: "x"}))
}

func TestTryEnqueueReportsFullBuffer(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	var sawFull bool
	for i := 0; i < 5; i++ {
		if err := q.TryEnqueue(Job{ID: "x"}); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}
	assert.True(t, sawFull)
}

func TestBackoffIsCapped(t *testing.T) {
	q := NewQueue("backoff", nil, QueueConfig{RetryDelay: time.Second, MaxDelay: 5 * time.Second})
	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(4))
}
