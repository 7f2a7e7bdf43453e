package realtime

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrHubClosed is returned by Publish after the hub stopped.
var ErrHubClosed = errors.New("realtime hub closed")

// Hub tracks connected clients and broadcasts course updates to all of them.
// All state is owned by the Run goroutine, so per-course ordering is decided in one place.
type Hub struct {
	clients    map[*Client]struct{}
	watermarks map[string]int

	register   chan *Client
	unregister chan *Client
	updates    chan CourseUpdate
	done       chan struct{}

	connected int64
	logger    *zap.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		watermarks: make(map[string]int),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		updates:    make(chan CourseUpdate, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and updates until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			atomic.AddInt64(&h.connected, 1)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case update := <-h.updates:
			h.dispatch(update)
		}
	}
}

// Publish queues an update for broadcast. It never waits on slow clients.
func (h *Hub) Publish(ctx context.Context, update CourseUpdate) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.updates <- update:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(atomic.LoadInt64(&h.connected))
}

// accept applies the per-course watermark: stale seat counts are dropped so observers
// never see a course's enrolled count go backwards, except for explicit resets.
func (h *Hub) accept(update CourseUpdate) bool {
	last, seen := h.watermarks[update.CourseID]
	if seen && !update.Reset && update.EnrolledCount < last {
		return false
	}
	h.watermarks[update.CourseID] = update.EnrolledCount
	return true
}

func (h *Hub) dispatch(update CourseUpdate) {
	if !h.accept(update) {
		h.logger.Debug("dropped stale course update", zap.String("course_id", update.CourseID), zap.Int("enrolled_count", update.EnrolledCount))
		return
	}
	frame, err := encodeFrame(update)
	if err != nil {
		h.logger.Error("encode course update", zap.Error(err))
		return
	}
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping slow realtime client", zap.String("identity", c.identity))
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	atomic.AddInt64(&h.connected, -1)
}
