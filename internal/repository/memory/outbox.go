package memory

import (
	"context"
	"database/sql"
	"sort"

	"github.com/noah-isme/elective-api/internal/models"
)

// OutboxStore implements the outbox repository contract.
type OutboxStore struct {
	s *Store
}

// FindByID returns sql.ErrNoRows for unknown ids.
func (v *OutboxStore) FindByID(_ context.Context, id string) (*models.OutboxMessage, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	msg, ok := v.s.outbox[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &msg, nil
}

// ListPending returns pending messages, oldest first.
func (v *OutboxStore) ListPending(_ context.Context, limit int) ([]models.OutboxMessage, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var pending []models.OutboxMessage
	for _, msg := range v.s.outbox {
		if msg.Status == models.OutboxPending {
			pending = append(pending, msg)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// RecordAttempt bumps the attempt counter.
func (v *OutboxStore) RecordAttempt(_ context.Context, id string, lastErr string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	msg, ok := v.s.outbox[id]
	if !ok {
		return sql.ErrNoRows
	}
	msg.Attempts++
	msg.LastError = &lastErr
	v.s.outbox[id] = msg
	return nil
}

// MarkSent finalises a delivered message.
func (v *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return v.finish(id, models.OutboxSent, nil)
}

// MarkSkipped finalises an undeliverable message.
func (v *OutboxStore) MarkSkipped(ctx context.Context, id string, reason string) error {
	return v.finish(id, models.OutboxSkipped, &reason)
}

// MarkFailed finalises a message after its retries ran out.
func (v *OutboxStore) MarkFailed(ctx context.Context, id string, reason string) error {
	return v.finish(id, models.OutboxFailed, &reason)
}

func (v *OutboxStore) finish(id string, status models.OutboxStatus, reason *string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	msg, ok := v.s.outbox[id]
	if !ok {
		return sql.ErrNoRows
	}
	msg.Status = status
	if reason != nil {
		msg.LastError = reason
	}
	now := v.s.now()
	msg.ProcessedAt = &now
	v.s.outbox[id] = msg
	return nil
}
