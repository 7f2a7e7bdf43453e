package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-api/internal/models"
)

const outboxColumns = "id, kind, course_id, payload, status, attempts, last_error, created_at, processed_at"

// OutboxRepository tracks delivery of transactional side effects.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepository.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// FindByID loads a single outbox message.
func (r *OutboxRepository) FindByID(ctx context.Context, id string) (*models.OutboxMessage, error) {
	var msg models.OutboxMessage
	if err := r.db.GetContext(ctx, &msg, `SELECT `+outboxColumns+` FROM notification_outbox WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListPending returns undelivered messages, oldest first.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var msgs []models.OutboxMessage
	query := `SELECT ` + outboxColumns + ` FROM notification_outbox WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	if err := r.db.SelectContext(ctx, &msgs, query, models.OutboxPending, limit); err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	return msgs, nil
}

// RecordAttempt increments the attempt counter and stores the last error.
func (r *OutboxRepository) RecordAttempt(ctx context.Context, id string, lastErr string) error {
	const query = `UPDATE notification_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lastErr); err != nil {
		return fmt.Errorf("record outbox attempt: %w", err)
	}
	return nil
}

// MarkSent finalises a delivered message.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.finish(ctx, id, models.OutboxSent, nil)
}

// MarkSkipped finalises a message that has nowhere to go.
func (r *OutboxRepository) MarkSkipped(ctx context.Context, id string, reason string) error {
	return r.finish(ctx, id, models.OutboxSkipped, &reason)
}

// MarkFailed finalises a message after retries are exhausted.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.finish(ctx, id, models.OutboxFailed, &reason)
}

func (r *OutboxRepository) finish(ctx context.Context, id string, status models.OutboxStatus, reason *string) error {
	const query = `UPDATE notification_outbox SET status = $2, last_error = COALESCE($3, last_error), processed_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark outbox %s: %w", status, err)
	}
	return nil
}
