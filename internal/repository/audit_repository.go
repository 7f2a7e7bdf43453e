package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-api/internal/models"
)

// AuditRepository persists the append-only audit trail.
type AuditRepository struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db, sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// CreateAuditLog appends an entry.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, action, actor, details, ip_address, created_at) VALUES (:id, :action, :actor, :details, :ip_address, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns audit entries, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	where := squirrel.And{}
	if filter.Action != "" {
		where = append(where, squirrel.Eq{"action": strings.ToUpper(filter.Action)})
	}
	if filter.Actor != "" {
		where = append(where, squirrel.Eq{"actor": filter.Actor})
	}
	if filter.Search != "" {
		where = append(where, squirrel.Like{"LOWER(details)": "%" + strings.ToLower(filter.Search) + "%"})
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	query, args, err := r.sb.Select("id", "action", "actor", "details", "ip_address", "created_at").
		From("audit_logs").
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list audit logs: %w", err)
	}
	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("audit_logs").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count audit logs: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return logs, total, nil
}
