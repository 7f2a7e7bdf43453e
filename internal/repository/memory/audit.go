package memory

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
)

// AuditStore implements the audit repository contract.
type AuditStore struct {
	s *Store
}

// CreateAuditLog appends an entry.
func (v *AuditStore) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = v.s.now()
	}
	v.s.audit = append(v.s.audit, *entry)
	return nil
}

// List returns entries newest first.
func (v *AuditStore) List(_ context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var matched []models.AuditLog
	for i := len(v.s.audit) - 1; i >= 0; i-- {
		entry := v.s.audit[i]
		if filter.Action != "" && entry.Action != strings.ToUpper(filter.Action) {
			continue
		}
		if filter.Actor != "" && entry.Actor != filter.Actor {
			continue
		}
		if filter.Search != "" && !containsFold(entry.Details, filter.Search) {
			continue
		}
		matched = append(matched, entry)
	}
	return paginate(matched, filter.Page, filter.PageSize), len(matched), nil
}

// AdminStore implements the admin repository contract.
type AdminStore struct {
	s *Store
}

// FindByUsername returns sql.ErrNoRows for unknown usernames.
func (v *AdminStore) FindByUsername(_ context.Context, username string) (*models.Admin, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, a := range v.s.admins {
		if a.Username == username {
			found := a
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

// Create inserts an admin.
func (v *AdminStore) Create(_ context.Context, admin *models.Admin) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, a := range v.s.admins {
		if a.Username == admin.Username {
			return repository.ErrDuplicateUsername
		}
	}
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = v.s.now()
	}
	v.s.admins[admin.ID] = *admin
	return nil
}
