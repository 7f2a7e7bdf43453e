package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-api/internal/models"
)

// AdminRepository stores administrator accounts.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository constructs an AdminRepository.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// FindByUsername returns an admin by username.
func (r *AdminRepository) FindByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var admin models.Admin
	const query = `SELECT id, username, password_hash, created_at FROM admins WHERE username = $1 LIMIT 1`
	if err := r.db.GetContext(ctx, &admin, query, username); err != nil {
		return nil, err
	}
	return &admin, nil
}

// Create inserts an admin.
func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO admins (id, username, password_hash, created_at) VALUES (:id, :username, :password_hash, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, admin); err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}
