package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-tracker-api/internal/models"
)

// AdminRepository provides database access for administrator accounts.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository creates a new instance of AdminRepository.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// FindActiveByUsername returns an active admin by username.
func (r *AdminRepository) FindActiveByUsername(ctx context.Context, username string) (*models.Admin, error) {
	const query = `SELECT id, username, password_hash, email, full_name, active, last_login_at, created_at FROM admins WHERE username = $1 AND active = TRUE LIMIT 1`
	var admin models.Admin
	if err := r.db.GetContext(ctx, &admin, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find admin by username: %w", err)
	}
	return &admin, nil
}

// ExistsByUsername reports whether any admin, active or not, uses username.
func (r *AdminRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	const query = `SELECT 1 FROM admins WHERE username = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check admin username: %w", err)
	}
	return true, nil
}

// Create inserts an admin account.
func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO admins (username, password_hash, email, full_name, active, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query, admin.Username, admin.PasswordHash, admin.Email, admin.FullName, admin.Active, admin.CreatedAt).Scan(&admin.ID)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login_at timestamp for an admin.
func (r *AdminRepository) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	const query = `UPDATE admins SET last_login_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	return nil
}
