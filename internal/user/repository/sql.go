package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"seshlock/internal/db"
	"seshlock/internal/user/domain"
)

type SQLRepository struct {
	conn    *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a user repository that uses conn for persistence.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{conn: conn, dialect: dialect}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *SQLRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var (
		u         domain.User
		createdAt db.NullTime
	)
	err := r.conn.QueryRowContext(ctx, r.dialect.Rebind(query), arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = createdAt.Time
	return &u, nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *SQLRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.conn.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, r.dialect.EncodeTime(u.CreatedAt))
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Delete removes the user with id.
func (r *SQLRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.conn.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return n > 0, nil
}
