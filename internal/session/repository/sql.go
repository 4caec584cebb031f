package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"seshlock/internal/db"
	"seshlock/internal/session/domain"
)

const (
	refreshColumns = `id, user_id, token_digest, expires_at, revoked_at, device_identifier, created_at`
	accessColumns  = `a.id, a.refresh_token_id, r.user_id, a.token_digest, a.expires_at, a.revoked_at, a.created_at`
)

// SQLRepository stores token records through database/sql. The same queries serve
// Postgres and SQLite; the dialect rewrites placeholders and encodes timestamps.
type SQLRepository struct {
	conn    *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a token repository backed by conn.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{conn: conn, dialect: dialect}
}

// CreateRefreshToken inserts t. t must have ID set.
func (r *SQLRepository) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.conn.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		t.ID,
		t.PrincipalID,
		t.TokenDigest,
		r.dialect.EncodeTime(t.ExpiresAt),
		db.NullableTime(r.dialect, t.RevokedAt),
		sql.NullString{String: t.DeviceIdentifier, Valid: t.DeviceIdentifier != ""},
		r.dialect.EncodeTime(t.CreatedAt),
	)
	return r.insertErr("refresh token", err)
}

// CreateAccessToken inserts t. t.RefreshTokenID must reference an existing refresh token.
func (r *SQLRepository) CreateAccessToken(ctx context.Context, t *domain.AccessToken) error {
	_, err := r.conn.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO access_tokens (id, refresh_token_id, token_digest, expires_at, revoked_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		t.ID,
		t.RefreshTokenID,
		t.TokenDigest,
		r.dialect.EncodeTime(t.ExpiresAt),
		db.NullableTime(r.dialect, t.RevokedAt),
		r.dialect.EncodeTime(t.CreatedAt),
	)
	return r.insertErr("access token", err)
}

func (r *SQLRepository) insertErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if r.dialect.IsUniqueViolation(err) {
		return ErrDuplicateDigest
	}
	return fmt.Errorf("insert %s: %w", what, err)
}

// GetRefreshTokenByDigest returns the refresh token with the digest regardless of
// its state, or nil if none exists.
func (r *SQLRepository) GetRefreshTokenByDigest(ctx context.Context, digest string) (*domain.RefreshToken, error) {
	row := r.conn.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_digest = ?`), digest)
	t, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return t, nil
}

// GetAccessTokenByDigest returns the access token with the digest and its owner, or nil if none exists.
func (r *SQLRepository) GetAccessTokenByDigest(ctx context.Context, digest string) (*domain.AccessToken, error) {
	row := r.conn.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT `+accessColumns+` FROM access_tokens a JOIN refresh_tokens r ON r.id = a.refresh_token_id WHERE a.token_digest = ?`), digest)
	t, err := scanAccessToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get access token: %w", err)
	}
	return t, nil
}

// RevokeRefreshToken sets revoked_at on the refresh token and on every access token
// derived from it. Rows already revoked keep their original timestamp.
func (r *SQLRepository) RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error) {
	var won bool
	err := db.WithTx(ctx, r.conn, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, r.dialect.Rebind(
			`UPDATE access_tokens SET revoked_at = ? WHERE refresh_token_id = ? AND revoked_at IS NULL`),
			r.dialect.EncodeTime(at), id); err != nil {
			return fmt.Errorf("revoke access tokens: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.dialect.Rebind(
			`UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`),
			r.dialect.EncodeTime(at), id)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		won = n == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// ListAccessTokens returns every access token derived from the refresh token, oldest first.
func (r *SQLRepository) ListAccessTokens(ctx context.Context, refreshTokenID string) ([]*domain.AccessToken, error) {
	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(
		`SELECT `+accessColumns+` FROM access_tokens a JOIN refresh_tokens r ON r.id = a.refresh_token_id WHERE a.refresh_token_id = ? ORDER BY a.created_at, a.id`), refreshTokenID)
	if err != nil {
		return nil, fmt.Errorf("list access tokens: %w", err)
	}
	defer rows.Close()
	var out []*domain.AccessToken
	for rows.Next() {
		t, err := scanAccessToken(rows)
		if err != nil {
			return nil, fmt.Errorf("list access tokens: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access tokens: %w", err)
	}
	return out, nil
}

// Ping checks that the store is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRefreshToken(s scanner) (*domain.RefreshToken, error) {
	var (
		t                    domain.RefreshToken
		expiresAt, createdAt db.NullTime
		revokedAt            db.NullTime
		device               sql.NullString
	)
	if err := s.Scan(&t.ID, &t.PrincipalID, &t.TokenDigest, &expiresAt, &revokedAt, &device, &createdAt); err != nil {
		return nil, err
	}
	t.ExpiresAt = expiresAt.Time
	t.RevokedAt = revokedAt.Ptr()
	t.DeviceIdentifier = device.String
	t.CreatedAt = createdAt.Time
	return &t, nil
}

func scanAccessToken(s scanner) (*domain.AccessToken, error) {
	var (
		t                    domain.AccessToken
		expiresAt, createdAt db.NullTime
		revokedAt            db.NullTime
	)
	if err := s.Scan(&t.ID, &t.RefreshTokenID, &t.PrincipalID, &t.TokenDigest, &expiresAt, &revokedAt, &createdAt); err != nil {
		return nil, err
	}
	t.ExpiresAt = expiresAt.Time
	t.RevokedAt = revokedAt.Ptr()
	t.CreatedAt = createdAt.Time
	return &t, nil
}
