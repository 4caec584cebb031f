package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seshlock/internal/db"
	"seshlock/internal/testutil"
	"seshlock/internal/user/domain"
)

func TestSQLRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLRepository(testutil.OpenSQLite(t), db.SQLite)
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	u := &domain.User{ID: "u1", Email: "alice@example.com", PasswordHash: "$2a$hash", CreatedAt: created}
	require.NoError(t, repo.Create(ctx, u))

	byID, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "alice@example.com", byID.Email)
	assert.True(t, byID.CreatedAt.Equal(created))

	byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "u1", byEmail.ID)

	missing, err := repo.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Create(ctx, &domain.User{ID: "u2", Email: "alice@example.com", PasswordHash: "x", CreatedAt: created})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSQLRepository_DeleteCascadesTokens(t *testing.T) {
	conn := testutil.OpenSQLite(t)
	repo := NewSQLRepository(conn, db.SQLite)
	ctx := context.Background()
	userID := testutil.InsertUser(t, conn, "carol@example.com")
	now := db.SQLite.EncodeTime(time.Now())
	_, err := conn.Exec(`INSERT INTO refresh_tokens (id, user_id, token_digest, expires_at, created_at) VALUES ('rt1', ?, 'sha256:r', ?, ?)`, userID, now, now)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO access_tokens (id, refresh_token_id, token_digest, expires_at, created_at) VALUES ('at1', 'rt1', 'sha256:a', ?, ?)`, now, now)
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, userID)
	require.NoError(t, err)
	assert.True(t, deleted)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT (SELECT COUNT(*) FROM refresh_tokens) + (SELECT COUNT(*) FROM access_tokens)`).Scan(&n))
	assert.Zero(t, n)

	deleted, err = repo.Delete(ctx, userID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestPostgres_CreateUniqueViolation(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()
	repo := NewSQLRepository(conn, db.Postgres)

	mock.ExpectExec(`^` + regexp.QuoteMeta(`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`) + `$`).
		WithArgs("u1", "a@example.com", "h", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	err = repo.Create(context.Background(), &domain.User{ID: "u1", Email: "a@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("u1").WillReturnError(errors.New("db down"))
	_, err = repo.GetByID(context.Background(), "u1")
	assert.ErrorContains(t, err, "db down")
	assert.NoError(t, mock.ExpectationsWereMet())
}
