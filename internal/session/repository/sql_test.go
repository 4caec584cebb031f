package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seshlock/internal/db"
	"seshlock/internal/security"
	"seshlock/internal/session/domain"
	"seshlock/internal/testutil"
)

type fixture struct {
	repo   *SQLRepository
	userID string
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testutil.OpenSQLite(t)
	return &fixture{
		repo:   NewSQLRepository(conn, db.SQLite),
		userID: testutil.InsertUser(t, conn, "owner@example.com"),
		now:    time.Date(2026, 5, 1, 12, 0, 0, 123456000, time.UTC),
	}
}

func (f *fixture) refresh(t *testing.T, raw string) *domain.RefreshToken {
	t.Helper()
	rt := &domain.RefreshToken{
		ID:               uuid.New().String(),
		PrincipalID:      f.userID,
		TokenDigest:      security.Digest(raw),
		ExpiresAt:        f.now.Add(30 * 24 * time.Hour),
		DeviceIdentifier: "laptop",
		CreatedAt:        f.now,
	}
	require.NoError(t, f.repo.CreateRefreshToken(context.Background(), rt))
	return rt
}

func (f *fixture) access(t *testing.T, rt *domain.RefreshToken, raw string) *domain.AccessToken {
	t.Helper()
	at := &domain.AccessToken{
		ID:             uuid.New().String(),
		RefreshTokenID: rt.ID,
		TokenDigest:    security.Digest(raw),
		ExpiresAt:      f.now.Add(15 * time.Minute),
		CreatedAt:      f.now,
	}
	require.NoError(t, f.repo.CreateAccessToken(context.Background(), at))
	return at
}

func TestSQLRepository_RefreshTokenRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt := f.refresh(t, "raw-refresh")

	got, err := f.repo.GetRefreshTokenByDigest(ctx, security.Digest("raw-refresh"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rt.ID, got.ID)
	assert.Equal(t, f.userID, got.PrincipalID)
	assert.Equal(t, "laptop", got.DeviceIdentifier)
	assert.True(t, got.ExpiresAt.Equal(rt.ExpiresAt))
	assert.True(t, got.CreatedAt.Equal(rt.CreatedAt))
	assert.Nil(t, got.RevokedAt)
	assert.True(t, got.IsActive(f.now))

	missing, err := f.repo.GetRefreshTokenByDigest(ctx, security.Digest("unknown"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLRepository_EmptyDeviceIsStoredAsNull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt := &domain.RefreshToken{
		ID: uuid.New().String(), PrincipalID: f.userID, TokenDigest: security.Digest("nodevice"),
		ExpiresAt: f.now.Add(time.Hour), CreatedAt: f.now,
	}
	require.NoError(t, f.repo.CreateRefreshToken(ctx, rt))

	var isNull bool
	require.NoError(t, f.repo.conn.QueryRowContext(ctx,
		`SELECT device_identifier IS NULL FROM refresh_tokens WHERE id = ?`, rt.ID).Scan(&isNull))
	assert.True(t, isNull)
}

func TestSQLRepository_AccessTokenJoinsPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt := f.refresh(t, "r1")
	at := f.access(t, rt, "a1")

	got, err := f.repo.GetAccessTokenByDigest(ctx, security.Digest("a1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at.ID, got.ID)
	assert.Equal(t, rt.ID, got.RefreshTokenID)
	assert.Equal(t, f.userID, got.PrincipalID)

	missing, err := f.repo.GetAccessTokenByDigest(ctx, security.Digest("a2"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLRepository_DuplicateDigest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt := f.refresh(t, "same")
	f.access(t, rt, "same-access")

	dup := *rt
	dup.ID = uuid.New().String()
	assert.ErrorIs(t, f.repo.CreateRefreshToken(ctx, &dup), ErrDuplicateDigest)

	dupAccess := &domain.AccessToken{
		ID: uuid.New().String(), RefreshTokenID: rt.ID, TokenDigest: security.Digest("same-access"),
		ExpiresAt: f.now.Add(time.Minute), CreatedAt: f.now,
	}
	assert.ErrorIs(t, f.repo.CreateAccessToken(ctx, dupAccess), ErrDuplicateDigest)
}

func TestSQLRepository_AccessTokenRequiresParent(t *testing.T) {
	f := newFixture(t)
	err := f.repo.CreateAccessToken(context.Background(), &domain.AccessToken{
		ID: uuid.New().String(), RefreshTokenID: "missing", TokenDigest: security.Digest("orphan"),
		ExpiresAt: f.now.Add(time.Minute), CreatedAt: f.now,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateDigest)
}

func TestSQLRepository_RevokeCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt := f.refresh(t, "r")
	f.access(t, rt, "a1")
	f.access(t, rt, "a2")
	other := f.refresh(t, "other")
	f.access(t, other, "a3")

	at := f.now.Add(time.Minute)
	won, err := f.repo.RevokeRefreshToken(ctx, rt.ID, at)
	require.NoError(t, err)
	assert.True(t, won)

	list, err := f.repo.ListAccessTokens(ctx, rt.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, a := range list {
		require.NotNil(t, a.RevokedAt)
		assert.True(t, a.RevokedAt.Equal(at))
		assert.Equal(t, f.userID, a.PrincipalID)
	}

	got, err := f.repo.GetRefreshTokenByDigest(ctx, security.Digest("r"))
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.False(t, got.IsActive(at))

	untouched, err := f.repo.ListAccessTokens(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, untouched, 1)
	assert.Nil(t, untouched[0].RevokedAt)
}

func TestSQLRepository_RevokeIsConditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt := f.refresh(t, "r")
	first := f.now.Add(time.Minute)

	won, err := f.repo.RevokeRefreshToken(ctx, rt.ID, first)
	require.NoError(t, err)
	require.True(t, won)

	won, err = f.repo.RevokeRefreshToken(ctx, rt.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, won, "second revocation must not win")

	got, err := f.repo.GetRefreshTokenByDigest(ctx, security.Digest("r"))
	require.NoError(t, err)
	assert.True(t, got.RevokedAt.Equal(first), "revoked_at keeps the first timestamp")
}

func TestSQLRepository_DeletingPrincipalCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt := f.refresh(t, "r")
	f.access(t, rt, "a")

	_, err := f.repo.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, f.userID)
	require.NoError(t, err)

	got, err := f.repo.GetRefreshTokenByDigest(ctx, security.Digest("r"))
	require.NoError(t, err)
	assert.Nil(t, got)
	access, err := f.repo.GetAccessTokenByDigest(ctx, security.Digest("a"))
	require.NoError(t, err)
	assert.Nil(t, access)
}

func TestSQLRepository_Ping(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.repo.Ping(context.Background()))
}
