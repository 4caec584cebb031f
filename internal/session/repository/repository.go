package repository

import (
	"context"
	"errors"
	"time"

	"seshlock/internal/session/domain"
)

// ErrDuplicateDigest is returned by the Create methods when the token digest
// (or record ID) collides with an existing row.
var ErrDuplicateDigest = errors.New("duplicate token digest")

// Repository defines persistence for refresh and access token records.
// Get methods return (nil, nil) when no row matches.
type Repository interface {
	CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error
	CreateAccessToken(ctx context.Context, t *domain.AccessToken) error
	GetRefreshTokenByDigest(ctx context.Context, digest string) (*domain.RefreshToken, error)
	// GetAccessTokenByDigest populates PrincipalID from the parent refresh token.
	GetAccessTokenByDigest(ctx context.Context, digest string) (*domain.AccessToken, error)
	// RevokeRefreshToken revokes every unrevoked access token of the refresh token and
	// then the refresh token itself, in one transaction. won is true when this call
	// moved the refresh token from unrevoked to revoked.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) (won bool, err error)
	ListAccessTokens(ctx context.Context, refreshTokenID string) ([]*domain.AccessToken, error)
	Ping(ctx context.Context) error
}
