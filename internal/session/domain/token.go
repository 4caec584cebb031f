package domain

import "time"

// RefreshToken is the long-lived credential record of a session.
// TokenDigest holds the digest of the raw token; the raw value is never stored.
type RefreshToken struct {
	ID               string
	PrincipalID      string
	TokenDigest      string
	ExpiresAt        time.Time
	RevokedAt        *time.Time // nil when not revoked
	DeviceIdentifier string     // empty when the client sent no label
	CreatedAt        time.Time
}

// AccessToken is a short-lived credential derived from a RefreshToken.
// PrincipalID is populated from the parent refresh token on lookup and is not persisted.
type AccessToken struct {
	ID             string
	RefreshTokenID string
	PrincipalID    string
	TokenDigest    string
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	CreatedAt      time.Time
}

// TokenPair carries the raw tokens of a freshly issued session. It is returned
// once and never persisted.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// IsRevoked reports whether the refresh token has been revoked.
func (t *RefreshToken) IsRevoked() bool { return t.RevokedAt != nil }

// IsExpired reports whether now is at or past the expiry.
func (t *RefreshToken) IsExpired(now time.Time) bool { return !t.ExpiresAt.After(now) }

// IsActive reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

func (t *AccessToken) IsRevoked() bool { return t.RevokedAt != nil }

func (t *AccessToken) IsExpired(now time.Time) bool { return !t.ExpiresAt.After(now) }

// IsActive reports whether the token is neither revoked nor expired at now.
func (t *AccessToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}
