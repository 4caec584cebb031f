// Package service implements the authentication gateway: it turns request
// credentials into principals and drives login, refresh and logout.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"seshlock/internal/identity/limiter"
	"seshlock/internal/logging"
	"seshlock/internal/security"
	sessiondomain "seshlock/internal/session/domain"
	sessionservice "seshlock/internal/session/service"
	userdomain "seshlock/internal/user/domain"
	userservice "seshlock/internal/user/service"
)

// Sentinel errors for the gateway; handlers map them to transport status codes.
var (
	ErrMissingToken       = errors.New("missing token")
	ErrMalformedToken     = errors.New("malformed authorization header")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidGrant       = errors.New("invalid grant")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many attempts")
)

const bearerPrefix = "Bearer "

// Principal is the authenticated caller behind an access token.
type Principal struct {
	ID          string
	AccessToken *sessiondomain.AccessToken
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	Email string
	Pair  *sessiondomain.TokenPair
}

// TokenStore is the lookup side of the token repository.
type TokenStore interface {
	GetAccessTokenByDigest(ctx context.Context, digest string) (*sessiondomain.AccessToken, error)
	GetRefreshTokenByDigest(ctx context.Context, digest string) (*sessiondomain.RefreshToken, error)
}

// SessionEngine is the part of the session engine the gateway drives.
type SessionEngine interface {
	Issue(ctx context.Context, principalID, device string) (*sessiondomain.TokenPair, error)
	Rotate(ctx context.Context, raw, device string) (*sessiondomain.TokenPair, error)
	Revoke(ctx context.Context, rt *sessiondomain.RefreshToken) error
}

// Users verifies credentials and loads principals.
type Users interface {
	VerifyCredentials(ctx context.Context, email, password string) (*userdomain.User, error)
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// LoginLimiter throttles failed logins per email.
type LoginLimiter interface {
	Check(ctx context.Context, identifier string) error
	Fail(ctx context.Context, identifier string) error
	Reset(ctx context.Context, identifier string) error
}

// Gateway authenticates requests against the token store.
type Gateway struct {
	tokens  TokenStore
	engine  SessionEngine
	users   Users
	limiter LoginLimiter
	log     logging.Logger
	clock   func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLimiter enables login throttling.
func WithLimiter(l LoginLimiter) Option { return func(g *Gateway) { g.limiter = l } }

func WithLogger(log logging.Logger) Option { return func(g *Gateway) { g.log = log } }

func WithClock(clock func() time.Time) Option { return func(g *Gateway) { g.clock = clock } }

// NewGateway returns a Gateway.
func NewGateway(tokens TokenStore, engine SessionEngine, users Users, opts ...Option) *Gateway {
	g := &Gateway{
		tokens: tokens,
		engine: engine,
		users:  users,
		log:    logging.Nop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ParseBearer extracts the token from an Authorization value.
// A blank value, or the scheme with nothing after it, is ErrMissingToken;
// any other value not starting with "Bearer " is ErrMalformedToken.
func ParseBearer(authorization string) (string, error) {
	if strings.TrimSpace(authorization) == "" {
		return "", ErrMissingToken
	}
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return "", ErrMalformedToken
	}
	token := strings.TrimSpace(authorization[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// ResolveAccessToken authenticates an Authorization value. Unknown, expired and
// revoked tokens all return ErrInvalidToken.
func (g *Gateway) ResolveAccessToken(ctx context.Context, authorization string) (*Principal, error) {
	raw, err := ParseBearer(authorization)
	if err != nil {
		return nil, err
	}
	at, err := g.tokens.GetAccessTokenByDigest(ctx, security.Digest(raw))
	if err != nil {
		return nil, fmt.Errorf("lookup access token: %w", err)
	}
	if at == nil || !at.IsActive(g.clock()) {
		return nil, ErrInvalidToken
	}
	return &Principal{ID: at.PrincipalID, AccessToken: at}, nil
}

// ResolveRefreshToken returns the active refresh token for raw. raw is digested
// exactly as presented.
func (g *Gateway) ResolveRefreshToken(ctx context.Context, raw string) (*sessiondomain.RefreshToken, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}
	rt, err := g.tokens.GetRefreshTokenByDigest(ctx, security.Digest(raw))
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rt == nil || !rt.IsActive(g.clock()) {
		return nil, ErrInvalidGrant
	}
	return rt, nil
}

// Login verifies email and password and issues a session on success.
func (g *Gateway) Login(ctx context.Context, email, password, device string) (*LoginResult, error) {
	email = userdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if g.limiter != nil {
		if err := g.limiter.Check(ctx, email); err != nil {
			if errors.Is(err, limiter.ErrRateLimited) {
				return nil, ErrTooManyAttempts
			}
			g.log.Warn(ctx, "login limiter unavailable", "error", err)
		}
	}

	u, err := g.users.VerifyCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, userservice.ErrInvalidCredentials) {
			g.recordFailure(ctx, email)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	pair, err := g.engine.Issue(ctx, u.ID, device)
	if err != nil {
		return nil, err
	}
	if g.limiter != nil {
		if err := g.limiter.Reset(ctx, email); err != nil {
			g.log.Warn(ctx, "login limiter reset failed", "error", err)
		}
	}
	return &LoginResult{Email: u.Email, Pair: pair}, nil
}

func (g *Gateway) recordFailure(ctx context.Context, email string) {
	g.log.Info(ctx, "login failed")
	if g.limiter == nil {
		return
	}
	if err := g.limiter.Fail(ctx, email); err != nil {
		g.log.Warn(ctx, "login limiter update failed", "error", err)
	}
}

// Refresh rotates an active refresh token into a new pair. A token that is not
// active, or that a concurrent request rotated first, returns ErrInvalidGrant.
// The principal is loaded before rotating so a failed lookup leaves the
// presented token usable.
func (g *Gateway) Refresh(ctx context.Context, raw, device string) (*LoginResult, error) {
	rt, err := g.ResolveRefreshToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	u, err := g.users.GetByID(ctx, rt.PrincipalID)
	if err != nil {
		if errors.Is(err, userservice.ErrUserNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	pair, err := g.engine.Rotate(ctx, raw, device)
	if err != nil {
		if errors.Is(err, sessionservice.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	return &LoginResult{Email: u.Email, Pair: pair}, nil
}

// Logout revokes the session of an active refresh token.
func (g *Gateway) Logout(ctx context.Context, raw string) error {
	rt, err := g.ResolveRefreshToken(ctx, raw)
	if err != nil {
		return err
	}
	return g.engine.Revoke(ctx, rt)
}

// User returns the user behind a resolved principal.
func (g *Gateway) User(ctx context.Context, p *Principal) (*userdomain.User, error) {
	u, err := g.users.GetByID(ctx, p.ID)
	if err != nil {
		if errors.Is(err, userservice.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return u, nil
}
