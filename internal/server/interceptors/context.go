package interceptors

import (
	"context"

	"seshlock/internal/identity/service"
)

type contextKey struct{ name string }

var (
	principalKey = contextKey{"principal"}
	callKey      = contextKey{"call"}
)

// callPrincipal is filled by WithPrincipal so interceptors outside the auth
// interceptor can see who made the call.
type callPrincipal struct {
	p *service.Principal
}

func withCallPrincipal(ctx context.Context) (context.Context, *callPrincipal) {
	c := &callPrincipal{}
	return context.WithValue(ctx, callKey, c), c
}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p *service.Principal) context.Context {
	if c, ok := ctx.Value(callKey).(*callPrincipal); ok {
		c.p = p
	}
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal from context and true if set.
func GetPrincipal(ctx context.Context) (*service.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*service.Principal)
	return p, ok && p != nil
}

// GetUserID returns the principal ID from context and true if set.
func GetUserID(ctx context.Context) (string, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return "", false
	}
	return p.ID, true
}

// GetSessionID returns the refresh token ID behind the caller's access token.
func GetSessionID(ctx context.Context) (string, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok || p.AccessToken == nil {
		return "", false
	}
	return p.AccessToken.RefreshTokenID, true
}

// GetAccessTokenID returns the ID of the caller's access token.
func GetAccessTokenID(ctx context.Context) (string, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok || p.AccessToken == nil {
		return "", false
	}
	return p.AccessToken.ID, true
}
