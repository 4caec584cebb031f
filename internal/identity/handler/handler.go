// Package handler exposes the authentication gateway over HTTP and gRPC.
package handler

import (
	"context"
	"errors"

	"seshlock/internal/identity/service"
	userdomain "seshlock/internal/user/domain"
)

// Gateway is the authentication surface the transports drive.
type Gateway interface {
	ResolveAccessToken(ctx context.Context, authorization string) (*service.Principal, error)
	Login(ctx context.Context, email, password, device string) (*service.LoginResult, error)
	Refresh(ctx context.Context, raw, device string) (*service.LoginResult, error)
	Logout(ctx context.Context, raw string) error
	User(ctx context.Context, p *service.Principal) (*userdomain.User, error)
}

// Pinger reports whether the token store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const internalErrorMessage = "internal error"

// publicMessage returns the client-facing message for a gateway error, and
// false when err is not a gateway error and must not be shown to clients.
func publicMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrMissingCredentials):
		return "Email and password are required", true
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid email or password", true
	case errors.Is(err, service.ErrMissingToken):
		return "Token not provided", true
	case errors.Is(err, service.ErrMalformedToken):
		return "Authorization header must start with 'Bearer'", true
	case errors.Is(err, service.ErrInvalidToken):
		return "Token is expired or revoked", true
	case errors.Is(err, service.ErrInvalidGrant):
		return "The refresh token is invalid or has expired", true
	case errors.Is(err, service.ErrTooManyAttempts):
		return "Too many failed login attempts, try again later", true
	}
	return internalErrorMessage, false
}
