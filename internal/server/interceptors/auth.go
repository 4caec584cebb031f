package interceptors

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"seshlock/internal/identity/service"
)

// PrincipalResolver resolves an Authorization value to a principal.
type PrincipalResolver interface {
	ResolveAccessToken(ctx context.Context, authorization string) (*service.Principal, error)
}

// AuthUnary returns a unary server interceptor that resolves the authorization
// metadata through resolver and stores the principal in context.
// publicMethods is the set of full method names that do not require a token; a
// valid token on a public method still populates the context.
func AuthUnary(resolver PrincipalResolver, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		public := publicMethods[info.FullMethod]
		authorization := authorizationValue(ctx)
		if public && authorization == "" {
			return handler(ctx, req)
		}

		p, err := resolver.ResolveAccessToken(ctx, authorization)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, authError(err)
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}

func authError(err error) error {
	switch {
	case errors.Is(err, service.ErrMissingToken):
		return status.Error(codes.Unauthenticated, "access token not provided")
	case errors.Is(err, service.ErrMalformedToken):
		return status.Error(codes.Unauthenticated, "authorization header must start with 'Bearer'")
	case errors.Is(err, service.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "token is expired or revoked")
	}
	return status.Error(codes.Internal, "internal error")
}

// authorizationValue returns the first authorization metadata value, or "".
func authorizationValue(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
