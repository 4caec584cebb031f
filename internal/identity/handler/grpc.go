package handler

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"seshlock/internal/identity/service"
	"seshlock/internal/logging"
	"seshlock/internal/server/interceptors"
	sessiondomain "seshlock/internal/session/domain"
)

// SessionServiceName is the fully qualified gRPC service name.
const SessionServiceName = "seshlock.v1.SessionService"

// Full method names, used for interceptor configuration.
const (
	LoginMethod   = "/" + SessionServiceName + "/Login"
	RefreshMethod = "/" + SessionServiceName + "/Refresh"
	LogoutMethod  = "/" + SessionServiceName + "/Logout"
	WhoAmIMethod  = "/" + SessionServiceName + "/WhoAmI"
)

// SessionServiceServer is the server API for seshlock.v1.SessionService.
// Requests and responses are google.protobuf.Struct messages.
type SessionServiceServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WhoAmI(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(SessionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + SessionServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SessionServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SessionServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// SessionServiceDesc describes seshlock.v1.SessionService for grpc.Server.RegisterService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Login", SessionServiceServer.Login),
		unaryMethod("Refresh", SessionServiceServer.Refresh),
		unaryMethod("Logout", SessionServiceServer.Logout),
		unaryMethod("WhoAmI", SessionServiceServer.WhoAmI),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seshlock/v1/session.proto",
}

// RegisterSessionServiceServer registers srv with s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

// SessionServiceClient calls seshlock.v1.SessionService.
type SessionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSessionServiceClient returns a client over cc.
func NewSessionServiceClient(cc grpc.ClientConnInterface) *SessionServiceClient {
	return &SessionServiceClient{cc: cc}
}

func (c *SessionServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionServiceClient) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, LoginMethod, in, opts...)
}

func (c *SessionServiceClient) Refresh(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RefreshMethod, in, opts...)
}

func (c *SessionServiceClient) Logout(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, LogoutMethod, in, opts...)
}

func (c *SessionServiceClient) WhoAmI(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, WhoAmIMethod, in, opts...)
}

// GRPCServer implements SessionServiceServer over the gateway.
type GRPCServer struct {
	gw  Gateway
	log logging.Logger
}

// NewGRPCServer returns a GRPCServer. log may be nil.
func NewGRPCServer(gw Gateway, log logging.Logger) *GRPCServer {
	if log == nil {
		log = logging.Nop()
	}
	return &GRPCServer{gw: gw, log: log}
}

// Login expects {email, password, device?}.
func (s *GRPCServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.gw.Login(ctx, stringField(in, "email"), stringField(in, "password"), stringField(in, "device"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return sessionStruct(res)
}

// Refresh expects {refresh_token, device?}.
func (s *GRPCServer) Refresh(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.gw.Refresh(ctx, stringField(in, "refresh_token"), stringField(in, "device"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return sessionStruct(res)
}

// Logout expects {refresh_token}.
func (s *GRPCServer) Logout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.gw.Logout(ctx, stringField(in, "refresh_token")); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &structpb.Struct{}, nil
}

// WhoAmI returns the caller. It uses the principal set by the auth interceptor
// and otherwise resolves the authorization metadata itself.
func (s *GRPCServer) WhoAmI(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, ok := interceptors.GetPrincipal(ctx)
	if !ok {
		var err error
		p, err = s.gw.ResolveAccessToken(ctx, authorizationFromMetadata(ctx))
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
	}
	u, err := s.gw.User(ctx, p)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return structpb.NewStruct(map[string]any{
		"user": map[string]any{
			"id":    u.ID,
			"email": u.Email,
		},
		"access_token_expires_at": formatTime(p.AccessToken.ExpiresAt),
	})
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	msg, ok := publicMessage(err)
	if !ok {
		s.log.Error(ctx, "rpc failed", "error", err)
	}
	return status.Error(grpcCode(err), msg)
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, service.ErrMissingToken),
		errors.Is(err, service.ErrMalformedToken),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrInvalidCredentials):
		return codes.Unauthenticated
	case errors.Is(err, service.ErrMissingCredentials),
		errors.Is(err, service.ErrInvalidGrant):
		return codes.InvalidArgument
	case errors.Is(err, service.ErrTooManyAttempts):
		return codes.ResourceExhausted
	}
	return codes.Internal
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func authorizationFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("authorization"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func sessionStruct(res *service.LoginResult) (*structpb.Struct, error) {
	return structpb.NewStruct(pairFields(res.Email, res.Pair))
}

func pairFields(email string, pair *sessiondomain.TokenPair) map[string]any {
	return map[string]any{
		"user":                     map[string]any{"email": email},
		"access_token":             pair.AccessToken,
		"access_token_expires_at":  formatTime(pair.AccessTokenExpiresAt),
		"refresh_token":            pair.RefreshToken,
		"refresh_token_expires_at": formatTime(pair.RefreshTokenExpiresAt),
	}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
