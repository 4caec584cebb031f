// Package service implements the session lifecycle: issuing, rotating and revoking
// paired access and refresh tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"seshlock/internal/logging"
	"seshlock/internal/security"
	"seshlock/internal/session/domain"
	"seshlock/internal/session/repository"
	"seshlock/internal/telemetry"
)

// Sentinel errors for the engine; the gateway maps them to its own errors.
var (
	ErrNotFound             = errors.New("session not found")
	ErrRetryBudgetExhausted = errors.New("token digest collision retry budget exhausted")
	ErrPrincipalRequired    = errors.New("principal id is required")
)

// Engine issues, rotates and revokes sessions. It holds no locks; the store's
// unique constraints and transactions are the only synchronisation.
type Engine struct {
	repo     repository.Repository
	cfg      Config
	clock    func() time.Time
	newToken func() (string, error)
	newID    func() string
	emitter  telemetry.EventEmitter
	log      logging.Logger
	tracer   trace.Tracer

	issued     metric.Int64Counter
	rotated    metric.Int64Counter
	revoked    metric.Int64Counter
	collisions metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option { return func(e *Engine) { e.clock = clock } }

// WithTokenSource replaces security.GenerateRawToken.
func WithTokenSource(fn func() (string, error)) Option { return func(e *Engine) { e.newToken = fn } }

// WithIDGenerator replaces the UUID record ID generator.
func WithIDGenerator(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

// WithEmitter sends lifecycle events to emitter.
func WithEmitter(emitter telemetry.EventEmitter) Option { return func(e *Engine) { e.emitter = emitter } }

func WithLogger(log logging.Logger) Option { return func(e *Engine) { e.log = log } }

func WithTracer(tracer trace.Tracer) Option { return func(e *Engine) { e.tracer = tracer } }

// WithMeter records the session counters on meter.
func WithMeter(meter metric.Meter) Option {
	return func(e *Engine) { e.initCounters(meter) }
}

// NewEngine returns an Engine over repo. cfg is validated and copied.
func NewEngine(repo repository.Repository, cfg Config, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("session engine: repository is nil")
	}
	if cfg.MaxInsertAttempts == 0 {
		cfg.MaxInsertAttempts = DefaultMaxInsertAttempts
	}
	if cfg.RotationPolicy == "" {
		cfg.RotationPolicy = RotationFailClosed
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("session engine: %w", err)
	}
	e := &Engine{
		repo:     repo,
		cfg:      cfg,
		clock:    time.Now,
		newToken: security.GenerateRawToken,
		newID:    func() string { return uuid.New().String() },
		emitter:  telemetry.NopEmitter{},
		log:      logging.Nop(),
		tracer:   tracenoop.NewTracerProvider().Tracer(""),
	}
	e.initCounters(metricnoop.NewMeterProvider().Meter(""))
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) initCounters(meter metric.Meter) {
	// Instrument creation only fails on invalid names; the names below are constant.
	e.issued, _ = meter.Int64Counter("seshlock.sessions.issued", metric.WithDescription("Token pairs issued"))
	e.rotated, _ = meter.Int64Counter("seshlock.sessions.rotated", metric.WithDescription("Refresh tokens rotated"))
	e.revoked, _ = meter.Int64Counter("seshlock.sessions.revoked", metric.WithDescription("Refresh tokens revoked"))
	e.collisions, _ = meter.Int64Counter("seshlock.digest_collisions", metric.WithDescription("Token digest collisions on insert"))
}

// now is truncated to microseconds so timestamps survive a Postgres round-trip unchanged.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// Issue creates a refresh token and an access token for principalID and returns the raw pair.
// The raw values are not retrievable afterwards.
func (e *Engine) Issue(ctx context.Context, principalID, device string) (*domain.TokenPair, error) {
	ctx, span := e.tracer.Start(ctx, "session.issue")
	defer span.End()

	pair, rt, err := e.issue(ctx, principalID, device)
	if err != nil {
		return nil, spanErr(span, err)
	}
	e.issued.Add(ctx, 1)
	e.log.Info(ctx, "session issued", "principal_id", principalID, "refresh_token_id", rt.ID)
	e.emit(&telemetry.Event{
		Type:           telemetry.EventSessionIssued,
		PrincipalID:    principalID,
		RefreshTokenID: rt.ID,
		Device:         device,
		OccurredAt:     rt.CreatedAt,
	})
	return pair, nil
}

func (e *Engine) issue(ctx context.Context, principalID, device string) (*domain.TokenPair, *domain.RefreshToken, error) {
	if principalID == "" {
		return nil, nil, ErrPrincipalRequired
	}
	now := e.now()
	rt := &domain.RefreshToken{
		PrincipalID:      principalID,
		ExpiresAt:        now.Add(e.cfg.RefreshTTL),
		DeviceIdentifier: device,
		CreatedAt:        now,
	}
	rawRefresh, err := e.insertWithRetry(ctx, "refresh", func(raw string) error {
		rt.ID = e.newID()
		rt.TokenDigest = security.Digest(raw)
		return e.repo.CreateRefreshToken(ctx, rt)
	})
	if err != nil {
		return nil, nil, err
	}

	at := &domain.AccessToken{
		RefreshTokenID: rt.ID,
		PrincipalID:    principalID,
		ExpiresAt:      now.Add(e.cfg.AccessTTL),
		CreatedAt:      now,
	}
	rawAccess, err := e.insertWithRetry(ctx, "access", func(raw string) error {
		at.ID = e.newID()
		at.TokenDigest = security.Digest(raw)
		return e.repo.CreateAccessToken(ctx, at)
	})
	if err != nil {
		return nil, nil, err
	}

	return &domain.TokenPair{
		AccessToken:           rawAccess,
		AccessTokenExpiresAt:  at.ExpiresAt,
		RefreshToken:          rawRefresh,
		RefreshTokenExpiresAt: rt.ExpiresAt,
	}, rt, nil
}

// insertWithRetry draws a fresh raw token for every attempt and retries only on digest collisions.
func (e *Engine) insertWithRetry(ctx context.Context, kind string, insert func(raw string) error) (string, error) {
	for attempt := 1; attempt <= e.cfg.MaxInsertAttempts; attempt++ {
		raw, err := e.newToken()
		if err != nil {
			return "", fmt.Errorf("generate %s token: %w", kind, err)
		}
		err = insert(raw)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, repository.ErrDuplicateDigest) {
			return "", fmt.Errorf("store %s token: %w", kind, err)
		}
		e.collisions.Add(ctx, 1, metric.WithAttributes(attribute.String("token", kind)))
		e.log.Warn(ctx, "token digest collision", "token", kind, "attempt", attempt)
	}
	return "", fmt.Errorf("%s token after %d attempts: %w", kind, e.cfg.MaxInsertAttempts, ErrRetryBudgetExhausted)
}

// Revoke revokes rt and every access token derived from it in one transaction.
// Revoking an already revoked token succeeds without changing it.
func (e *Engine) Revoke(ctx context.Context, rt *domain.RefreshToken) error {
	if rt == nil {
		return ErrNotFound
	}
	ctx, span := e.tracer.Start(ctx, "session.revoke", trace.WithAttributes(attribute.String("refresh_token_id", rt.ID)))
	defer span.End()

	if _, err := e.revoke(ctx, rt); err != nil {
		return spanErr(span, err)
	}
	return nil
}

func (e *Engine) revoke(ctx context.Context, rt *domain.RefreshToken) (bool, error) {
	now := e.now()
	won, err := e.repo.RevokeRefreshToken(ctx, rt.ID, now)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	if won {
		e.revoked.Add(ctx, 1)
		e.log.Info(ctx, "session revoked", "principal_id", rt.PrincipalID, "refresh_token_id", rt.ID)
		e.emit(&telemetry.Event{
			Type:           telemetry.EventSessionRevoked,
			PrincipalID:    rt.PrincipalID,
			RefreshTokenID: rt.ID,
			Device:         rt.DeviceIdentifier,
			OccurredAt:     now,
		})
	}
	return won, nil
}

// Rotate exchanges an active raw refresh token for a new pair owned by the same principal.
// The presented token and its access tokens are revoked first. Unknown, expired and revoked
// tokens all return ErrNotFound; so does losing a concurrent rotation under RotationFailClosed.
func (e *Engine) Rotate(ctx context.Context, raw, device string) (*domain.TokenPair, error) {
	if raw == "" {
		return nil, ErrNotFound
	}
	ctx, span := e.tracer.Start(ctx, "session.rotate")
	defer span.End()

	rt, err := e.repo.GetRefreshTokenByDigest(ctx, security.Digest(raw))
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("lookup refresh token: %w", err))
	}
	if rt == nil || !rt.IsActive(e.now()) {
		return nil, ErrNotFound
	}
	span.SetAttributes(attribute.String("refresh_token_id", rt.ID))

	won, err := e.revoke(ctx, rt)
	if err != nil {
		return nil, spanErr(span, err)
	}
	if !won && e.cfg.RotationPolicy == RotationFailClosed {
		e.log.Warn(ctx, "concurrent rotation lost", "principal_id", rt.PrincipalID, "refresh_token_id", rt.ID)
		return nil, ErrNotFound
	}

	pair, next, err := e.issue(ctx, rt.PrincipalID, device)
	if err != nil {
		return nil, spanErr(span, err)
	}
	e.rotated.Add(ctx, 1)
	e.log.Info(ctx, "session rotated", "principal_id", rt.PrincipalID, "refresh_token_id", next.ID, "previous_refresh_token_id", rt.ID)
	e.emit(&telemetry.Event{
		Type:                   telemetry.EventSessionRotated,
		PrincipalID:            rt.PrincipalID,
		RefreshTokenID:         next.ID,
		PreviousRefreshTokenID: rt.ID,
		Device:                 device,
		OccurredAt:             next.CreatedAt,
	})
	return pair, nil
}

// RevokeByRawToken revokes the refresh token with the given raw value in any state.
// An unknown token is not an error.
func (e *Engine) RevokeByRawToken(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	rt, err := e.repo.GetRefreshTokenByDigest(ctx, security.Digest(raw))
	if err != nil {
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if rt == nil {
		return nil
	}
	return e.Revoke(ctx, rt)
}

func (e *Engine) emit(event *telemetry.Event) {
	telemetry.EmitAsync(e.emitter, e.log, event)
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
