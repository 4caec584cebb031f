package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"seshlock/internal/telemetry"
)

// loggerName is the instrumentation scope of session event records.
const loggerName = "seshlock.sessions"

// recordEmitter is the part of otellog.Logger the emitter uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.NopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(loggerName))
}

// NewEventEmitterWithLogger returns an EventEmitter writing records to logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the session event to an OTel log record with the event type as body.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(event.Type))
	rec.AddAttributes(otellog.String("event_type", event.Type))
	if event.PrincipalID != "" {
		rec.AddAttributes(otellog.String("principal_id", event.PrincipalID))
	}
	if event.RefreshTokenID != "" {
		rec.AddAttributes(otellog.String("refresh_token_id", event.RefreshTokenID))
	}
	if event.PreviousRefreshTokenID != "" {
		rec.AddAttributes(otellog.String("previous_refresh_token_id", event.PreviousRefreshTokenID))
	}
	if event.Device != "" {
		rec.AddAttributes(otellog.String("device", event.Device))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
