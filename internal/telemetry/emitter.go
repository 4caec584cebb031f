package telemetry

import "context"

// EventEmitter emits session events (OTel logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, *Event) error { return nil }
