// Package producer publishes session events to a message broker.
package producer

import (
	"context"

	"seshlock/internal/telemetry"
)

// Producer emits session events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; use telemetry.EmitAsync from request paths.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
