package telemetry

import (
	"context"
	"time"

	"seshlock/internal/logging"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down
// telemetry, so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Failures are logged through log, which may be nil.
//
// emitter and event may be nil; EmitAsync then returns without starting a goroutine.
// The goroutine uses context.Background() so request cancellation does not abort the emit.
func EmitAsync(emitter EventEmitter, log logging.Logger, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil && log != nil {
			log.Warn(emitCtx, "telemetry: async emit failed", "event_type", event.Type, "error", err)
		}
	}()
}
