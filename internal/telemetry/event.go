package telemetry

import "time"

// Session lifecycle event types.
const (
	EventSessionIssued  = "session.issued"
	EventSessionRotated = "session.rotated"
	EventSessionRevoked = "session.revoked"
)

// Event describes a session lifecycle change. It carries record IDs only;
// raw tokens and digests are never part of an event.
// PreviousRefreshTokenID is set on session.rotated.
type Event struct {
	Type                   string    `json:"type"`
	PrincipalID            string    `json:"principal_id"`
	RefreshTokenID         string    `json:"refresh_token_id"`
	PreviousRefreshTokenID string    `json:"previous_refresh_token_id,omitempty"`
	Device                 string    `json:"device,omitempty"`
	OccurredAt             time.Time `json:"occurred_at"`
}
