package audit

import "time"

// Event is an immutable, append-only journal record for one call.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id is required; every entry belongs to exactly one call record.
// - Journal writes are best-effort; callers never block orchestration on them.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// ParticipantID is set when the entry concerns a single participant.
	ParticipantID string `json:"participant_id,omitempty" db:"participant_id"`

	Type EventType `json:"type" db:"type"`

	// Action is the provider command or callback type the entry describes.
	Action string `json:"action,omitempty" db:"action"`

	// Message is a short human-readable description for operators.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeActionSucceeded EventType = "action_succeeded"
	EventTypeActionFailed    EventType = "action_failed"
	EventTypeEventFailed     EventType = "event_failed"
	EventTypeIncomingCall    EventType = "incoming_call"
	EventTypeAdminAction     EventType = "admin_action"
)
