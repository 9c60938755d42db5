package calls

import (
	"sort"
	"time"
)

// CallRecord is one orchestrated conference session.
//
// Invariants:
// - CallConnectionID always identifies the anchor leg once set.
// - Participant ids are unique for the lifetime of the record.
// - Version strictly increases on every persisted mutation; stores own it.
//
// NOTE: provider identifiers are kept as opaque strings so that the model stays
// provider-agnostic. Raw callback payloads are never stored here.

type CallRecord struct {
	ID string `json:"id" db:"id"`

	// ConferencePhoneNumber is the bridge number, used as caller-ID for outbound legs
	// and as the matching key for incoming calls.
	ConferencePhoneNumber string `json:"conference_phone_number" db:"conference_phone_number"`

	CallConnectionID string `json:"call_connection_id,omitempty" db:"call_connection_id"`
	ServerCallID     string `json:"server_call_id,omitempty" db:"server_call_id"`
	CorrelationID    string `json:"correlation_id,omitempty" db:"correlation_id"`

	Participants []Participant `json:"participants"`

	RecordingID    string         `json:"recording_id,omitempty" db:"recording_id"`
	RecordingState RecordingState `json:"recording_state" db:"recording_state"`

	// ErrorMessage is the last non-fatal error surfaced to operators.
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	// Listening marks the record as the target for calls ringing in on ConferencePhoneNumber.
	Listening bool `json:"listening" db:"listening"`

	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RecordingState string

const (
	RecordingStateNone     RecordingState = "none"
	RecordingStateStarting RecordingState = "starting"
	RecordingStateActive   RecordingState = "active"
	RecordingStatePaused   RecordingState = "paused"
	RecordingStateStopped  RecordingState = "stopped"
	RecordingStateFailed   RecordingState = "failed"
)

// Participant is one party of the conference.
// ID doubles as the provider operation context for every action taken on its behalf.
type Participant struct {
	ID          string            `json:"id"`
	PhoneNumber string            `json:"phone_number"`
	Direction   Direction         `json:"direction"`
	Status      ParticipantStatus `json:"status"`

	InvitationID string `json:"invitation_id,omitempty"`

	// Order is the sequencing key; ties fall back to position in the slice.
	Order int    `json:"order"`
	Label string `json:"label,omitempty"`

	MuteOnConnect bool `json:"mute_on_connect"`
	// IsRequired is reserved for a call-completion policy.
	IsRequired bool `json:"is_required"`

	// IncomingCallContext is set when the leg rings in and cleared once answered.
	IncomingCallContext string `json:"incoming_call_context,omitempty"`
}

type Direction string

const (
	DirectionOutbound                     Direction = "outbound"
	DirectionInbound                      Direction = "inbound"
	DirectionInboundBlockedOnNextOutbound Direction = "inbound_blocked_on_next_outbound"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionOutbound, DirectionInbound, DirectionInboundBlockedOnNextOutbound:
		return true
	default:
		return false
	}
}

type ParticipantStatus string

// Notified, BlockedOnNextParticipantAdded and Removed are reserved: nothing in
// the orchestrator produces them, but Removed is honoured as terminal when it
// shows up in stored data.
const (
	StatusNone                  ParticipantStatus = "none"
	StatusInviting              ParticipantStatus = "inviting"
	StatusJoining               ParticipantStatus = "joining"
	StatusNotified              ParticipantStatus = "notified"
	StatusBlockedOnNextOutbound ParticipantStatus = "blocked_on_next_outbound"
	StatusBlockedOnNextAdded    ParticipantStatus = "blocked_on_next_participant_added"
	StatusConnected             ParticipantStatus = "connected"
	StatusDisconnected          ParticipantStatus = "disconnected"
	StatusRemoved               ParticipantStatus = "removed"
	StatusFailed                ParticipantStatus = "failed"
)

// IsTerminal reports whether no event may move a participant out of s.
func (s ParticipantStatus) IsTerminal() bool {
	switch s {
	case StatusDisconnected, StatusRemoved, StatusFailed:
		return true
	default:
		return false
	}
}

// Settled reports whether an outbound leg no longer holds up sequencing.
func (s ParticipantStatus) Settled() bool {
	return s == StatusConnected || s.IsTerminal()
}

// Clone returns a deep copy; mutators always work on clones so a failed
// compare-and-swap never leaks partial state.
func (r CallRecord) Clone() CallRecord {
	out := r
	if r.Participants != nil {
		out.Participants = make([]Participant, len(r.Participants))
		copy(out.Participants, r.Participants)
	}
	return out
}

// HasAnchor reports whether the anchor leg has been created.
func (r CallRecord) HasAnchor() bool {
	return r.CallConnectionID != ""
}

// IsAnchor reports whether connectionID is the anchor leg.
func (r CallRecord) IsAnchor(connectionID string) bool {
	return r.CallConnectionID != "" && r.CallConnectionID == connectionID
}

// Participant returns a pointer into r.Participants, or nil.
func (r *CallRecord) Participant(id string) *Participant {
	if id == "" {
		return nil
	}
	for i := range r.Participants {
		if r.Participants[i].ID == id {
			return &r.Participants[i]
		}
	}
	return nil
}

// ParticipantByPhone returns the first participant with the given number and direction.
func (r *CallRecord) ParticipantByPhone(phone string, dir Direction) *Participant {
	for i := range r.Participants {
		p := &r.Participants[i]
		if p.PhoneNumber == phone && p.Direction == dir {
			return p
		}
	}
	return nil
}

// DisconnectAll moves every non-terminal participant to Disconnected and
// returns how many changed.
func (r *CallRecord) DisconnectAll() int {
	n := 0
	for i := range r.Participants {
		if r.Participants[i].Status.IsTerminal() {
			continue
		}
		r.Participants[i].Status = StatusDisconnected
		n++
	}
	return n
}

// NextOrder returns an order value placing a new participant after all existing ones.
func (r CallRecord) NextOrder() int {
	next := 0
	for _, p := range r.Participants {
		if p.Order >= next {
			next = p.Order + 1
		}
	}
	return next
}

// Ordered returns the participants matching keep, sorted by Order with
// slice position as the tie breaker.
func (r CallRecord) Ordered(keep func(Participant) bool) []Participant {
	var out []Participant
	for _, p := range r.Participants {
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
