package telephony

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"conference-orchestrator/internal/calls"

	"github.com/google/uuid"
)

// EventType is the closed set of callback events the orchestrator understands.
type EventType string

const (
	EventCallConnected            EventType = "CallConnected"
	EventCallDisconnected         EventType = "CallDisconnected"
	EventAddParticipantSucceeded  EventType = "AddParticipantSucceeded"
	EventAddParticipantFailed     EventType = "AddParticipantFailed"
	EventCallTransferAccepted     EventType = "CallTransferAccepted"
	EventCallTransferFailed       EventType = "CallTransferFailed"
	EventRecognizeCompleted       EventType = "RecognizeCompleted"
	EventRecognizeFailed          EventType = "RecognizeFailed"
	EventRecognizeCanceled        EventType = "RecognizeCanceled"
	EventPlayCompleted            EventType = "PlayCompleted"
	EventPlayFailed               EventType = "PlayFailed"
	EventPlayCanceled             EventType = "PlayCanceled"
	EventParticipantsUpdated      EventType = "ParticipantsUpdated"
	EventAnswerFailed             EventType = "AnswerFailed"
	EventMoveParticipantSucceeded EventType = "MoveParticipantSucceeded"
	EventMoveParticipantFailed    EventType = "MoveParticipantFailed"
)

// providerEventPrefix is stripped from incoming type names.
const providerEventPrefix = "Microsoft.Communication."

var knownEventTypes = map[EventType]struct{}{
	EventCallConnected:            {},
	EventCallDisconnected:         {},
	EventAddParticipantSucceeded:  {},
	EventAddParticipantFailed:     {},
	EventCallTransferAccepted:     {},
	EventCallTransferFailed:       {},
	EventRecognizeCompleted:       {},
	EventRecognizeFailed:          {},
	EventRecognizeCanceled:        {},
	EventPlayCompleted:            {},
	EventPlayFailed:               {},
	EventPlayCanceled:             {},
	EventParticipantsUpdated:      {},
	EventAnswerFailed:             {},
	EventMoveParticipantSucceeded: {},
	EventMoveParticipantFailed:    {},
}

// ParseEventType maps a provider type string onto EventType.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(strings.TrimPrefix(strings.TrimSpace(s), providerEventPrefix))
	_, ok := knownEventTypes[t]
	return t, ok
}

// ResultInformation is the outcome block attached to completion events.
type ResultInformation struct {
	Code    int    `json:"code"`
	SubCode int    `json:"subCode"`
	Message string `json:"message"`
}

// CallEvent is the canonical, provider-agnostic callback event.
type CallEvent struct {
	Type EventType `json:"type"`

	CallConnectionID string `json:"call_connection_id"`
	ServerCallID     string `json:"server_call_id,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`

	// OperationContext is echoed back by the provider; it carries the participant id.
	OperationContext string `json:"operation_context,omitempty"`

	Result         *ResultInformation  `json:"result,omitempty"`
	Participants   []calls.RosterEntry `json:"participants,omitempty"`
	InvitationID   string              `json:"invitation_id,omitempty"`
	SequenceNumber *int64              `json:"sequence_number,omitempty"`
}

// ParticipantID returns the participant id carried in the operation context.
func (e CallEvent) ParticipantID() string {
	return strings.TrimSpace(e.OperationContext)
}

// ResultMessage returns the provider message, or a generic one naming the event.
func (e CallEvent) ResultMessage() string {
	if e.Result != nil && e.Result.Message != "" {
		return e.Result.Message
	}
	return string(e.Type)
}

var (
	ErrEmptyBatch     = errors.New("telephony: empty event batch")
	ErrMalformedBatch = errors.New("telephony: malformed event batch")
	ErrMalformedEvent = errors.New("telephony: malformed event")
)

// Validate applies the validity predicate beyond parsing.
func (e CallEvent) Validate() error {
	if strings.TrimSpace(e.CallConnectionID) == "" {
		return fmt.Errorf("%w: callConnectionId is required", ErrMalformedEvent)
	}
	if e.Type == EventParticipantsUpdated {
		return nil
	}
	id, err := uuid.Parse(e.ParticipantID())
	if err != nil {
		return fmt.Errorf("%w: operationContext %q is not an identifier", ErrMalformedEvent, e.OperationContext)
	}
	if id == uuid.Nil {
		return fmt.Errorf("%w: operationContext is the nil identifier", ErrMalformedEvent)
	}
	return nil
}

// callbackEnvelope is one element of a callback batch.
type callbackEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type callbackData struct {
	CallConnectionID  string              `json:"callConnectionId"`
	ServerCallID      string              `json:"serverCallId"`
	CorrelationID     string              `json:"correlationId"`
	OperationContext  string              `json:"operationContext"`
	ResultInformation *ResultInformation  `json:"resultInformation"`
	Participants      []rosterParticipant `json:"participants"`
	InvitationID      string              `json:"invitationId"`
	SequenceNumber    *int64              `json:"sequenceNumber"`
}

type rosterParticipant struct {
	Identifier communicationIdentifier `json:"identifier"`
	IsMuted    bool                    `json:"isMuted"`
	IsOnHold   bool                    `json:"isOnHold"`
}

// ParseEventBatch classifies a raw callback body.
//
// Elements without a type or data, and elements of unknown type, are dropped
// without error. Only a body that is empty or not a JSON array is an error.
// Returned events are not yet validated; see CallEvent.Validate.
func ParseEventBatch(body []byte) ([]CallEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyBatch
	}

	var raw []callbackEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}

	out := make([]CallEvent, 0, len(raw))
	for _, env := range raw {
		if strings.TrimSpace(env.Type) == "" || isEmptyJSON(env.Data) {
			continue
		}
		typ, ok := ParseEventType(env.Type)
		if !ok {
			continue
		}
		var d callbackData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			// Unusable data is treated like missing data.
			continue
		}
		out = append(out, d.toEvent(typ))
	}
	return out, nil
}

func (d callbackData) toEvent(typ EventType) CallEvent {
	ev := CallEvent{
		Type:             typ,
		CallConnectionID: d.CallConnectionID,
		ServerCallID:     d.ServerCallID,
		CorrelationID:    d.CorrelationID,
		OperationContext: d.OperationContext,
		Result:           d.ResultInformation,
		InvitationID:     d.InvitationID,
		SequenceNumber:   d.SequenceNumber,
	}
	for _, p := range d.Participants {
		ev.Participants = append(ev.Participants, calls.RosterEntry{
			RawID:    p.Identifier.RawID,
			IsMuted:  p.IsMuted,
			IsOnHold: p.IsOnHold,
		})
	}
	return ev
}

func isEmptyJSON(m json.RawMessage) bool {
	s := string(bytes.TrimSpace(m))
	return s == "" || s == "null" || s == "{}"
}
