package telephony

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	eventGridSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	eventGridIncomingCall           = "Microsoft.Communication.IncomingCall"
)

// IncomingCall is a leg ringing in on one of our numbers.
type IncomingCall struct {
	IncomingCallContext string `json:"incoming_call_context"`
	To                  string `json:"to"`
	From                string `json:"from"`
	ServerCallID        string `json:"server_call_id,omitempty"`
	CorrelationID       string `json:"correlation_id,omitempty"`
}

// EventGridBatch is the useful content of one Event Grid delivery.
type EventGridBatch struct {
	// ValidationCode is set when the delivery is a subscription handshake.
	ValidationCode string
	IncomingCalls  []IncomingCall
}

type eventGridEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
}

type incomingCallData struct {
	To                  communicationIdentifier `json:"to"`
	From                communicationIdentifier `json:"from"`
	ServerCallID        string                  `json:"serverCallId"`
	IncomingCallContext string                  `json:"incomingCallContext"`
	CorrelationID       string                  `json:"correlationId"`
}

// ParseEventGridBatch extracts the validation handshake and incoming calls from
// an Event Grid delivery. Other event types are ignored.
func ParseEventGridBatch(body []byte) (EventGridBatch, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return EventGridBatch{}, ErrEmptyBatch
	}
	var events []eventGridEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return EventGridBatch{}, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}

	var out EventGridBatch
	for _, ev := range events {
		switch ev.EventType {
		case eventGridSubscriptionValidation:
			var d struct {
				ValidationCode string `json:"validationCode"`
			}
			if err := json.Unmarshal(ev.Data, &d); err == nil && d.ValidationCode != "" {
				out.ValidationCode = d.ValidationCode
			}
		case eventGridIncomingCall:
			var d incomingCallData
			if err := json.Unmarshal(ev.Data, &d); err != nil || d.IncomingCallContext == "" {
				continue
			}
			out.IncomingCalls = append(out.IncomingCalls, IncomingCall{
				IncomingCallContext: d.IncomingCallContext,
				To:                  d.To.number(),
				From:                d.From.number(),
				ServerCallID:        d.ServerCallID,
				CorrelationID:       d.CorrelationID,
			})
		}
	}
	return out, nil
}

// number returns the E.164 value of a phone identifier.
func (id communicationIdentifier) number() string {
	if id.PhoneNumber != nil && id.PhoneNumber.Value != "" {
		return id.PhoneNumber.Value
	}
	// rawId is "<prefix>:<number>" for phone numbers.
	if i := strings.Index(id.RawID, ":"); i >= 0 {
		return id.RawID[i+1:]
	}
	return id.RawID
}
