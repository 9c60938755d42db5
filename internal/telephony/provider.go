package telephony

import "context"

// ActionClient issues call-control commands to the telephony provider.
//
// Rules:
// - No provider SDK or HTTP calls outside telephony adapters.
// - Every command that produces a later callback carries an OperationContext
//   (the participant id) so the completion event can be correlated.
// - Errors are *ProviderError whenever the provider answered; use Classify to interpret them.
type ActionClient interface {
	CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error)
	AddParticipant(ctx context.Context, req AddParticipantRequest) (AddParticipantResult, error)
	AnswerCall(ctx context.Context, req AnswerCallRequest) (AnswerCallResult, error)
	MuteParticipant(ctx context.Context, req MuteParticipantRequest) error
	MoveParticipants(ctx context.Context, req MoveParticipantsRequest) error
	StartRecording(ctx context.Context, req StartRecordingRequest) (StartRecordingResult, error)
}

// CreateCallRequest places the first outbound leg; the resulting connection becomes the anchor.
type CreateCallRequest struct {
	CalleeNumber     string `json:"callee_number"`
	CallerIDNumber   string `json:"caller_id_number"`
	OperationContext string `json:"operation_context"`
	CallbackURL      string `json:"callback_url"`
}

type CreateCallResult struct {
	CallConnectionID string `json:"call_connection_id"`
	ServerCallID     string `json:"server_call_id"`
	CorrelationID    string `json:"correlation_id"`
}

type AddParticipantRequest struct {
	CallConnectionID string `json:"call_connection_id"`
	CalleeNumber     string `json:"callee_number"`
	CallerIDNumber   string `json:"caller_id_number"`
	OperationContext string `json:"operation_context"`
}

type AddParticipantResult struct {
	InvitationID string `json:"invitation_id"`
}

type AnswerCallRequest struct {
	IncomingCallContext string `json:"incoming_call_context"`
	OperationContext    string `json:"operation_context"`
	CallbackURL         string `json:"callback_url"`
}

type AnswerCallResult struct {
	CallConnectionID string `json:"call_connection_id,omitempty"`
	ServerCallID     string `json:"server_call_id,omitempty"`
}

type MuteParticipantRequest struct {
	CallConnectionID string `json:"call_connection_id"`
	PhoneNumber      string `json:"phone_number"`
	OperationContext string `json:"operation_context,omitempty"`
}

// MoveParticipantsRequest moves PhoneNumber from FromConnectionID onto TargetConnectionID.
type MoveParticipantsRequest struct {
	TargetConnectionID string `json:"target_connection_id"`
	PhoneNumber        string `json:"phone_number"`
	FromConnectionID   string `json:"from_connection_id"`
	OperationContext   string `json:"operation_context"`
}

type StartRecordingRequest struct {
	ServerCallID string `json:"server_call_id"`
}

type StartRecordingResult struct {
	RecordingID string `json:"recording_id"`
}
