package telephony

import (
	"errors"
	"fmt"
	"net/http"
)

// Provider error codes the orchestrator reacts to. Anything else is terminal.
const (
	CodeOperationInFlight = "OperationAlreadyInProgress"
	CodeAlreadyInCall     = "ParticipantAlreadyInCall"
	CodeCallNotFound      = "CallNotFound"
)

// ProviderError is a rejection returned by the provider for one action.
type ProviderError struct {
	// Action is the command that failed, e.g. "add_participant".
	Action string

	// StatusCode is the HTTP status (0 if the request never got an answer).
	StatusCode int

	// Code and Message come from the provider's error body.
	Code    string
	Message string

	// Cause is the underlying transport error, if any.
	Cause error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		if e.Code != "" {
			return fmt.Sprintf("%s: provider %d %s: %s", e.Action, e.StatusCode, e.Code, e.Message)
		}
		return fmt.Sprintf("%s: provider %d: %s", e.Action, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Action, e.Cause)
	}
	return fmt.Sprintf("%s: unknown provider error", e.Action)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ErrorKind tells the orchestrator how to react to a failed action.
type ErrorKind int

const (
	// KindTerminal is any rejection not listed below, including transport failures.
	KindTerminal ErrorKind = iota
	// KindTransient means another operation is in flight; retry after a delay.
	KindTransient
	// KindAlreadySatisfied means the desired end state already holds.
	KindAlreadySatisfied
	// KindCallEnded means the call the action targeted no longer exists.
	KindCallEnded
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAlreadySatisfied:
		return "already_satisfied"
	case KindCallEnded:
		return "call_ended"
	default:
		return "terminal"
	}
}

// Classify maps an action error onto ErrorKind. nil classifies as terminal;
// callers only classify non-nil errors.
func Classify(err error) ErrorKind {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return KindTerminal
	}
	switch pe.Code {
	case CodeOperationInFlight:
		return KindTransient
	case CodeAlreadyInCall:
		return KindAlreadySatisfied
	case CodeCallNotFound:
		return KindCallEnded
	}
	switch pe.StatusCode {
	case http.StatusConflict:
		return KindTransient
	case http.StatusNotFound:
		return KindCallEnded
	}
	return KindTerminal
}
