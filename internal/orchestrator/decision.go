package orchestrator

// Decision is the output of the sequencer: at most one participant action.
//
// It carries only what the participant processors need to act. Reason is
// intended for logs and metrics.

type Decision struct {
	Action        Action `json:"action"`
	ParticipantID string `json:"participant_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type Action string

const (
	ActionNone           Action = "none"
	ActionCreateCall     Action = "create_call"
	ActionAddParticipant Action = "add_participant"
	ActionAnswer         Action = "answer"
)
