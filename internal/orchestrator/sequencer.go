package orchestrator

import "conference-orchestrator/internal/calls"

// Sequencer picks the next participant action for a record.
type Sequencer interface {
	Next(rec calls.CallRecord) Decision
}

// PrioritySequencer evaluates, in order:
//  1. the lowest-order Outbound participant still in None (create or add)
//  2. wait while any Outbound leg is unsettled
//  3. the lowest-order participant BlockedOnNextOutbound (answer)
//  4. nothing
//
// Pure: no store access, no provider calls.
type PrioritySequencer struct{}

func (PrioritySequencer) Next(rec calls.CallRecord) Decision {
	pending := rec.Ordered(func(p calls.Participant) bool {
		return p.Direction == calls.DirectionOutbound && p.Status == calls.StatusNone
	})
	if len(pending) > 0 {
		action := ActionAddParticipant
		if !rec.HasAnchor() {
			action = ActionCreateCall
		}
		return Decision{Action: action, ParticipantID: pending[0].ID, Reason: "next_outbound"}
	}

	for _, p := range rec.Ordered(nil) {
		if p.Direction == calls.DirectionOutbound && !p.Status.Settled() {
			return Decision{Action: ActionNone, ParticipantID: p.ID, Reason: "waiting_for_outbound"}
		}
	}

	blocked := rec.Ordered(func(p calls.Participant) bool {
		return p.Status == calls.StatusBlockedOnNextOutbound
	})
	if len(blocked) > 0 {
		return Decision{Action: ActionAnswer, ParticipantID: blocked[0].ID, Reason: "deferred_inbound"}
	}

	return Decision{Action: ActionNone, Reason: "steady_state"}
}
