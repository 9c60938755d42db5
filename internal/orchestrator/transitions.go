package orchestrator

import (
	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/telephony"
)

// EffectKind names a follow-up the dispatcher runs after a transition is committed.
type EffectKind string

const (
	EffectStartRecording EffectKind = "start_recording"
	EffectMute           EffectKind = "mute"
	EffectUnblock        EffectKind = "unblock"
	EffectMerge          EffectKind = "merge"
)

type Effect struct {
	Kind          EffectKind
	ParticipantID string
	// ConnectionID is the leg to merge from (EffectMerge only).
	ConnectionID string
}

// Transition is the result of applying one event to one record.
// Record is only meaningful when Changed is true.
type Transition struct {
	Record  calls.CallRecord
	Changed bool
	Effects []Effect
	Reason  string
}

// Ignored reports whether the event needs neither a write nor a follow-up.
func (t Transition) Ignored() bool {
	return !t.Changed && len(t.Effects) == 0
}

func ignore(rec calls.CallRecord, reason string) Transition {
	return Transition{Record: rec, Reason: reason}
}

// EventProcessor is the state machine for a group of event types.
// Apply must be pure: it may be re-run on a fresh record after a write conflict.
type EventProcessor interface {
	Types() []telephony.EventType
	Apply(rec calls.CallRecord, ev telephony.CallEvent) Transition
}

// DefaultEventProcessors returns the processors for every known event type.
func DefaultEventProcessors(rawIDPrefix string) []EventProcessor {
	return []EventProcessor{
		callConnectedProcessor{},
		callDisconnectedProcessor{},
		participantJoinedProcessor{},
		participantFailedProcessor{},
		rosterProcessor{prefix: rawIDPrefix},
		extensionPointProcessor{},
	}
}

type callConnectedProcessor struct{}

func (callConnectedProcessor) Types() []telephony.EventType {
	return []telephony.EventType{telephony.EventCallConnected}
}

func (callConnectedProcessor) Apply(in calls.CallRecord, ev telephony.CallEvent) Transition {
	rec := in.Clone()
	pid := ev.ParticipantID()

	// A leg other than the anchor connected: it has to be moved onto the anchor.
	if rec.HasAnchor() && !rec.IsAnchor(ev.CallConnectionID) {
		// Joining means the move was already issued for this leg.
		if p := rec.Participant(pid); p != nil && (p.Status.IsTerminal() || p.Status == calls.StatusConnected || p.Status == calls.StatusJoining) {
			return ignore(rec, "participant already merging, connected or terminal")
		}
		return Transition{Record: rec, Effects: []Effect{{Kind: EffectMerge, ParticipantID: pid, ConnectionID: ev.CallConnectionID}}}
	}

	p := rec.Participant(pid)
	if p == nil {
		return ignore(rec, "participant not found")
	}
	if p.Status.IsTerminal() || p.Status == calls.StatusConnected {
		return ignore(rec, "participant already connected or terminal")
	}

	if !rec.HasAnchor() {
		// The connect overtook the create-call commit, or the first leg was answered rather than dialed.
		rec.CallConnectionID = ev.CallConnectionID
	}
	if rec.ServerCallID == "" {
		rec.ServerCallID = ev.ServerCallID
	}
	if rec.CorrelationID == "" {
		rec.CorrelationID = ev.CorrelationID
	}
	p.Status = calls.StatusConnected

	var effects []Effect
	if rec.RecordingState == calls.RecordingStateNone || rec.RecordingState == "" {
		rec.RecordingState = calls.RecordingStateStarting
		effects = append(effects, Effect{Kind: EffectStartRecording})
	}
	effects = append(effects, Effect{Kind: EffectUnblock})

	return Transition{Record: rec, Changed: true, Effects: effects}
}

type callDisconnectedProcessor struct{}

func (callDisconnectedProcessor) Types() []telephony.EventType {
	return []telephony.EventType{telephony.EventCallDisconnected}
}

func (callDisconnectedProcessor) Apply(in calls.CallRecord, ev telephony.CallEvent) Transition {
	rec := in.Clone()
	if !rec.IsAnchor(ev.CallConnectionID) {
		return ignore(rec, "disconnect of a non-anchor leg")
	}
	if rec.DisconnectAll() == 0 {
		return ignore(rec, "all participants already terminal")
	}
	return Transition{Record: rec, Changed: true}
}

// participantJoinedProcessor handles the completions that put a participant on the anchor.
type participantJoinedProcessor struct{}

func (participantJoinedProcessor) Types() []telephony.EventType {
	return []telephony.EventType{telephony.EventAddParticipantSucceeded, telephony.EventMoveParticipantSucceeded}
}

func (participantJoinedProcessor) Apply(in calls.CallRecord, ev telephony.CallEvent) Transition {
	rec := in.Clone()
	p := rec.Participant(ev.ParticipantID())
	if p == nil {
		return ignore(rec, "participant not found")
	}
	if p.Status.IsTerminal() || p.Status == calls.StatusConnected {
		return ignore(rec, "participant already connected or terminal")
	}

	p.Status = calls.StatusConnected
	if ev.InvitationID != "" && ev.Type == telephony.EventAddParticipantSucceeded {
		p.InvitationID = ev.InvitationID
	}

	var effects []Effect
	if p.MuteOnConnect {
		effects = append(effects, Effect{Kind: EffectMute, ParticipantID: p.ID})
	}
	effects = append(effects, Effect{Kind: EffectUnblock})
	return Transition{Record: rec, Changed: true, Effects: effects}
}

type participantFailedProcessor struct{}

func (participantFailedProcessor) Types() []telephony.EventType {
	return []telephony.EventType{
		telephony.EventAddParticipantFailed,
		telephony.EventAnswerFailed,
		telephony.EventMoveParticipantFailed,
	}
}

func (participantFailedProcessor) Apply(in calls.CallRecord, ev telephony.CallEvent) Transition {
	rec := in.Clone()
	p := rec.Participant(ev.ParticipantID())
	if p == nil {
		return ignore(rec, "participant not found")
	}
	if p.Status.IsTerminal() {
		return ignore(rec, "participant already terminal")
	}
	p.Status = calls.StatusFailed
	rec.ErrorMessage = ev.ResultMessage()
	return Transition{Record: rec, Changed: true}
}

// rosterProcessor reconciles the anchor roster; only the anchor's snapshot is
// authoritative, an unmerged leg's roster never lists the conference.
type rosterProcessor struct {
	prefix string
}

func (rosterProcessor) Types() []telephony.EventType {
	return []telephony.EventType{telephony.EventParticipantsUpdated}
}

func (r rosterProcessor) Apply(in calls.CallRecord, ev telephony.CallEvent) Transition {
	rec := in.Clone()
	if !rec.IsAnchor(ev.CallConnectionID) {
		return ignore(rec, "roster of a non-anchor leg")
	}
	if changed := rec.ReconcileRoster(ev.Participants, r.prefix); len(changed) == 0 {
		return ignore(rec, "roster already reconciled")
	}
	return Transition{Record: rec, Changed: true}
}

// extensionPointProcessor accepts events that need no state change today.
type extensionPointProcessor struct{}

func (extensionPointProcessor) Types() []telephony.EventType {
	return []telephony.EventType{
		telephony.EventCallTransferAccepted,
		telephony.EventCallTransferFailed,
		telephony.EventRecognizeCompleted,
		telephony.EventRecognizeFailed,
		telephony.EventRecognizeCanceled,
		telephony.EventPlayCompleted,
		telephony.EventPlayFailed,
		telephony.EventPlayCanceled,
	}
}

func (extensionPointProcessor) Apply(in calls.CallRecord, _ telephony.CallEvent) Transition {
	return ignore(in, "no state change required")
}
