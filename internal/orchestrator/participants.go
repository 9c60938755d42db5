package orchestrator

import (
	"context"

	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/telephony"
)

// Runtime is what a participant processor may use. *Orchestrator implements it.
type Runtime interface {
	Actions() telephony.ActionClient
	CallbackURL(recordID string) string
	Commit(ctx context.Context, id string, mutate func(rec *calls.CallRecord) error) (calls.CallRecord, error)
	Retry(ctx context.Context, call ActionCall, fn func(ctx context.Context) error) error
	ApplySynthetic(ctx context.Context, recordID string, ev telephony.CallEvent) error
	FailParticipant(ctx context.Context, recordID string, p calls.Participant, action Action, cause error) error
	EndCall(ctx context.Context, recordID string, cause error) error
}

// ParticipantProcessor carries out one sequencer Action for one participant.
//
// Process issues the provider command outside any store transaction and only
// then commits the resulting transition. A terminal provider failure is
// returned as *ActionError after the participant has been marked Failed.
type ParticipantProcessor interface {
	Handles(a Action) bool
	Process(ctx context.Context, rt Runtime, rec calls.CallRecord, p calls.Participant) error
}

func DefaultParticipantProcessors() []ParticipantProcessor {
	return []ParticipantProcessor{outboundProcessor{}, answerProcessor{}}
}

// outboundProcessor dials outbound participants: the first one creates the
// anchor call, later ones are added to it.
type outboundProcessor struct{}

func (outboundProcessor) Handles(a Action) bool {
	return a == ActionCreateCall || a == ActionAddParticipant
}

func (op outboundProcessor) Process(ctx context.Context, rt Runtime, rec calls.CallRecord, p calls.Participant) error {
	if !rec.HasAnchor() {
		return op.create(ctx, rt, rec, p)
	}
	return op.add(ctx, rt, rec, p)
}

func (outboundProcessor) create(ctx context.Context, rt Runtime, rec calls.CallRecord, p calls.Participant) error {
	var res telephony.CreateCallResult
	err := rt.Retry(ctx, ActionCall{RecordID: rec.ID, ParticipantID: p.ID, Action: string(ActionCreateCall)}, func(ctx context.Context) error {
		var err error
		res, err = rt.Actions().CreateCall(ctx, telephony.CreateCallRequest{
			CalleeNumber:     p.PhoneNumber,
			CallerIDNumber:   rec.ConferencePhoneNumber,
			OperationContext: p.ID,
			CallbackURL:      rt.CallbackURL(rec.ID),
		})
		return err
	})
	if err != nil {
		return rt.FailParticipant(ctx, rec.ID, p, ActionCreateCall, err)
	}

	_, err = rt.Commit(ctx, rec.ID, func(r *calls.CallRecord) error {
		if !r.HasAnchor() {
			r.CallConnectionID = res.CallConnectionID
		}
		if r.ServerCallID == "" {
			r.ServerCallID = res.ServerCallID
		}
		if r.CorrelationID == "" {
			r.CorrelationID = res.CorrelationID
		}
		// The connect callback may already have moved recording on, even to Failed.
		if r.RecordingState == "" {
			r.RecordingState = calls.RecordingStateNone
		}
		if cur := r.Participant(p.ID); cur != nil && cur.Status == calls.StatusNone {
			cur.Status = calls.StatusInviting
		}
		return nil
	})
	return err
}

func (outboundProcessor) add(ctx context.Context, rt Runtime, rec calls.CallRecord, p calls.Participant) error {
	var res telephony.AddParticipantResult
	err := rt.Retry(ctx, ActionCall{RecordID: rec.ID, ParticipantID: p.ID, Action: string(ActionAddParticipant)}, func(ctx context.Context) error {
		var err error
		res, err = rt.Actions().AddParticipant(ctx, telephony.AddParticipantRequest{
			CallConnectionID: rec.CallConnectionID,
			CalleeNumber:     p.PhoneNumber,
			CallerIDNumber:   rec.ConferencePhoneNumber,
			OperationContext: p.ID,
		})
		return err
	})
	if err != nil {
		switch telephony.Classify(err) {
		case telephony.KindAlreadySatisfied:
			// No completion event will follow; run its effects here.
			return rt.ApplySynthetic(ctx, rec.ID, telephony.CallEvent{
				Type:             telephony.EventAddParticipantSucceeded,
				CallConnectionID: rec.CallConnectionID,
				OperationContext: p.ID,
			})
		case telephony.KindCallEnded:
			return rt.EndCall(ctx, rec.ID, err)
		default:
			return rt.FailParticipant(ctx, rec.ID, p, ActionAddParticipant, err)
		}
	}

	_, err = rt.Commit(ctx, rec.ID, func(r *calls.CallRecord) error {
		cur := r.Participant(p.ID)
		if cur == nil {
			return calls.ErrNoChange
		}
		if cur.InvitationID == "" {
			cur.InvitationID = res.InvitationID
		}
		if cur.Status == calls.StatusNone {
			cur.Status = calls.StatusInviting
		}
		return nil
	})
	return err
}

// answerProcessor picks up a ringing inbound leg with its stored context.
// The answered leg comes up on its own connection and is merged once it connects.
type answerProcessor struct{}

func (answerProcessor) Handles(a Action) bool { return a == ActionAnswer }

func (answerProcessor) Process(ctx context.Context, rt Runtime, rec calls.CallRecord, p calls.Participant) error {
	if p.IncomingCallContext == "" {
		return rt.FailParticipant(ctx, rec.ID, p, ActionAnswer, ErrMissingIncomingContext)
	}

	err := rt.Retry(ctx, ActionCall{RecordID: rec.ID, ParticipantID: p.ID, Action: string(ActionAnswer)}, func(ctx context.Context) error {
		_, err := rt.Actions().AnswerCall(ctx, telephony.AnswerCallRequest{
			IncomingCallContext: p.IncomingCallContext,
			OperationContext:    p.ID,
			CallbackURL:         rt.CallbackURL(rec.ID),
		})
		return err
	})
	if err != nil && telephony.Classify(err) != telephony.KindAlreadySatisfied {
		return rt.FailParticipant(ctx, rec.ID, p, ActionAnswer, err)
	}

	_, err = rt.Commit(ctx, rec.ID, func(r *calls.CallRecord) error {
		cur := r.Participant(p.ID)
		if cur == nil || (cur.Status != calls.StatusNone && cur.Status != calls.StatusBlockedOnNextOutbound) {
			return calls.ErrNoChange
		}
		cur.Status = calls.StatusInviting
		cur.IncomingCallContext = ""
		return nil
	})
	return err
}
