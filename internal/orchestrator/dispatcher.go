package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"conference-orchestrator/internal/audit"
	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/telephony"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// Result is the outcome of dispatching one event.
// Record is the latest stored state when known.
type Result struct {
	EventType telephony.EventType `json:"event_type"`
	Outcome   Outcome             `json:"outcome"`
	Reason    string              `json:"reason,omitempty"`
	Record    calls.CallRecord    `json:"-"`
}

// DispatchBatch applies events in delivered order. A failed event never stops
// the rest of the batch.
func (o *Orchestrator) DispatchBatch(ctx context.Context, recordID string, events []telephony.CallEvent) []Result {
	out := make([]Result, 0, len(events))
	for _, ev := range events {
		out = append(out, o.Dispatch(ctx, recordID, ev))
	}
	return out
}

// Dispatch applies one event to one record, runs the follow-up actions it
// implies and then the sequencer.
func (o *Orchestrator) Dispatch(ctx context.Context, recordID string, ev telephony.CallEvent) Result {
	var res Result
	if err := ev.Validate(); err != nil {
		o.logFor(ctx).Warn("skipping invalid event", "record_id", recordID, "event_type", ev.Type, "reason", err)
		res = Result{EventType: ev.Type, Outcome: OutcomeIgnored, Reason: err.Error()}
	} else {
		res = o.apply(ctx, recordID, ev, true)
	}
	o.metrics.EventDispatched(string(ev.Type), string(res.Outcome))
	return res
}

func (o *Orchestrator) apply(ctx context.Context, recordID string, ev telephony.CallEvent, sequence bool) Result {
	log := o.logFor(ctx).With("record_id", recordID, "event_type", ev.Type, "participant_id", ev.ParticipantID())

	proc, ok := o.byEvent[ev.Type]
	if !ok {
		return Result{EventType: ev.Type, Outcome: OutcomeIgnored, Reason: "no processor registered"}
	}

	var tr Transition
	rec, err := o.Commit(ctx, recordID, func(r *calls.CallRecord) error {
		tr = proc.Apply(*r, ev)
		if !tr.Changed {
			return calls.ErrNoChange
		}
		*r = tr.Record
		return nil
	})
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			log.Warn("record not found for event")
			return Result{EventType: ev.Type, Outcome: OutcomeFailed, Reason: "record not found"}
		}
		return o.fail(ctx, recordID, ev, err)
	}
	if tr.Ignored() {
		log.Debug("event ignored", "reason", tr.Reason)
		return Result{EventType: ev.Type, Outcome: OutcomeIgnored, Reason: tr.Reason, Record: rec}
	}

	var errs []error
	for _, eff := range tr.Effects {
		if err := o.runEffect(ctx, recordID, eff); err != nil {
			errs = append(errs, err)
		}
	}
	if sequence {
		if err := o.Sequence(ctx, recordID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return o.fail(ctx, recordID, ev, errors.Join(errs...))
	}

	if fresh, err := o.store.Get(ctx, recordID); err == nil {
		rec = fresh
	}
	log.Info("event processed", "version", rec.Version)
	return Result{EventType: ev.Type, Outcome: OutcomeProcessed, Record: rec}
}

func (o *Orchestrator) runEffect(ctx context.Context, recordID string, eff Effect) error {
	switch eff.Kind {
	case EffectStartRecording:
		o.startRecording(ctx, recordID)
		return nil
	case EffectMute:
		o.mute(ctx, recordID, eff.ParticipantID)
		return nil
	case EffectUnblock:
		return o.unblock(ctx, recordID)
	case EffectMerge:
		return o.merge(ctx, recordID, eff.ConnectionID, eff.ParticipantID)
	default:
		return fmt.Errorf("unknown effect %q", eff.Kind)
	}
}

// fail records reason on the record and in the journal. The record keeps
// whatever state was reached before the failure.
func (o *Orchestrator) fail(ctx context.Context, recordID string, ev telephony.CallEvent, cause error) Result {
	reason := cause.Error()
	o.logFor(ctx).Error("event processing failed", "record_id", recordID, "event_type", ev.Type, "err", cause)

	rec, err := o.Commit(ctx, recordID, func(r *calls.CallRecord) error {
		if r.ErrorMessage == reason {
			return calls.ErrNoChange
		}
		r.ErrorMessage = reason
		return nil
	})
	if err != nil {
		o.logFor(ctx).Warn("could not record failure on call record", "record_id", recordID, "err", err)
	}
	o.record(ctx, audit.Event{
		CallID:        recordID,
		ParticipantID: ev.ParticipantID(),
		Type:          audit.EventTypeEventFailed,
		Action:        string(ev.Type),
		Message:       reason,
	})
	return Result{EventType: ev.Type, Outcome: OutcomeFailed, Reason: reason, Record: rec}
}

// Sequence runs the sequencer until it has nothing left to do. Participant
// failures are collected and sequencing moves on; any other error stops it.
func (o *Orchestrator) Sequence(ctx context.Context, recordID string) error {
	var errs []error
	for step := 0; ; step++ {
		rec, err := o.store.Get(ctx, recordID)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		// Every action moves one participant forward, so this bound is only hit
		// when a processor keeps declining to commit.
		if step > 2*len(rec.Participants)+2 {
			o.logFor(ctx).Warn("sequencing did not settle", "record_id", recordID, "steps", step)
			break
		}

		d := o.sequencer.Next(rec)
		if d.Action == ActionNone {
			o.logFor(ctx).Debug("sequencer idle", "record_id", recordID, "reason", d.Reason, "participant_id", d.ParticipantID)
			break
		}
		proc, ok := o.byAction[d.Action]
		if !ok {
			return errors.Join(append(errs, fmt.Errorf("no participant processor for %s", d.Action))...)
		}
		p := rec.Participant(d.ParticipantID)
		if p == nil {
			return errors.Join(append(errs, fmt.Errorf("%w: %s", ErrParticipantNotFound, d.ParticipantID))...)
		}

		o.logFor(ctx).Info("sequencer decision", "record_id", recordID, "action", d.Action, "participant_id", p.ID, "reason", d.Reason)
		if err := proc.Process(ctx, o, rec, *p); err != nil {
			var ae *ActionError
			if !errors.As(err, &ae) {
				return errors.Join(append(errs, err)...)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
