package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/telephony"
)

const (
	actionMove           = "move_participants"
	actionMute           = "mute_participant"
	actionStartRecording = "start_recording"
)

// merge moves an answered inbound leg onto the anchor. On failure the
// participant keeps its status; a later event or a manual reconcile repairs it.
func (o *Orchestrator) merge(ctx context.Context, recordID, fromConnectionID, participantID string) error {
	rec, err := o.store.Get(ctx, recordID)
	if err != nil {
		return err
	}
	p := rec.Participant(participantID)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, participantID)
	}
	pid, phone := p.ID, p.PhoneNumber

	err = o.Retry(ctx, ActionCall{RecordID: recordID, ParticipantID: pid, Action: actionMove}, func(ctx context.Context) error {
		return o.actions.MoveParticipants(ctx, telephony.MoveParticipantsRequest{
			TargetConnectionID: rec.CallConnectionID,
			PhoneNumber:        phone,
			FromConnectionID:   fromConnectionID,
			OperationContext:   pid,
		})
	})
	if err != nil {
		if telephony.Classify(err) == telephony.KindAlreadySatisfied {
			return o.ApplySynthetic(ctx, recordID, telephony.CallEvent{
				Type:             telephony.EventMoveParticipantSucceeded,
				CallConnectionID: rec.CallConnectionID,
				OperationContext: pid,
			})
		}
		return fmt.Errorf("move participant %s: %w", pid, err)
	}

	_, err = o.Commit(ctx, recordID, func(r *calls.CallRecord) error {
		cur := r.Participant(pid)
		if cur == nil || cur.Status.IsTerminal() || cur.Status == calls.StatusConnected || cur.Status == calls.StatusJoining {
			return calls.ErrNoChange
		}
		cur.Status = calls.StatusJoining
		return nil
	})
	return err
}

// unblock answers every participant waiting on the next outbound leg, in order.
func (o *Orchestrator) unblock(ctx context.Context, recordID string) error {
	proc, ok := o.byAction[ActionAnswer]
	if !ok {
		return nil
	}
	rec, err := o.store.Get(ctx, recordID)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range rec.Ordered(func(p calls.Participant) bool {
		return p.Status == calls.StatusBlockedOnNextOutbound
	}) {
		o.logFor(ctx).Info("answering unblocked participant", "record_id", recordID, "participant_id", p.ID)
		if err := proc.Process(ctx, o, rec, p); err != nil {
			var ae *ActionError
			if !errors.As(err, &ae) {
				return errors.Join(append(errs, err)...)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// startRecording is best-effort: a failure is recorded on the record and
// never reaches the caller.
func (o *Orchestrator) startRecording(ctx context.Context, recordID string) {
	rec, err := o.store.Get(ctx, recordID)
	if err != nil {
		o.logFor(ctx).Warn("recording skipped", "record_id", recordID, "err", err)
		return
	}
	if rec.RecordingState != calls.RecordingStateStarting {
		return
	}

	var res telephony.StartRecordingResult
	if rec.ServerCallID == "" {
		err = errors.New("server call id unknown")
	} else {
		err = o.Retry(ctx, ActionCall{RecordID: recordID, Action: actionStartRecording}, func(ctx context.Context) error {
			var err error
			res, err = o.actions.StartRecording(ctx, telephony.StartRecordingRequest{ServerCallID: rec.ServerCallID})
			return err
		})
	}

	_, cerr := o.Commit(ctx, recordID, func(r *calls.CallRecord) error {
		if r.RecordingState != calls.RecordingStateStarting {
			return calls.ErrNoChange
		}
		if err != nil {
			r.RecordingState = calls.RecordingStateFailed
			r.ErrorMessage = "start recording: " + err.Error()
			return nil
		}
		r.RecordingState = calls.RecordingStateActive
		r.RecordingID = res.RecordingID
		return nil
	})
	if cerr != nil {
		o.logFor(ctx).Warn("recording state not saved", "record_id", recordID, "err", cerr)
	}
	if err != nil {
		o.logFor(ctx).Warn("recording failed", "record_id", recordID, "err", err)
	}
}

// mute is best-effort like recording.
func (o *Orchestrator) mute(ctx context.Context, recordID, participantID string) {
	rec, err := o.store.Get(ctx, recordID)
	if err != nil {
		return
	}
	p := rec.Participant(participantID)
	if p == nil {
		return
	}
	pid, phone := p.ID, p.PhoneNumber

	err = o.Retry(ctx, ActionCall{RecordID: recordID, ParticipantID: pid, Action: actionMute}, func(ctx context.Context) error {
		return o.actions.MuteParticipant(ctx, telephony.MuteParticipantRequest{
			CallConnectionID: rec.CallConnectionID,
			PhoneNumber:      phone,
			OperationContext: pid,
		})
	})
	if err == nil {
		return
	}
	o.logFor(ctx).Warn("mute on connect failed", "record_id", recordID, "participant_id", pid, "err", err)
	if _, cerr := o.Commit(ctx, recordID, func(r *calls.CallRecord) error {
		r.ErrorMessage = fmt.Sprintf("mute participant %s: %v", pid, err)
		return nil
	}); cerr != nil {
		o.logFor(ctx).Warn("mute failure not saved", "record_id", recordID, "err", cerr)
	}
}
