package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"conference-orchestrator/internal/audit"
	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/telephony"

	"github.com/google/uuid"
)

// IncomingResult describes how a ringing leg was matched.
type IncomingResult struct {
	RecordID      string `json:"record_id"`
	ParticipantID string `json:"participant_id"`
	// Deferred is set when the leg waits for the next outbound participant
	// instead of being answered right away.
	Deferred bool `json:"deferred"`
	// Duplicate is set for a redelivered ring whose caller is already being
	// handled; nothing is answered.
	Duplicate bool `json:"duplicate,omitempty"`
}

const unexpectedCallerLabel = "unexpected"

// HandleIncomingCall matches a ringing leg to the record listening on the
// dialed number. ErrNoListeningRecord lets the caller fall through to other
// handling.
func (o *Orchestrator) HandleIncomingCall(ctx context.Context, call telephony.IncomingCall) (IncomingResult, error) {
	if strings.TrimSpace(call.IncomingCallContext) == "" {
		o.metrics.IncomingCall("invalid")
		return IncomingResult{}, ErrMissingIncomingContext
	}

	target, err := o.listeningRecord(ctx, call.To)
	if err != nil {
		if errors.Is(err, ErrNoListeningRecord) {
			o.metrics.IncomingCall("no_match")
		}
		return IncomingResult{}, err
	}

	var res IncomingResult
	rec, err := o.Commit(ctx, target.ID, func(r *calls.CallRecord) error {
		res = IncomingResult{RecordID: r.ID}

		if p := findCaller(r, calls.DirectionInboundBlockedOnNextOutbound, call.From); p != nil {
			res.ParticipantID = p.ID
			if p.IncomingCallContext == call.IncomingCallContext ||
				(p.Status != calls.StatusNone && p.Status != calls.StatusBlockedOnNextOutbound) {
				res.Duplicate = true
				return calls.ErrNoChange
			}
			p.Status = calls.StatusBlockedOnNextOutbound
			p.IncomingCallContext = call.IncomingCallContext
			res.Deferred = true
			return nil
		}
		if p := findCaller(r, calls.DirectionInbound, call.From); p != nil {
			res.ParticipantID = p.ID
			if p.IncomingCallContext == call.IncomingCallContext || p.Status != calls.StatusNone {
				res.Duplicate = true
				return calls.ErrNoChange
			}
			p.IncomingCallContext = call.IncomingCallContext
			return nil
		}

		// Nobody expected this caller; take the call anyway so the record shows it.
		np := calls.Participant{
			ID:                  uuid.NewString(),
			PhoneNumber:         call.From,
			Direction:           calls.DirectionInbound,
			Status:              calls.StatusNone,
			Order:               r.NextOrder(),
			Label:               unexpectedCallerLabel,
			IncomingCallContext: call.IncomingCallContext,
		}
		r.Participants = append(r.Participants, np)
		res.ParticipantID = np.ID
		return nil
	})
	if err != nil {
		o.metrics.IncomingCall("failed")
		return IncomingResult{}, fmt.Errorf("match incoming call: %w", err)
	}
	if res.Duplicate {
		o.metrics.IncomingCall("duplicate")
		o.logFor(ctx).Info("incoming call already handled", "record_id", res.RecordID, "participant_id", res.ParticipantID)
		return res, nil
	}

	o.record(ctx, audit.Event{
		CallID:        res.RecordID,
		ParticipantID: res.ParticipantID,
		Type:          audit.EventTypeIncomingCall,
		Message:       fmt.Sprintf("from %s deferred=%t", call.From, res.Deferred),
	})
	o.logFor(ctx).Info("incoming call matched", "record_id", res.RecordID, "participant_id", res.ParticipantID, "deferred", res.Deferred)

	if res.Deferred {
		o.metrics.IncomingCall("deferred")
		if err := o.Sequence(ctx, res.RecordID); err != nil {
			return res, err
		}
		return res, nil
	}

	o.metrics.IncomingCall("answered")
	proc, ok := o.byAction[ActionAnswer]
	if !ok {
		return res, fmt.Errorf("no participant processor for %s", ActionAnswer)
	}
	p := rec.Participant(res.ParticipantID)
	if p == nil {
		return res, fmt.Errorf("%w: %s", ErrParticipantNotFound, res.ParticipantID)
	}
	return res, proc.Process(ctx, o, rec, *p)
}

// listeningRecord picks the most recently modified record listening on number
// and clears the flag on any stale duplicates.
func (o *Orchestrator) listeningRecord(ctx context.Context, number string) (calls.CallRecord, error) {
	recs, err := o.store.ListListening(ctx, number)
	if err != nil {
		return calls.CallRecord{}, fmt.Errorf("list listening records: %w", err)
	}
	if len(recs) == 0 {
		return calls.CallRecord{}, ErrNoListeningRecord
	}

	newest := recs[0]
	for _, r := range recs[1:] {
		if r.UpdatedAt.After(newest.UpdatedAt) {
			newest = r
		}
	}
	for _, r := range recs {
		if r.ID == newest.ID {
			continue
		}
		_, err := o.Commit(ctx, r.ID, func(cur *calls.CallRecord) error {
			if !cur.Listening {
				return calls.ErrNoChange
			}
			cur.Listening = false
			return nil
		})
		if err != nil {
			o.logFor(ctx).Warn("could not clear stale listening flag", "record_id", r.ID, "err", err)
			continue
		}
		o.logFor(ctx).Info("cleared stale listening flag", "record_id", r.ID, "number", number)
	}
	return newest, nil
}

// findCaller returns the first live participant of dir dialing from. Terminal
// legs are skipped so a caller ringing back is treated as a new leg.
func findCaller(r *calls.CallRecord, dir calls.Direction, from string) *calls.Participant {
	for i := range r.Participants {
		p := &r.Participants[i]
		if p.Direction == dir && !p.Status.IsTerminal() && samePhone(p.PhoneNumber, from) {
			return p
		}
	}
	return nil
}

// samePhone compares numbers ignoring a raw identifier prefix ("4:+1555...").
func samePhone(a, b string) bool {
	return bareNumber(a) == bareNumber(b)
}

func bareNumber(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 {
		return s[i+1:]
	}
	return s
}
