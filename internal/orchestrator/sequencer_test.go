package orchestrator

import (
	"testing"

	"conference-orchestrator/internal/calls"
)

func TestPrioritySequencer_OutboundBeforeDeferredInbound(t *testing.T) {
	rec := calls.CallRecord{
		Participants: []calls.Participant{
			{ID: "b", Direction: calls.DirectionInboundBlockedOnNextOutbound, Status: calls.StatusBlockedOnNextOutbound, Order: 1},
			{ID: "a", Direction: calls.DirectionOutbound, Status: calls.StatusNone, Order: 0},
		},
	}
	seq := PrioritySequencer{}

	d := seq.Next(rec)
	if d.Action != ActionCreateCall || d.ParticipantID != "a" {
		t.Fatalf("expected create_call for a, got %s for %s", d.Action, d.ParticipantID)
	}

	for _, s := range []calls.ParticipantStatus{calls.StatusInviting, calls.StatusJoining} {
		rec.Participants[1].Status = s
		rec.CallConnectionID = "anchor"
		if d := seq.Next(rec); d.Action != ActionNone || d.Reason != "waiting_for_outbound" {
			t.Fatalf("expected to wait while a is %s, got %s (%s)", s, d.Action, d.Reason)
		}
	}

	for _, s := range []calls.ParticipantStatus{calls.StatusConnected, calls.StatusFailed, calls.StatusDisconnected, calls.StatusRemoved} {
		rec.Participants[1].Status = s
		d := seq.Next(rec)
		if d.Action != ActionAnswer || d.ParticipantID != "b" {
			t.Fatalf("expected answer for b once a is %s, got %s for %s", s, d.Action, d.ParticipantID)
		}
	}
}

func TestPrioritySequencer_LowestOrderFirst(t *testing.T) {
	rec := calls.CallRecord{
		Participants: []calls.Participant{
			{ID: "two", Direction: calls.DirectionOutbound, Status: calls.StatusNone, Order: 2},
			{ID: "zero", Direction: calls.DirectionOutbound, Status: calls.StatusNone, Order: 0},
			{ID: "one", Direction: calls.DirectionOutbound, Status: calls.StatusNone, Order: 1},
		},
	}
	seq := PrioritySequencer{}

	var got []string
	for i := 0; i < 3; i++ {
		d := seq.Next(rec)
		if d.Action == ActionNone {
			t.Fatalf("expected an action at step %d", i)
		}
		if i == 0 && d.Action != ActionCreateCall {
			t.Fatalf("expected create_call first, got %s", d.Action)
		}
		if i > 0 && d.Action != ActionAddParticipant {
			t.Fatalf("expected add_participant at step %d, got %s", i, d.Action)
		}
		got = append(got, d.ParticipantID)
		rec.CallConnectionID = "anchor"
		rec.Participant(d.ParticipantID).Status = calls.StatusInviting
	}

	want := []string{"zero", "one", "two"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestPrioritySequencer_TiesKeepSlicePosition(t *testing.T) {
	rec := calls.CallRecord{
		Participants: []calls.Participant{
			{ID: "first", Direction: calls.DirectionOutbound, Status: calls.StatusNone},
			{ID: "second", Direction: calls.DirectionOutbound, Status: calls.StatusNone},
		},
	}
	if d := (PrioritySequencer{}).Next(rec); d.ParticipantID != "first" {
		t.Fatalf("expected first, got %s", d.ParticipantID)
	}
}

func TestPrioritySequencer_SteadyState(t *testing.T) {
	rec := calls.CallRecord{
		CallConnectionID: "anchor",
		Participants: []calls.Participant{
			{ID: "a", Direction: calls.DirectionOutbound, Status: calls.StatusConnected},
			{ID: "b", Direction: calls.DirectionInbound, Status: calls.StatusInviting},
			{ID: "c", Direction: calls.DirectionInboundBlockedOnNextOutbound, Status: calls.StatusNone},
		},
	}
	d := (PrioritySequencer{}).Next(rec)
	if d.Action != ActionNone || d.Reason != "steady_state" {
		t.Fatalf("expected steady state, got %s (%s)", d.Action, d.Reason)
	}
}
