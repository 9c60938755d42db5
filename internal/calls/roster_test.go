package calls

import "testing"

func TestRawIDFor(t *testing.T) {
	out := Participant{PhoneNumber: "+15551230000", Direction: DirectionOutbound}
	if got := RawIDFor(out, "4"); got != "4:+15551230000" {
		t.Fatalf("expected prefixed id, got %q", got)
	}
	blocked := Participant{PhoneNumber: "4:+15551230001", Direction: DirectionInboundBlockedOnNextOutbound}
	if got := RawIDFor(blocked, "4"); got != "4:+15551230001" {
		t.Fatalf("expected raw id, got %q", got)
	}
}

func TestReconcileRoster_Idempotent(t *testing.T) {
	rec := CallRecord{Participants: []Participant{
		{ID: "a", PhoneNumber: "+1001", Direction: DirectionOutbound, Status: StatusConnected},
		{ID: "b", PhoneNumber: "+1002", Direction: DirectionInbound, Status: StatusConnected},
		{ID: "c", PhoneNumber: "+1003", Direction: DirectionOutbound, Status: StatusInviting},
	}}
	roster := []RosterEntry{{RawID: "4:+1001"}}

	changed := rec.ReconcileRoster(roster, "4")
	if len(changed) != 1 || changed[0] != "b" {
		t.Fatalf("expected only b changed, got %v", changed)
	}
	if rec.Participant("c").Status != StatusInviting {
		t.Fatalf("expected non-connected participant untouched")
	}

	before := rec.Clone()
	if again := rec.ReconcileRoster(roster, "4"); len(again) != 0 {
		t.Fatalf("expected no change on replay, got %v", again)
	}
	for i := range before.Participants {
		if before.Participants[i] != rec.Participants[i] {
			t.Fatalf("expected replay to leave record unchanged")
		}
	}
}
