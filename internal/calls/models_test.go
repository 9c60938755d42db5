package calls

import "testing"

func TestParticipantStatus_IsTerminal(t *testing.T) {
	terminal := []ParticipantStatus{StatusDisconnected, StatusRemoved, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("expected %q terminal", s)
		}
	}
	open := []ParticipantStatus{StatusNone, StatusInviting, StatusJoining, StatusNotified, StatusBlockedOnNextOutbound, StatusBlockedOnNextAdded, StatusConnected}
	for _, s := range open {
		if s.IsTerminal() {
			t.Fatalf("expected %q non-terminal", s)
		}
	}
}

func TestCallRecord_CloneIsDeep(t *testing.T) {
	rec := CallRecord{ID: "r", Participants: []Participant{{ID: "a", Status: StatusNone}}}
	cp := rec.Clone()
	cp.Participants[0].Status = StatusConnected
	if rec.Participants[0].Status != StatusNone {
		t.Fatalf("expected original untouched, got %q", rec.Participants[0].Status)
	}
}

func TestCallRecord_DisconnectAllKeepsTerminal(t *testing.T) {
	rec := CallRecord{Participants: []Participant{
		{ID: "a", Status: StatusConnected},
		{ID: "b", Status: StatusFailed},
		{ID: "c", Status: StatusNone},
	}}
	if n := rec.DisconnectAll(); n != 2 {
		t.Fatalf("expected 2 changed, got %d", n)
	}
	if rec.Participant("b").Status != StatusFailed {
		t.Fatalf("expected failed to stay failed")
	}
	if rec.Participant("c").Status != StatusDisconnected {
		t.Fatalf("expected c disconnected, got %q", rec.Participant("c").Status)
	}
}

func TestCallRecord_OrderedBreaksTiesByPosition(t *testing.T) {
	rec := CallRecord{Participants: []Participant{
		{ID: "x", Order: 1},
		{ID: "y", Order: 0},
		{ID: "z", Order: 1},
	}}
	got := rec.Ordered(nil)
	if got[0].ID != "y" || got[1].ID != "x" || got[2].ID != "z" {
		t.Fatalf("unexpected order: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if rec.NextOrder() != 2 {
		t.Fatalf("expected next order 2, got %d", rec.NextOrder())
	}
}

func TestCallRecord_Validate(t *testing.T) {
	rec := CallRecord{ID: "r", ConferencePhoneNumber: "+15550000000", Participants: []Participant{
		{ID: "a", PhoneNumber: "+1", Direction: DirectionOutbound},
		{ID: "a", PhoneNumber: "+2", Direction: "sideways"},
	}}
	if err := rec.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
	rec.Participants = rec.Participants[:1]
	if err := rec.Validate(); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}
