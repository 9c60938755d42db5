package audit

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresCallAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventTypeAdminAction}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{CallID: "c1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_FillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	if err := svc.LogAdminAction(context.Background(), "c1", "ops@example.com", "call deleted"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].ID == "" {
		t.Fatalf("expected id to be generated")
	}
	if !evs[0].CreatedAt.Equal(fixed) {
		t.Fatalf("expected created_at %v, got %v", fixed, evs[0].CreatedAt)
	}
	if evs[0].Type != EventTypeAdminAction {
		t.Fatalf("expected admin_action, got %s", evs[0].Type)
	}
}

func TestService_ListFiltersByCall(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	_ = svc.Append(ctx, Event{CallID: "c1", Type: EventTypeActionSucceeded, Action: "create_call"})
	_ = svc.Append(ctx, Event{CallID: "c2", Type: EventTypeActionFailed, Action: "add_participant"})
	_ = svc.Append(ctx, Event{CallID: "c1", Type: EventTypeActionSucceeded, Action: "add_participant"})

	evs, err := svc.List(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Action != "create_call" || evs[1].Action != "add_participant" {
		t.Fatalf("expected append order, got %s, %s", evs[0].Action, evs[1].Action)
	}
}

func TestService_WithoutRepo(t *testing.T) {
	svc := NewService(nil)
	if err := svc.Append(context.Background(), Event{CallID: "c1", Type: EventTypeAdminAction}); err == nil {
		t.Fatalf("expected error")
	}
}
