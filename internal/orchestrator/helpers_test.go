package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/telephony"
)

const (
	pidA = "11111111-1111-1111-1111-111111111111"
	pidB = "22222222-2222-2222-2222-222222222222"
	pidC = "33333333-3333-3333-3333-333333333333"

	anchorConn = "anchor-conn"
	confNumber = "+15550000000"
)

// fakeActions records every provider command. Errors queued per action are
// returned in order before the call starts succeeding.
type fakeActions struct {
	mu sync.Mutex

	errs map[string][]error
	// onCreate runs after a successful CreateCall, before it returns.
	onCreate func()

	creates    []telephony.CreateCallRequest
	adds       []telephony.AddParticipantRequest
	answers    []telephony.AnswerCallRequest
	mutes      []telephony.MuteParticipantRequest
	moves      []telephony.MoveParticipantsRequest
	recordings []telephony.StartRecordingRequest
}

func newFakeActions() *fakeActions {
	return &fakeActions{errs: make(map[string][]error)}
}

func (f *fakeActions) fail(action string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[action] = append(f.errs[action], errs...)
}

func (f *fakeActions) next(action string) error {
	q := f.errs[action]
	if len(q) == 0 {
		return nil
	}
	f.errs[action] = q[1:]
	return q[0]
}

func (f *fakeActions) CreateCall(_ context.Context, req telephony.CreateCallRequest) (telephony.CreateCallResult, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	err := f.next("create")
	hook := f.onCreate
	f.mu.Unlock()
	if err != nil {
		return telephony.CreateCallResult{}, err
	}
	if hook != nil {
		hook()
	}
	return telephony.CreateCallResult{CallConnectionID: anchorConn, ServerCallID: "server-1", CorrelationID: "corr-1"}, nil
}

func (f *fakeActions) AddParticipant(_ context.Context, req telephony.AddParticipantRequest) (telephony.AddParticipantResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, req)
	if err := f.next("add"); err != nil {
		return telephony.AddParticipantResult{}, err
	}
	return telephony.AddParticipantResult{InvitationID: "inv-" + req.OperationContext}, nil
}

func (f *fakeActions) AnswerCall(_ context.Context, req telephony.AnswerCallRequest) (telephony.AnswerCallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, req)
	if err := f.next("answer"); err != nil {
		return telephony.AnswerCallResult{}, err
	}
	return telephony.AnswerCallResult{CallConnectionID: "leg-" + req.OperationContext}, nil
}

func (f *fakeActions) MuteParticipant(_ context.Context, req telephony.MuteParticipantRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutes = append(f.mutes, req)
	return f.next("mute")
}

func (f *fakeActions) MoveParticipants(_ context.Context, req telephony.MoveParticipantsRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, req)
	return f.next("move")
}

func (f *fakeActions) StartRecording(_ context.Context, req telephony.StartRecordingRequest) (telephony.StartRecordingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings = append(f.recordings, req)
	if err := f.next("record"); err != nil {
		return telephony.StartRecordingResult{}, err
	}
	return telephony.StartRecordingResult{RecordingID: "recording-1"}, nil
}

type fakeMetrics struct {
	mu        sync.Mutex
	retries   int
	conflicts int
	outcomes  map[string]int
	incoming  map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{outcomes: map[string]int{}, incoming: map[string]int{}}
}

func (m *fakeMetrics) EventDispatched(_ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *fakeMetrics) ProviderAction(string, string) {}

func (m *fakeMetrics) ProviderRetry(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *fakeMetrics) StoreConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *fakeMetrics) IncomingCall(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incoming[result]++
}

type harness struct {
	orch    *Orchestrator
	store   *calls.MemoryStore
	actions *fakeActions
	metrics *fakeMetrics
	sleeps  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   calls.NewMemoryStore(),
		actions: newFakeActions(),
		metrics: newFakeMetrics(),
	}
	orch, err := New(h.store, h.actions, Options{
		CallbackURL:   func(id string) string { return "https://example.test/api/calls/" + id + "/events" },
		RetryAttempts: 10,
		Metrics:       h.metrics,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleep: func(context.Context, time.Duration) error {
			h.sleeps++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) seed(t *testing.T, rec calls.CallRecord) calls.CallRecord {
	t.Helper()
	if rec.ID == "" {
		rec.ID = "rec-1"
	}
	if rec.ConferencePhoneNumber == "" {
		rec.ConferencePhoneNumber = confNumber
	}
	if rec.RecordingState == "" {
		rec.RecordingState = calls.RecordingStateNone
	}
	out, err := h.store.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return out
}

func (h *harness) get(t *testing.T, id string) calls.CallRecord {
	t.Helper()
	rec, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return rec
}

func status(t *testing.T, rec calls.CallRecord, pid string) calls.ParticipantStatus {
	t.Helper()
	p := rec.Participant(pid)
	if p == nil {
		t.Fatalf("participant %s not found", pid)
	}
	return p.Status
}

func inFlight() error {
	return &telephony.ProviderError{Action: "add_participant", StatusCode: 409, Code: telephony.CodeOperationInFlight, Message: "operation in progress"}
}
