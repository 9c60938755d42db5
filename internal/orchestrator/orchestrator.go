package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conference-orchestrator/internal/audit"
	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/telephony"
	"conference-orchestrator/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrParticipantNotFound    = errors.New("orchestrator: participant not found")
	ErrNoListeningRecord      = errors.New("orchestrator: no record listening on number")
	ErrMissingIncomingContext = errors.New("orchestrator: incoming call context missing")
	ErrDuplicateProcessor     = errors.New("orchestrator: duplicate processor")
)

// Metrics receives orchestration counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	EventDispatched(eventType string, outcome string)
	ProviderAction(action string, result string)
	ProviderRetry(action string)
	StoreConflict()
	IncomingCall(result string)
}

type noopMetrics struct{}

func (noopMetrics) EventDispatched(string, string) {}
func (noopMetrics) ProviderAction(string, string)  {}
func (noopMetrics) ProviderRetry(string)           {}
func (noopMetrics) StoreConflict()                 {}
func (noopMetrics) IncomingCall(string)            {}

// Journal records per-call history. Writes are best-effort.
type Journal interface {
	Append(ctx context.Context, e audit.Event) error
}

type Options struct {
	// CallbackURL returns the webhook URL the provider posts events for a record to.
	CallbackURL func(recordID string) string

	// RawIDPrefix is the provider prefix of phone-number identifiers in roster snapshots.
	RawIDPrefix string

	// MaxUpdateAttempts bounds the compare-and-swap loop per commit.
	MaxUpdateAttempts int

	// RetryAttempts is how many times an in-flight rejection is retried after
	// the first call. Zero disables retries.
	RetryAttempts int
	RetryDelay    time.Duration

	Sequencer             Sequencer
	EventProcessors       []EventProcessor
	ParticipantProcessors []ParticipantProcessor

	Journal Journal
	Metrics Metrics
	Logger  *slog.Logger

	// Sleep waits between retries; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator applies provider events to call records and drives the
// participant actions that follow from them.
type Orchestrator struct {
	store   calls.Store
	actions telephony.ActionClient
	opts    Options
	log     *slog.Logger

	sequencer Sequencer
	byEvent   map[telephony.EventType]EventProcessor
	byAction  map[Action]ParticipantProcessor
	metrics   Metrics
	journal   Journal
}

func New(store calls.Store, actions telephony.ActionClient, opts Options) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	if actions == nil {
		return nil, errors.New("orchestrator: action client is required")
	}
	if opts.CallbackURL == nil {
		return nil, errors.New("orchestrator: callback url builder is required")
	}
	if opts.RawIDPrefix == "" {
		opts.RawIDPrefix = "4"
	}
	if opts.RetryAttempts < 0 {
		return nil, errors.New("orchestrator: retry attempts must not be negative")
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Sequencer == nil {
		opts.Sequencer = PrioritySequencer{}
	}
	if opts.EventProcessors == nil {
		opts.EventProcessors = DefaultEventProcessors(opts.RawIDPrefix)
	}
	if opts.ParticipantProcessors == nil {
		opts.ParticipantProcessors = DefaultParticipantProcessors()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	o := &Orchestrator{
		store:     store,
		actions:   actions,
		opts:      opts,
		log:       opts.Logger,
		sequencer: opts.Sequencer,
		byEvent:   make(map[telephony.EventType]EventProcessor),
		byAction:  make(map[Action]ParticipantProcessor),
		metrics:   opts.Metrics,
		journal:   opts.Journal,
	}

	for _, p := range opts.EventProcessors {
		for _, t := range p.Types() {
			if _, dup := o.byEvent[t]; dup {
				return nil, fmt.Errorf("%w: event type %s", ErrDuplicateProcessor, t)
			}
			o.byEvent[t] = p
		}
	}
	for _, a := range []Action{ActionCreateCall, ActionAddParticipant, ActionAnswer} {
		for _, p := range opts.ParticipantProcessors {
			if !p.Handles(a) {
				continue
			}
			if _, dup := o.byAction[a]; dup {
				return nil, fmt.Errorf("%w: action %s", ErrDuplicateProcessor, a)
			}
			o.byAction[a] = p
		}
	}
	return o, nil
}

// logFor prefers the request-scoped logger carried by ctx.
func (o *Orchestrator) logFor(ctx context.Context) *slog.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return o.log
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get returns the current record.
func (o *Orchestrator) Get(ctx context.Context, id string) (calls.CallRecord, error) {
	return o.store.Get(ctx, id)
}

// Delete removes a record. Live provider legs are left alone.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	return o.store.Delete(ctx, id)
}

// Provision stores a new record and, when start is set, runs the sequencer so
// the first outbound leg is dialed right away.
func (o *Orchestrator) Provision(ctx context.Context, rec calls.CallRecord, start bool) (calls.CallRecord, error) {
	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordingState == "" {
		rec.RecordingState = calls.RecordingStateNone
	}
	for i := range rec.Participants {
		p := &rec.Participants[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = calls.StatusNone
		}
	}

	created, err := o.store.Create(ctx, rec)
	if err != nil {
		return calls.CallRecord{}, err
	}
	o.logFor(ctx).Info("call record provisioned", "record_id", created.ID, "participants", len(created.Participants))
	if !start {
		return created, nil
	}

	if err := o.Sequence(ctx, created.ID); err != nil {
		o.logFor(ctx).Warn("initial sequencing failed", "record_id", created.ID, "err", err)
	}
	return o.store.Get(ctx, created.ID)
}

// Reconcile re-runs the unblocking rule and the sequencer. It is the manual
// repair for a record whose provider action succeeded but whose commit was lost.
func (o *Orchestrator) Reconcile(ctx context.Context, id string) (calls.CallRecord, error) {
	if _, err := o.store.Get(ctx, id); err != nil {
		return calls.CallRecord{}, err
	}
	err := errors.Join(o.unblock(ctx, id), o.Sequence(ctx, id))
	rec, gerr := o.store.Get(ctx, id)
	if gerr != nil {
		return calls.CallRecord{}, gerr
	}
	return rec, err
}

// Commit applies mutate under compare-and-swap.
func (o *Orchestrator) Commit(ctx context.Context, id string, mutate func(rec *calls.CallRecord) error) (calls.CallRecord, error) {
	return calls.Update(ctx, o.store, id, calls.UpdateOptions{
		MaxAttempts: o.opts.MaxUpdateAttempts,
		OnConflict: func(attempt int) {
			o.metrics.StoreConflict()
			o.logFor(ctx).Debug("store conflict, recomputing", "record_id", id, "attempt", attempt)
		},
	}, mutate)
}

// ActionCall identifies one provider command for retries, journaling and metrics.
type ActionCall struct {
	RecordID      string
	ParticipantID string
	Action        string
}

// Retry runs fn, retrying in-flight rejections after a fixed delay. The
// final error, if any, is returned unchanged so callers can Classify it.
func (o *Orchestrator) Retry(ctx context.Context, call ActionCall, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || telephony.Classify(err) != telephony.KindTransient || attempt >= o.opts.RetryAttempts {
			break
		}
		o.metrics.ProviderRetry(call.Action)
		o.logFor(ctx).Debug("provider operation in flight, retrying",
			"record_id", call.RecordID, "participant_id", call.ParticipantID,
			"action", call.Action, "attempt", attempt+1)
		if serr := o.opts.Sleep(ctx, o.opts.RetryDelay); serr != nil {
			err = serr
			break
		}
	}

	if err == nil {
		o.metrics.ProviderAction(call.Action, "success")
		o.record(ctx, audit.Event{
			CallID: call.RecordID, ParticipantID: call.ParticipantID,
			Type: audit.EventTypeActionSucceeded, Action: call.Action,
		})
		return nil
	}

	kind := telephony.Classify(err)
	o.metrics.ProviderAction(call.Action, kind.String())
	typ := audit.EventTypeActionFailed
	if kind == telephony.KindAlreadySatisfied {
		typ = audit.EventTypeActionSucceeded
	}
	o.record(ctx, audit.Event{
		CallID: call.RecordID, ParticipantID: call.ParticipantID,
		Type: typ, Action: call.Action, Message: err.Error(),
	})
	return err
}

func (o *Orchestrator) record(ctx context.Context, e audit.Event) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Append(ctx, e); err != nil {
		o.logFor(ctx).Warn("journal append failed", "record_id", e.CallID, "type", e.Type, "err", err)
	}
}

// ActionError is a participant action that ended in a terminal failure. The
// participant has already been marked Failed; sequencing may continue.
type ActionError struct {
	ParticipantID string
	Action        Action
	Err           error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s for participant %s: %v", e.Action, e.ParticipantID, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// FailParticipant marks p Failed, provided nothing moved it since the action
// was chosen, and returns an *ActionError describing the failure.
func (o *Orchestrator) FailParticipant(ctx context.Context, recordID string, p calls.Participant, action Action, cause error) error {
	_, err := o.Commit(ctx, recordID, func(rec *calls.CallRecord) error {
		cur := rec.Participant(p.ID)
		if cur == nil || cur.Status != p.Status {
			return calls.ErrNoChange
		}
		cur.Status = calls.StatusFailed
		rec.ErrorMessage = cause.Error()
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark participant %s failed: %w", p.ID, err)
	}
	o.logFor(ctx).Error("participant action failed", "record_id", recordID, "participant_id", p.ID, "action", action, "err", cause)
	return &ActionError{ParticipantID: p.ID, Action: action, Err: cause}
}

// EndCall forces every participant to Disconnected after the provider
// reported that the anchor call no longer exists.
func (o *Orchestrator) EndCall(ctx context.Context, recordID string, cause error) error {
	_, err := o.Commit(ctx, recordID, func(rec *calls.CallRecord) error {
		if rec.DisconnectAll() == 0 {
			return calls.ErrNoChange
		}
		rec.ErrorMessage = cause.Error()
		return nil
	})
	if err != nil {
		return fmt.Errorf("end call %s: %w", recordID, err)
	}
	o.logFor(ctx).Info("anchor call ended, participants disconnected", "record_id", recordID, "cause", cause)
	return nil
}

// ApplySynthetic runs an event the provider will never deliver, e.g. the
// completion of an add that was rejected because the party is already in the call.
func (o *Orchestrator) ApplySynthetic(ctx context.Context, recordID string, ev telephony.CallEvent) error {
	res := o.apply(ctx, recordID, ev, false)
	if res.Outcome == OutcomeFailed {
		return errors.New(res.Reason)
	}
	return nil
}

func (o *Orchestrator) Actions() telephony.ActionClient { return o.actions }

func (o *Orchestrator) CallbackURL(recordID string) string { return o.opts.CallbackURL(recordID) }
