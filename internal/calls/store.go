package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("calls: record not found")
	ErrVersionConflict     = errors.New("calls: version conflict")
	ErrAlreadyExists       = errors.New("calls: record already exists")
	ErrConcurrencyConflict = errors.New("calls: concurrency conflict")
	ErrInvalidRecord       = errors.New("calls: invalid record")

	// ErrNoChange is returned by an Update mutator to skip the write.
	ErrNoChange = errors.New("calls: no change")
)

// Store is the persistence contract for call records.
//
// Rules:
// - Stores assign Version (1 on Create, +1 on every update) and UpdatedAt.
// - UpdateIfVersion must be atomic: a stale version yields ErrVersionConflict and nothing is written.
// - Records are only removed through Delete; participants are never removed.
type Store interface {
	Get(ctx context.Context, id string) (CallRecord, error)
	Create(ctx context.Context, rec CallRecord) (CallRecord, error)
	UpdateIfVersion(ctx context.Context, id string, version int64, rec CallRecord) (CallRecord, error)
	Delete(ctx context.Context, id string) error

	// ListListening returns records listening on the given conference number.
	ListListening(ctx context.Context, conferenceNumber string) ([]CallRecord, error)
}

// UpdateOptions bounds the compare-and-swap loop.
type UpdateOptions struct {
	MaxAttempts int
	// OnConflict is called after every rejected attempt (metrics hook).
	OnConflict func(attempt int)
}

const defaultMaxAttempts = 10

// Update runs read -> mutate -> compare-and-swap until it succeeds, the mutator
// declines with ErrNoChange, or MaxAttempts conflicts have been seen.
//
// mutate receives a fresh clone on every attempt and must be a pure function of it;
// it is re-run from scratch after a conflict.
func Update(ctx context.Context, s Store, id string, opts UpdateOptions, mutate func(rec *CallRecord) error) (CallRecord, error) {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		cur, err := s.Get(ctx, id)
		if err != nil {
			return CallRecord{}, err
		}

		next := cur.Clone()
		if err := mutate(&next); err != nil {
			if errors.Is(err, ErrNoChange) {
				return cur, nil
			}
			return cur, err
		}

		saved, err := s.UpdateIfVersion(ctx, id, cur.Version, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return cur, err
		}
		if opts.OnConflict != nil {
			opts.OnConflict(attempt)
		}
		if err := ctx.Err(); err != nil {
			return cur, err
		}
	}
	return CallRecord{}, fmt.Errorf("%w: record %s after %d attempts", ErrConcurrencyConflict, id, attempts)
}

// Validate checks a record before it is created.
func (r CallRecord) Validate() error {
	var problems []string
	if strings.TrimSpace(r.ID) == "" {
		problems = append(problems, "id is required")
	}
	if strings.TrimSpace(r.ConferencePhoneNumber) == "" {
		problems = append(problems, "conference_phone_number is required")
	}
	seen := make(map[string]struct{}, len(r.Participants))
	for i, p := range r.Participants {
		if p.ID == "" {
			problems = append(problems, fmt.Sprintf("participants[%d]: id is required", i))
		} else if _, dup := seen[p.ID]; dup {
			problems = append(problems, fmt.Sprintf("participants[%d]: duplicate id %s", i, p.ID))
		}
		seen[p.ID] = struct{}{}
		if p.PhoneNumber == "" {
			problems = append(problems, fmt.Sprintf("participants[%d]: phone_number is required", i))
		}
		if !p.Direction.Valid() {
			problems = append(problems, fmt.Sprintf("participants[%d]: unknown direction %q", i, p.Direction))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
}
