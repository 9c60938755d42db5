package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store useful for tests and single-instance local runs.
// Concurrent webhook deliveries inside one process still race through UpdateIfVersion.

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]CallRecord
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]CallRecord), clock: time.Now}
}

// SetClock replaces the time source used for CreatedAt and UpdatedAt.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryStore) Get(ctx context.Context, id string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, rec CallRecord) (CallRecord, error) {
	if err := rec.Validate(); err != nil {
		return CallRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return CallRecord{}, ErrAlreadyExists
	}
	now := s.clock().UTC()
	rec = rec.Clone()
	rec.Version = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	return rec.Clone(), nil
}

func (s *MemoryStore) UpdateIfVersion(ctx context.Context, id string, version int64, rec CallRecord) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	if cur.Version != version {
		return CallRecord{}, ErrVersionConflict
	}
	rec = rec.Clone()
	rec.ID = id
	rec.CreatedAt = cur.CreatedAt
	rec.Version = version + 1
	rec.UpdatedAt = s.clock().UTC()
	s.records[id] = rec
	return rec.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) ListListening(ctx context.Context, conferenceNumber string) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CallRecord
	for _, rec := range s.records {
		if rec.Listening && rec.ConferencePhoneNumber == conferenceNumber {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
