package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for journal entries.
//
// It MUST be append-only. There is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, callID string) ([]Event, error)
}

// Service fills identifiers and timestamps and validates entries before
// handing them to the repository.
//
// Callers should treat journal writes as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrInvalidEvent      = errors.New("audit: invalid event")
	errRepoNotConfigured = errors.New("audit: repository not configured")
)

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errRepoNotConfigured
	}
	if e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// List returns the journal of one call, oldest first.
func (s *Service) List(ctx context.Context, callID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errRepoNotConfigured
	}
	return s.repo.List(ctx, callID)
}

// LogAdminAction records an operator command against a call.
func (s *Service) LogAdminAction(ctx context.Context, callID, actor, message string) error {
	return s.Append(ctx, Event{
		CallID:  callID,
		Type:    EventTypeAdminAction,
		Action:  actor,
		Message: message,
	})
}
