package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
)

// MemoryStore is a process-local ProgressAggregate. Records and events are
// copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*gamification.UserProgress
	events  map[string][]gamification.DisposalEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*gamification.UserProgress{},
		events:  map[string][]gamification.DisposalEvent{},
	}
}

var _ domainagg.ProgressAggregate = (*MemoryStore)(nil)

func (s *MemoryStore) Contract() domainagg.Contract {
	return domainagg.ProgressAggregateContract
}

func (s *MemoryStore) Register(ctx context.Context, p *gamification.UserProgress) error {
	const op = "Gamification.Progress.Register"
	if p == nil || strings.TrimSpace(p.UserID) == "" {
		return domainagg.NewError(domainagg.CodeValidation, op, "user id is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[p.UserID]; ok {
		return domainagg.Conflict(op, fmt.Sprintf("user %q already registered", p.UserID))
	}
	rec := p.Clone()
	rec.Normalize()
	s.records[p.UserID] = rec
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (*gamification.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, domainagg.NotFound("Gamification.Progress.Load", fmt.Sprintf("user %q", userID))
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Mutate(ctx context.Context, userID string, fn domainagg.MutateFunc) (*gamification.UserProgress, []gamification.DisposalEvent, error) {
	const op = "Gamification.Progress.Mutate"
	if err := ctx.Err(); err != nil {
		return nil, nil, domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[userID]
	if !ok {
		return nil, nil, domainagg.NotFound(op, fmt.Sprintf("user %q", userID))
	}
	next := cur.Clone()
	events, err := fn(next)
	if err != nil {
		return nil, nil, err
	}
	if next.UserID != cur.UserID {
		return nil, nil, domainagg.NewError(domainagg.CodeInvariantViolation, op, "mutation changed the user id", nil)
	}
	seen := make(map[int64]bool, len(s.events[userID]))
	for _, ev := range s.events[userID] {
		seen[ev.Seq] = true
	}
	for _, ev := range events {
		if seen[ev.Seq] {
			return nil, nil, domainagg.Conflict(op, fmt.Sprintf("event seq %d already recorded", ev.Seq))
		}
		seen[ev.Seq] = true
	}
	next.Version = cur.Version + 1
	s.records[userID] = next
	s.events[userID] = append(s.events[userID], copyEvents(events)...)
	return next.Clone(), copyEvents(events), nil
}

func (s *MemoryStore) Events(ctx context.Context, userID string, limit int) ([]gamification.DisposalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.events[userID]
	out := make([]gamification.DisposalEvent, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, copyEvent(all[i]))
	}
	return out, nil
}

func (s *MemoryStore) Standings(ctx context.Context) ([]domainagg.Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domainagg.Standing, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, domainagg.Standing{UserID: r.UserID, Points: r.Points, Level: r.Level, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func copyEvents(in []gamification.DisposalEvent) []gamification.DisposalEvent {
	out := make([]gamification.DisposalEvent, len(in))
	for i, ev := range in {
		out[i] = copyEvent(ev)
	}
	return out
}

func copyEvent(ev gamification.DisposalEvent) gamification.DisposalEvent {
	if ev.Metadata != nil {
		md := make(map[string]any, len(ev.Metadata))
		for k, v := range ev.Metadata {
			md[k] = v
		}
		ev.Metadata = md
	}
	return ev
}
