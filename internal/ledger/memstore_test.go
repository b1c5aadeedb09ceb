package ledger

import (
	"context"
	"testing"
	"time"

	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
)

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := gamification.NewUserProgress("u1", time.Now())
	if err := s.Register(ctx, p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(ctx, p); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate err=%v", err)
	}
	p.Points = 999

	got, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Points != 0 {
		t.Fatalf("caller mutation leaked into store")
	}
	got.CategoryCounts["glass_bottle"] = 3
	again, _ := s.Load(ctx, "u1")
	if len(again.CategoryCounts) != 0 {
		t.Fatalf("loaded copy shares maps with store")
	}
	if _, err := s.Load(ctx, "nobody"); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing err=%v", err)
	}
}

func TestMemoryStoreMutate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Register(ctx, gamification.NewUserProgress("u1", time.Now()))

	for i := 1; i <= 3; i++ {
		_, _, err := s.Mutate(ctx, "u1", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
			p.EventSeq++
			p.Points += 5
			return []gamification.DisposalEvent{{UserID: p.UserID, Seq: p.EventSeq, Kind: gamification.EventDisposal, PointsAwarded: 5}}, nil
		})
		if err != nil {
			t.Fatalf("Mutate %d: %v", i, err)
		}
	}
	p, _ := s.Load(ctx, "u1")
	if p.Points != 15 || p.Version != 3 || p.EventSeq != 3 {
		t.Fatalf("record=%+v", p)
	}
	evs, _ := s.Events(ctx, "u1", 2)
	if len(evs) != 2 || evs[0].Seq != 3 || evs[1].Seq != 2 {
		t.Fatalf("events=%+v", evs)
	}

	// A reused sequence number rejects the whole write.
	_, _, err := s.Mutate(ctx, "u1", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
		p.Points += 100
		return []gamification.DisposalEvent{{UserID: p.UserID, Seq: 2, PointsAwarded: 100}}, nil
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("dup seq err=%v", err)
	}
	if p, _ := s.Load(ctx, "u1"); p.Points != 15 {
		t.Fatalf("failed write committed: %d", p.Points)
	}

	_, _, err = s.Mutate(ctx, "u1", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
		p.UserID = "u2"
		return nil, nil
	})
	if !domainagg.IsCode(err, domainagg.CodeInvariantViolation) {
		t.Fatalf("user id change err=%v", err)
	}
}
