package aggregates

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/recycleright-backend/internal/data/db"
	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(logger.Nop(), db.Config{Driver: db.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "progress.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func newTestAggregate(t *testing.T) (domainagg.ProgressAggregate, *spyHooks) {
	hooks := &spyHooks{}
	return NewProgressAggregate(ProgressAggregateDeps{Base: BaseDeps{DB: testDB(t), Hooks: hooks}}), hooks
}

func disposal(userID string, seq int64, points int, at time.Time) gamification.DisposalEvent {
	return gamification.DisposalEvent{
		ID:            uuid.New(),
		UserID:        userID,
		Seq:           seq,
		Kind:          gamification.EventDisposal,
		Category:      "paper",
		PointsAwarded: points,
		Metadata:      map[string]any{"recyclable": true},
		Timestamp:     at,
	}
}

func TestProgressRegisterAndLoad(t *testing.T) {
	agg, _ := newTestAggregate(t)
	ctx := context.Background()
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	if err := agg.Register(ctx, gamification.NewUserProgress("alice", created)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := agg.Register(ctx, gamification.NewUserProgress("alice", created))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate register: %v", err)
	}
	if err := agg.Register(ctx, gamification.NewUserProgress(" ", created)); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("blank id: %v", err)
	}

	got, err := agg.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Level != 1 || got.CategoryCounts == nil || !got.CreatedAt.Equal(created) {
		t.Fatalf("loaded %+v", got)
	}
	if _, err := agg.Load(ctx, "bob"); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing user: %v", err)
	}
}

func TestProgressMutatePersistsRecordAndEvents(t *testing.T) {
	agg, hooks := newTestAggregate(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	if err := agg.Register(ctx, gamification.NewUserProgress("alice", now)); err != nil {
		t.Fatal(err)
	}

	updated, events, err := agg.Mutate(ctx, "alice", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
		p.Points += 15
		p.TotalScans++
		p.CategoryCounts["paper"]++
		p.AddAchievement("first_scan")
		at := now
		p.ChallengeProgress["daily_paper_protector@2026-10-15"] = gamification.ChallengeState{Progress: 5, CompletedAt: &at}
		p.EventSeq = 1
		p.UpdatedAt = now
		return []gamification.DisposalEvent{disposal(p.UserID, 1, 15, now)}, nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if updated.Version != 1 || len(events) != 1 {
		t.Fatalf("version=%d events=%d", updated.Version, len(events))
	}

	loaded, err := agg.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	opts := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
	if diff := cmp.Diff(updated, loaded, opts); diff != "" {
		t.Fatalf("stored record differs (-mutated +loaded):\n%s", diff)
	}

	stored, err := agg.Events(ctx, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].PointsAwarded != 15 || stored[0].Metadata["recyclable"] != true {
		t.Fatalf("events=%+v", stored)
	}
	if len(hooks.Operations) != 2 || hooks.Operations[1].Status != "success" {
		t.Fatalf("operations=%+v", hooks.Operations)
	}
}

func TestProgressMutateFailsClosed(t *testing.T) {
	agg, _ := newTestAggregate(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := agg.Register(ctx, gamification.NewUserProgress("alice", now)); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("rule evaluation failed")
	_, _, err := agg.Mutate(ctx, "alice", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
		p.Points = 999
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}

	// A duplicate sequence number fails after the record update; the
	// transaction must roll both back.
	if _, _, err := agg.Mutate(ctx, "alice", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
		p.Points = 10
		return []gamification.DisposalEvent{disposal("alice", 1, 10, now)}, nil
	}); err != nil {
		t.Fatal(err)
	}
	_, _, err = agg.Mutate(ctx, "alice", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
		p.Points = 20
		return []gamification.DisposalEvent{disposal("alice", 1, 10, now)}, nil
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate seq: %v", err)
	}

	got, _ := agg.Load(ctx, "alice")
	if got.Points != 10 || got.Version != 1 {
		t.Fatalf("partial commit: points=%d version=%d", got.Points, got.Version)
	}
	if _, _, err := agg.Mutate(ctx, "nobody", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
		return nil, nil
	}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing user: %v", err)
	}
}

func TestProgressMutateSerializesWriters(t *testing.T) {
	agg, _ := newTestAggregate(t)
	ctx := context.Background()
	if err := agg.Register(ctx, gamification.NewUserProgress("alice", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := agg.Mutate(ctx, "alice", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
				p.Points++
				return nil, nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	got, err := agg.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Points != succeeded || got.Version != succeeded {
		t.Fatalf("points=%d version=%d succeeded=%d", got.Points, got.Version, succeeded)
	}
}

func TestProgressEventsAndStandings(t *testing.T) {
	agg, _ := newTestAggregate(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"alice", "bob"} {
		if err := agg.Register(ctx, gamification.NewUserProgress(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}
	for seq := int64(1); seq <= 3; seq++ {
		s := seq
		if _, _, err := agg.Mutate(ctx, "alice", func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
			p.Points += 5
			p.EventSeq = s
			return []gamification.DisposalEvent{disposal("alice", s, 5, base)}, nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	evs, err := agg.Events(ctx, "alice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Seq != 3 || evs[1].Seq != 2 {
		t.Fatalf("events=%+v", evs)
	}

	standings, err := agg.Standings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]domainagg.Standing{}
	for _, s := range standings {
		byID[s.UserID] = s
	}
	if len(byID) != 2 || byID["alice"].Points != 15 || byID["bob"].Points != 0 || !byID["bob"].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("standings=%+v", standings)
	}
}
