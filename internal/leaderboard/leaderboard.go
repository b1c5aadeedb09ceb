package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

var ErrUserNotFound = errors.New("user not found")

const (
	DefaultLimit = 10
	MaxLimit     = 100

	// loadTimeout bounds a shared standings load, which outlives any one caller.
	loadTimeout = 10 * time.Second
)

// StandingsSource lists every user's current score.
type StandingsSource interface {
	Standings(ctx context.Context) ([]domainagg.Standing, error)
}

type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int    `json:"points"`
	Level  int    `json:"level"`
}

type RankInfo struct {
	UserID           string `json:"user_id"`
	Rank             int    `json:"rank"`
	TotalUsers       int    `json:"total_users"`
	Points           int    `json:"points"`
	Level            int    `json:"level"`
	PointsToNextRank int    `json:"points_to_next_rank"`
}

// Board ranks users from the store on every read. A read only joins a load
// that started after the read arrived, so it always sees every write committed
// before it. Nothing is kept between calls.
type Board struct {
	log   *logger.Logger
	src   StandingsSource
	group singleflight.Group

	mu  sync.Mutex
	gen uint64
}

func New(log *logger.Logger, src StandingsSource) (*Board, error) {
	if log == nil || src == nil {
		return nil, fmt.Errorf("leaderboard: logger and source required")
	}
	return &Board{log: log.With("service", "Leaderboard"), src: src}, nil
}

// Sort orders standings by points desc, then registration time, then user id.
func Sort(s []domainagg.Standing) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.UserID < b.UserID
	})
}

// arrive returns the generation of the next load to start. Loads bump the
// generation before reading, so later arrivals cannot join them.
func (b *Board) arrive() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// claim marks generation g as started. It is a no-op when a later caller of
// the same key already did.
func (b *Board) claim(g uint64) {
	b.mu.Lock()
	if b.gen == g {
		b.gen++
	}
	b.mu.Unlock()
}

func (b *Board) ranked(ctx context.Context) ([]domainagg.Standing, error) {
	start := time.Now()
	g := b.arrive()
	ch := b.group.DoChan("standings:"+strconv.FormatUint(g, 10), func() (interface{}, error) {
		b.claim(g)
		// The load is shared, so one caller giving up must not fail the rest.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		rows, err := b.src.Standings(lctx)
		if err != nil {
			return nil, err
		}
		Sort(rows)
		return rows, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	observability.Current().ObserveLeaderboard(time.Since(start), res.Shared)
	if res.Err != nil {
		b.log.Warn("load standings failed", "error", res.Err)
		return nil, res.Err
	}
	// Callers index into the shared slice but never modify it.
	return res.Val.([]domainagg.Standing), nil
}

// Top returns the first limit entries, clamped to [1, MaxLimit].
func (b *Board) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	rows, err := b.ranked(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) < limit {
		limit = len(rows)
	}
	out := make([]Entry, 0, limit)
	for i, r := range rows[:limit] {
		out = append(out, Entry{Rank: i + 1, UserID: r.UserID, Points: r.Points, Level: r.Level})
	}
	return out, nil
}

// Rank places one user. PointsToNextRank is what it takes to pass the user
// directly above, or 0 at the top.
func (b *Board) Rank(ctx context.Context, userID string) (RankInfo, error) {
	userID = strings.TrimSpace(userID)
	rows, err := b.ranked(ctx)
	if err != nil {
		return RankInfo{}, err
	}
	for i, r := range rows {
		if r.UserID != userID {
			continue
		}
		info := RankInfo{
			UserID:     userID,
			Rank:       i + 1,
			TotalUsers: len(rows),
			Points:     r.Points,
			Level:      r.Level,
		}
		if i > 0 {
			info.PointsToNextRank = rows[i-1].Points - r.Points + 1
		}
		return info, nil
	}
	return RankInfo{}, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
}
