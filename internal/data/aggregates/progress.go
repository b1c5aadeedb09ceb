package aggregates

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
	"github.com/yungbote/recycleright-backend/internal/platform/dbctx"
)

type ProgressAggregateDeps struct {
	Base BaseDeps
}

type progressAggregate struct {
	deps ProgressAggregateDeps
}

func NewProgressAggregate(deps ProgressAggregateDeps) domainagg.ProgressAggregate {
	deps.Base = deps.Base.withDefaults()
	return &progressAggregate{deps: deps}
}

func (a *progressAggregate) Contract() domainagg.Contract {
	return domainagg.ProgressAggregateContract
}

func (a *progressAggregate) Register(ctx context.Context, p *gamification.UserProgress) error {
	const op = "Gamification.Progress.Register"
	if p == nil || strings.TrimSpace(p.UserID) == "" {
		return MapError(op, ValidationError("user id is required"))
	}
	return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec := p.Clone()
		rec.Normalize()
		return dbc.DB(a.deps.Base.DB).Create(rec).Error
	})
}

func (a *progressAggregate) Load(ctx context.Context, userID string) (*gamification.UserProgress, error) {
	const op = "Gamification.Progress.Load"
	var p gamification.UserProgress
	if err := a.deps.Base.DB.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return nil, MapError(op, err)
	}
	p.Normalize()
	return &p, nil
}

func (a *progressAggregate) Mutate(ctx context.Context, userID string, fn domainagg.MutateFunc) (*gamification.UserProgress, []gamification.DisposalEvent, error) {
	const op = "Gamification.Progress.Mutate"
	if fn == nil {
		return nil, nil, MapError(op, ValidationError("mutate func is required"))
	}
	var (
		out    *gamification.UserProgress
		events []gamification.DisposalEvent
	)
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		tx := dbc.DB(a.deps.Base.DB)
		q := tx
		// sqlite serializes writers already and has no row locks.
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var cur gamification.UserProgress
		if err := q.Where("user_id = ?", userID).Take(&cur).Error; err != nil {
			return err
		}
		cur.Normalize()

		next := cur.Clone()
		evs, err := fn(next)
		if err != nil {
			return err
		}
		if next.UserID != cur.UserID {
			return InvariantError("mutation changed the user id")
		}
		next.Version = cur.Version + 1

		updates, err := progressColumns(next)
		if err != nil {
			return err
		}
		ok, err := a.deps.Base.CASGuard.UpdateByVersion(dbc, next.TableName(), "user_id", userID, cur.Version, updates)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "user progress changed concurrently"); err != nil {
			return err
		}
		if len(evs) > 0 {
			if err := tx.Create(&evs).Error; err != nil {
				return err
			}
		}
		out, events = next, evs
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, events, nil
}

func (a *progressAggregate) Events(ctx context.Context, userID string, limit int) ([]gamification.DisposalEvent, error) {
	const op = "Gamification.Progress.Events"
	q := a.deps.Base.DB.WithContext(ctx).Where("user_id = ?", userID).Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []gamification.DisposalEvent
	if err := q.Find(&out).Error; err != nil {
		return nil, MapError(op, err)
	}
	return out, nil
}

func (a *progressAggregate) Standings(ctx context.Context) ([]domainagg.Standing, error) {
	const op = "Gamification.Progress.Standings"
	var out []domainagg.Standing
	err := a.deps.Base.DB.WithContext(ctx).
		Model(&gamification.UserProgress{}).
		Select("user_id", "points", "level", "created_at").
		Find(&out).Error
	if err != nil {
		return nil, MapError(op, err)
	}
	return out, nil
}

// progressColumns flattens p for a map update. Table updates bypass gorm's
// field serializers, so the JSON columns are encoded here.
func progressColumns(p *gamification.UserProgress) (map[string]any, error) {
	counts, err := json.Marshal(p.CategoryCounts)
	if err != nil {
		return nil, err
	}
	unlocked, err := json.Marshal(p.AchievementsUnlocked)
	if err != nil {
		return nil, err
	}
	challenges, err := json.Marshal(p.ChallengeProgress)
	if err != nil {
		return nil, err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	return map[string]any{
		"points":                p.Points,
		"level":                 p.Level,
		"level_name":            p.LevelName,
		"category_counts":       string(counts),
		"total_scans":           p.TotalScans,
		"recyclable_scans":      p.RecyclableScans,
		"high_confidence_scans": p.HighConfidenceScans,
		"streak_days":           p.StreakDays,
		"last_scan_date":        p.LastScanDate,
		"achievements_unlocked": string(unlocked),
		"challenge_progress":    string(challenges),
		"challenges_completed":  p.ChallengesCompleted,
		"daily_points_date":     p.DailyPointsDate,
		"daily_points_awarded":  p.DailyPointsAwarded,
		"event_seq":             p.EventSeq,
		"version":               p.Version,
		"updated_at":            p.UpdatedAt,
	}, nil
}

