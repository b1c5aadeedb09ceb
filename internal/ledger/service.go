package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/recycleright-backend/internal/achievement"
	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/ctxutil"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

type Config struct {
	PointsPerScan           int
	PointsProperDisposal    int
	MaxDailyPoints          int
	HighConfidenceThreshold float64
	Levels                  LevelTable
	// Location decides where the day boundary falls for caps and streaks.
	Location       *time.Location
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HighConfidenceThreshold <= 0 || c.HighConfidenceThreshold > 1 {
		c.HighConfidenceThreshold = 0.95
	}
	if len(c.Levels) == 0 {
		c.Levels, _ = ParseLevels(DefaultLevels)
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
	return c
}

// Publisher fans committed ledger changes out to other processes.
type Publisher interface {
	Publish(ctx context.Context, userID string, payload any) error
}

type Deps struct {
	Log       *logger.Logger
	Store     domainagg.ProgressAggregate
	Taxonomy  *taxonomy.Taxonomy
	Rules     *achievement.Engine
	Publisher Publisher
	Now       func() time.Time
}

// Service is the scoring ledger. Writes for one user are serialized in process
// and guarded by the store's version check across processes.
type Service struct {
	log   *logger.Logger
	cfg   Config
	store domainagg.ProgressAggregate
	tax   *taxonomy.Taxonomy
	rules *achievement.Engine
	pub   Publisher
	now   func() time.Time
	locks *keyLock
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Store == nil || deps.Taxonomy == nil || deps.Rules == nil {
		return nil, fmt.Errorf("ledger: store, taxonomy and rules required")
	}
	if cfg.PointsPerScan < 0 || cfg.PointsProperDisposal < 0 || cfg.MaxDailyPoints < 0 {
		return nil, fmt.Errorf("%w: point values must be non-negative", ErrInvalidArgument)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		log:   deps.Log.With("service", "ScoringLedger"),
		cfg:   cfg.withDefaults(),
		store: deps.Store,
		tax:   deps.Taxonomy,
		rules: deps.Rules,
		pub:   deps.Publisher,
		now:   deps.Now,
		locks: newKeyLock(),
	}, nil
}

func (s *Service) Levels() LevelTable { return s.cfg.Levels }

func (s *Service) Rules() *achievement.Engine { return s.rules }

func (s *Service) Now() time.Time { return s.now() }

type ConfirmRequest struct {
	UserID     string
	Category   string
	Confidence float64
	Source     waste.Source
}

type ConfirmResult struct {
	PointsAwarded       int                          `json:"points_awarded"`
	RewardPoints        int                          `json:"reward_points"`
	NewTotal            int                          `json:"new_total"`
	NewLevel            int                          `json:"new_level"`
	LevelName           string                       `json:"level_name"`
	LeveledUp           bool                         `json:"leveled_up"`
	Streak              int                          `json:"streak"`
	DailyRemaining      int                          `json:"daily_remaining"`
	NewAchievements     []achievement.Unlock         `json:"new_achievements"`
	CompletedChallenges []achievement.Unlock         `json:"completed_challenges"`
	Event               gamification.DisposalEvent   `json:"event"`
	RewardEvents        []gamification.DisposalEvent `json:"reward_events,omitempty"`
}

// Notification is what gets published after a committed ledger change.
type Notification struct {
	Type       string               `json:"type"`
	UserID     string               `json:"user_id"`
	Points     int                  `json:"points"`
	Delta      int                  `json:"delta"`
	Level      int                  `json:"level"`
	LeveledUp  bool                 `json:"leveled_up,omitempty"`
	Unlocks    []achievement.Unlock `json:"unlocks,omitempty"`
	Seq        int64                `json:"seq"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// EventName matches the realtime event names for ledger changes.
func (n Notification) EventName() string { return "ledger." + n.Type }

// ConfirmDisposal credits a confirmed disposal and folds in any achievement
// and challenge rewards it triggers, all in one store write.
func (s *Service) ConfirmDisposal(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "ledger.ConfirmDisposal")
	defer span.End()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	cat, ok := s.tax.Lookup(req.Category)
	if !ok {
		return ConfirmResult{}, fmt.Errorf("%w: %q", ErrUnknownCategory, req.Category)
	}
	if req.Confidence < 0 || req.Confidence > 1 || req.Confidence != req.Confidence {
		return ConfirmResult{}, fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidArgument)
	}
	if req.Source != "" && !req.Source.Valid() {
		return ConfirmResult{}, fmt.Errorf("%w: unknown source %q", ErrInvalidArgument, req.Source)
	}
	span.SetAttributes(attribute.String("ledger.category", cat.ID))

	unlock := s.locks.Lock(userID)
	defer unlock()

	var (
		res     ConfirmResult
		capped  bool
		updated *gamification.UserProgress
	)
	err := s.withRetry(ctx, "confirm", func() error {
		res, capped = ConfirmResult{}, false
		var err error
		updated, _, err = s.store.Mutate(ctx, userID, func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
			var evs []gamification.DisposalEvent
			res, capped, evs = s.applyDisposal(p, cat, req)
			return evs, nil
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return ConfirmResult{}, s.mapStoreError(userID, err)
	}

	metrics := observability.Current()
	metrics.AddPoints(string(gamification.EventDisposal), res.PointsAwarded)
	if capped {
		metrics.IncDailyCapHit()
	}
	for _, u := range res.CompletedChallenges {
		metrics.AddPoints(string(gamification.EventChallenge), u.RewardPoints)
		metrics.IncChallengeCompleted(u.ID)
	}
	for _, u := range res.NewAchievements {
		metrics.AddPoints(string(gamification.EventAchievement), u.RewardPoints)
		metrics.IncAchievementUnlocked(u.ID)
	}

	s.log.With(ctxutil.LogFields(ctx)...).Info("disposal confirmed",
		"user_id", userID,
		"category", cat.ID,
		"points_awarded", res.PointsAwarded,
		"reward_points", res.RewardPoints,
		"new_total", res.NewTotal,
		"level", res.NewLevel,
		"daily_capped", capped,
	)
	s.publish(ctx, Notification{
		Type:       "disposal",
		UserID:     userID,
		Points:     updated.Points,
		Delta:      res.PointsAwarded + res.RewardPoints,
		Level:      updated.Level,
		LeveledUp:  res.LeveledUp,
		Unlocks:    append(append([]achievement.Unlock(nil), res.CompletedChallenges...), res.NewAchievements...),
		Seq:        updated.EventSeq,
		OccurredAt: res.Event.Timestamp,
	})
	return res, nil
}

// applyDisposal mutates p for one disposal. It runs inside the store write and
// may run twice when the first write is retried.
func (s *Service) applyDisposal(p *gamification.UserProgress, cat taxonomy.Category, req ConfirmRequest) (ConfirmResult, bool, []gamification.DisposalEvent) {
	now := s.now()
	today := LocalDate(now, s.cfg.Location)
	oldTotal := p.Points
	oldLevel := s.cfg.Levels.For(oldTotal).Number

	if p.DailyPointsDate != today {
		p.DailyPointsDate = today
		p.DailyPointsAwarded = 0
	}
	bonus := 0
	if cat.Recyclable {
		bonus = s.cfg.PointsProperDisposal
	}
	award, capped := ComputeAward(s.cfg.PointsPerScan, bonus, s.cfg.MaxDailyPoints, p.DailyPointsAwarded)
	p.DailyPointsAwarded += award
	p.Points += award

	highConfidence := req.Confidence >= s.cfg.HighConfidenceThreshold
	p.CategoryCounts[cat.ID]++
	p.TotalScans++
	if cat.Recyclable {
		p.RecyclableScans++
	}
	if highConfidence {
		p.HighConfidenceScans++
	}
	p.StreakDays = NextStreak(p.LastScanDate, today, p.StreakDays)
	p.LastScanDate = today

	p.EventSeq++
	disposal := gamification.DisposalEvent{
		ID:               uuid.New(),
		UserID:           p.UserID,
		Seq:              p.EventSeq,
		Kind:             gamification.EventDisposal,
		Category:         cat.ID,
		PointsAwarded:    award,
		SourceConfidence: req.Confidence,
		Source:           string(req.Source),
		Metadata: map[string]any{
			"recyclable":      cat.Recyclable,
			"base_points":     s.cfg.PointsPerScan,
			"bonus_points":    bonus,
			"daily_capped":    capped,
			"high_confidence": highConfidence,
		},
		Timestamp: now,
	}
	events := []gamification.DisposalEvent{disposal}

	s.rules.AdvanceChallenges(p, s.rules.FactsFor(cat.ID, highConfidence), now)
	res := ConfirmResult{PointsAwarded: award, Event: disposal}
	for _, u := range s.rules.Evaluate(p, now) {
		if !achievement.Apply(p, u, now) {
			continue
		}
		kind := gamification.EventAchievement
		if u.Kind == achievement.KindChallenge {
			kind = gamification.EventChallenge
			res.CompletedChallenges = append(res.CompletedChallenges, u)
		} else {
			res.NewAchievements = append(res.NewAchievements, u)
		}
		p.EventSeq++
		ev := gamification.DisposalEvent{
			ID:            uuid.New(),
			UserID:        p.UserID,
			Seq:           p.EventSeq,
			Kind:          kind,
			PointsAwarded: u.RewardPoints,
			RefID:         u.Key,
			Metadata:      map[string]any{"name": u.Name},
			Timestamp:     now,
		}
		events = append(events, ev)
		res.RewardEvents = append(res.RewardEvents, ev)
		res.RewardPoints += u.RewardPoints
	}

	lvl := s.cfg.Levels.For(p.Points)
	p.Level, p.LevelName = lvl.Number, lvl.Name
	p.UpdatedAt = now

	res.NewTotal = oldTotal + res.PointsAwarded + res.RewardPoints
	res.NewLevel = lvl.Number
	res.LevelName = lvl.Name
	res.LeveledUp = lvl.Number > oldLevel
	res.Streak = p.StreakDays
	res.DailyRemaining = DailyRemaining(s.cfg.MaxDailyPoints, p.DailyPointsAwarded, p.DailyPointsDate, today)
	return res, capped, events
}

// RegisterUser creates an empty progress record.
func (s *Service) RegisterUser(ctx context.Context, userID string) (*gamification.UserProgress, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	if len(userID) > 128 {
		return nil, fmt.Errorf("%w: user_id longer than 128 characters", ErrInvalidArgument)
	}
	p := gamification.NewUserProgress(userID, s.now().UTC())
	first := s.cfg.Levels.For(0)
	p.Level, p.LevelName = first.Number, first.Name
	if err := s.store.Register(ctx, p); err != nil {
		if domainagg.IsCode(err, domainagg.CodeConflict) {
			return nil, fmt.Errorf("%w: %q", ErrUserExists, userID)
		}
		return nil, s.mapStoreError(userID, err)
	}
	s.log.Info("user registered", "user_id", userID)
	return p, nil
}

// Stats is a progress record with everything derived from it.
type Stats struct {
	*gamification.UserProgress
	NextLevel         *Level                          `json:"next_level,omitempty"`
	PointsToNextLevel int                             `json:"points_to_next_level"`
	DailyRemaining    int                             `json:"daily_remaining"`
	Achievements      []achievement.AchievementStatus `json:"achievements"`
	Challenges        []achievement.ChallengeStatus   `json:"challenges"`
}

func (s *Service) Progress(ctx context.Context, userID string) (Stats, error) {
	p, err := s.store.Load(ctx, userID)
	if err != nil {
		return Stats{}, s.mapStoreError(userID, err)
	}
	now := s.now()
	lvl := s.cfg.Levels.For(p.Points)
	p.Level, p.LevelName = lvl.Number, lvl.Name
	st := Stats{
		UserProgress:   p,
		DailyRemaining: DailyRemaining(s.cfg.MaxDailyPoints, p.DailyPointsAwarded, p.DailyPointsDate, LocalDate(now, s.cfg.Location)),
		Achievements:   s.rules.Achievements(p),
		Challenges:     s.rules.Challenges(p, now),
	}
	if next, ok := s.cfg.Levels.Next(p.Points); ok {
		st.NextLevel = &next
		st.PointsToNextLevel = next.Threshold - p.Points
	}
	return st, nil
}

const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

// Events lists a user's ledger events, newest first.
func (s *Service) Events(ctx context.Context, userID string, limit int) ([]gamification.DisposalEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	if _, err := s.store.Load(ctx, userID); err != nil {
		return nil, s.mapStoreError(userID, err)
	}
	evs, err := s.store.Events(ctx, userID, limit)
	if err != nil {
		return nil, s.mapStoreError(userID, err)
	}
	return evs, nil
}

type AdjustResult struct {
	Applied   int                        `json:"applied"`
	NewTotal  int                        `json:"new_total"`
	NewLevel  int                        `json:"new_level"`
	LevelName string                     `json:"level_name"`
	Event     gamification.DisposalEvent `json:"event"`
}

// Adjust applies an admin correction. Points never drop below zero, so the
// applied delta can be smaller than requested. Level follows points down too.
func (s *Service) Adjust(ctx context.Context, userID string, delta int, reason string) (AdjustResult, error) {
	userID = strings.TrimSpace(userID)
	reason = strings.TrimSpace(reason)
	if userID == "" || reason == "" {
		return AdjustResult{}, fmt.Errorf("%w: user_id and reason are required", ErrInvalidArgument)
	}
	if delta == 0 {
		return AdjustResult{}, fmt.Errorf("%w: delta must be non-zero", ErrInvalidArgument)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	var res AdjustResult
	err := s.withRetry(ctx, "adjust", func() error {
		_, _, err := s.store.Mutate(ctx, userID, func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error) {
			now := s.now()
			applied := delta
			if p.Points+applied < 0 {
				applied = -p.Points
			}
			p.Points += applied
			lvl := s.cfg.Levels.For(p.Points)
			p.Level, p.LevelName = lvl.Number, lvl.Name
			p.EventSeq++
			p.UpdatedAt = now
			ev := gamification.DisposalEvent{
				ID:            uuid.New(),
				UserID:        p.UserID,
				Seq:           p.EventSeq,
				Kind:          gamification.EventAdjustment,
				PointsAwarded: applied,
				Metadata:      map[string]any{"reason": reason, "requested_delta": delta},
				Timestamp:     now,
			}
			res = AdjustResult{Applied: applied, NewTotal: p.Points, NewLevel: lvl.Number, LevelName: lvl.Name, Event: ev}
			return []gamification.DisposalEvent{ev}, nil
		})
		return err
	})
	if err != nil {
		return AdjustResult{}, s.mapStoreError(userID, err)
	}
	s.log.Warn("points adjusted", "user_id", userID, "requested", delta, "applied", res.Applied, "reason", reason)
	s.publish(ctx, Notification{
		Type:       "adjustment",
		UserID:     userID,
		Points:     res.NewTotal,
		Delta:      res.Applied,
		Level:      res.NewLevel,
		Seq:        res.Event.Seq,
		OccurredAt: res.Event.Timestamp,
	})
	return res, nil
}

type VerifyReport struct {
	UserID     string `json:"user_id"`
	Points     int    `json:"points"`
	EventSum   int    `json:"event_sum"`
	Drift      int    `json:"drift"`
	EventCount int    `json:"event_count"`
	// SeqGaps counts missing sequence numbers between 1 and the record's EventSeq.
	SeqGaps       int  `json:"seq_gaps"`
	LevelMismatch bool `json:"level_mismatch"`
	OK            bool `json:"ok"`
}

// Verify recomputes points from the event log and reports any drift.
func (s *Service) Verify(ctx context.Context, userID string) (VerifyReport, error) {
	p, err := s.store.Load(ctx, userID)
	if err != nil {
		return VerifyReport{}, s.mapStoreError(userID, err)
	}
	evs, err := s.store.Events(ctx, userID, 0)
	if err != nil {
		return VerifyReport{}, s.mapStoreError(userID, err)
	}
	sum := gamification.SumPoints(evs)
	seqs := make(map[int64]bool, len(evs))
	for _, ev := range evs {
		seqs[ev.Seq] = true
	}
	gaps := 0
	for i := int64(1); i <= p.EventSeq; i++ {
		if !seqs[i] {
			gaps++
		}
	}
	rep := VerifyReport{
		UserID:        userID,
		Points:        p.Points,
		EventSum:      sum,
		Drift:         p.Points - sum,
		EventCount:    len(evs),
		SeqGaps:       gaps,
		LevelMismatch: p.Level != s.cfg.Levels.For(p.Points).Number,
	}
	rep.OK = rep.Drift == 0 && rep.SeqGaps == 0 && !rep.LevelMismatch
	if !rep.OK {
		s.log.Error("ledger verification failed", "user_id", userID, "drift", rep.Drift, "seq_gaps", gaps, "level_mismatch", rep.LevelMismatch)
	}
	return rep, nil
}

// withRetry repeats fn once when the store reports a conflict or transient error.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || !domainagg.Retryable(err) || ctx.Err() != nil {
		return err
	}
	observability.Current().IncLedgerConflict()
	s.log.Warn("ledger write conflict; retrying once", "op", op, "error", err)
	return fn()
}

func (s *Service) mapStoreError(userID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case domainagg.IsCode(err, domainagg.CodeNotFound):
		return fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	case domainagg.IsCode(err, domainagg.CodeValidation):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case domainagg.Retryable(err):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

func (s *Service) publish(ctx context.Context, n Notification) {
	if s.pub == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()
	if err := s.pub.Publish(pctx, n.UserID, n); err != nil {
		s.log.Warn("ledger notification publish failed", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}
