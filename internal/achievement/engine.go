package achievement

import (
	"fmt"
	"time"

	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

type Kind string

const (
	KindAchievement Kind = "achievement"
	KindChallenge   Kind = "challenge"
)

// Unlock is one achievement or challenge completion produced by Evaluate.
// Key is the achievement id, or the challenge window key.
type Unlock struct {
	Kind         Kind   `json:"kind"`
	ID           string `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	RewardPoints int    `json:"reward_points"`
}

// Facts describe a single confirmed disposal.
type Facts struct {
	Category       string
	Material       string
	Recyclable     bool
	HighConfidence bool
}

// Engine evaluates rules against user progress. It holds no per-user state.
type Engine struct {
	rules *Rules
	tax   *taxonomy.Taxonomy
	loc   *time.Location
}

// New checks that every category and material the rules mention exists in tax.
// loc sets the day and week boundaries of recurring challenges.
func New(rules *Rules, tax *taxonomy.Taxonomy, loc *time.Location) (*Engine, error) {
	if rules == nil || tax == nil {
		return nil, fmt.Errorf("achievement: rules and taxonomy required")
	}
	if loc == nil {
		loc = time.Local
	}
	materials := map[string]bool{}
	for _, c := range tax.Categories() {
		materials[c.Material] = true
	}
	check := func(owner string, c Criterion) error {
		if c.Category != "" {
			if _, ok := tax.Lookup(c.Category); !ok {
				return fmt.Errorf("%w: %s references unknown category %q", ErrInvalidRules, owner, c.Category)
			}
		}
		if c.Material != "" && !materials[c.Material] {
			return fmt.Errorf("%w: %s references unknown material %q", ErrInvalidRules, owner, c.Material)
		}
		return nil
	}
	for _, a := range rules.Achievements {
		for _, c := range a.Criteria {
			if err := check(a.ID, c); err != nil {
				return nil, err
			}
		}
	}
	for _, ch := range rules.Challenges {
		if err := check(ch.ID, ch.Goal); err != nil {
			return nil, err
		}
	}
	return &Engine{rules: rules, tax: tax, loc: loc}, nil
}

func (e *Engine) Rules() *Rules { return e.rules }

func (e *Engine) Location() *time.Location { return e.loc }

// FactsFor derives disposal facts for a category id.
func (e *Engine) FactsFor(category string, highConfidence bool) Facts {
	c := e.tax.Normalize(category)
	return Facts{
		Category:       c.ID,
		Material:       c.Material,
		Recyclable:     c.Recyclable,
		HighConfidence: highConfidence,
	}
}

// AdvanceChallenges counts one disposal toward every open challenge window its
// goal matches. Completed windows are left alone. Windows of recurring
// challenges that ended before the current one are dropped.
func (e *Engine) AdvanceChallenges(p *gamification.UserProgress, f Facts, now time.Time) {
	p.Normalize()
	e.pruneEnded(p, now)
	for _, ch := range e.rules.Challenges {
		key, _, _, ok := ch.Instance(now, e.loc)
		if !ok || !contributes(ch.Goal, f) {
			continue
		}
		st := p.ChallengeProgress[key]
		if st.Completed() {
			continue
		}
		st.Progress++
		p.ChallengeProgress[key] = st
	}
}

func (e *Engine) pruneEnded(p *gamification.UserProgress, now time.Time) {
	for _, ch := range e.rules.Challenges {
		if ch.Window == WindowNone {
			continue
		}
		_, current, _, _ := ch.Instance(now, e.loc)
		for key := range p.ChallengeProgress {
			if start, ok := ch.windowStart(key, e.loc); ok && start.Before(current) {
				delete(p.ChallengeProgress, key)
			}
		}
	}
}

func contributes(goal Criterion, f Facts) bool {
	switch goal.Metric {
	case MetricTotalScans:
		return true
	case MetricCategoryCount:
		return taxonomy.Key(goal.Category) == f.Category
	case MetricMaterialCount:
		return goal.Material == f.Material
	case MetricRecyclableScans:
		return f.Recyclable
	case MetricHighConfidenceScans:
		return f.HighConfidence
	}
	return false
}

// Evaluate returns what p newly qualifies for at now without modifying p.
// Unlocks come back challenges first, then achievements, each group in
// ascending id order. Challenges are checked first so their completions and rewards count toward
// achievements in the same pass. Achievements unlocked in this pass do not
// feed each other.
func (e *Engine) Evaluate(p *gamification.UserProgress, now time.Time) []Unlock {
	work := p.Clone()
	work.Normalize()
	var out []Unlock

	for _, ch := range e.rules.Challenges {
		key, _, _, ok := ch.Instance(now, e.loc)
		if !ok {
			continue
		}
		st := work.ChallengeProgress[key]
		if st.Completed() || st.Progress < ch.Goal.Threshold {
			continue
		}
		u := Unlock{Kind: KindChallenge, ID: ch.ID, Key: key, Name: ch.Name, RewardPoints: ch.RewardPoints}
		Apply(work, u, now)
		out = append(out, u)
	}

	for _, a := range e.rules.Achievements {
		if work.HasAchievement(a.ID) || !e.satisfied(work, a.Criteria) {
			continue
		}
		out = append(out, Unlock{Kind: KindAchievement, ID: a.ID, Key: a.ID, Name: a.Name, RewardPoints: a.RewardPoints})
	}
	return out
}

// Apply records u on p, reward points included. It is idempotent per key.
func Apply(p *gamification.UserProgress, u Unlock, now time.Time) bool {
	p.Normalize()
	switch u.Kind {
	case KindChallenge:
		st := p.ChallengeProgress[u.Key]
		if st.Completed() {
			return false
		}
		at := now.UTC()
		st.CompletedAt = &at
		p.ChallengeProgress[u.Key] = st
		p.ChallengesCompleted++
	case KindAchievement:
		if !p.AddAchievement(u.ID) {
			return false
		}
	default:
		return false
	}
	p.Points += u.RewardPoints
	return true
}

func (e *Engine) satisfied(p *gamification.UserProgress, criteria []Criterion) bool {
	for _, c := range criteria {
		if e.Value(p, c) < c.Threshold {
			return false
		}
	}
	return true
}

// Value measures c's metric against p.
func (e *Engine) Value(p *gamification.UserProgress, c Criterion) int {
	switch c.Metric {
	case MetricTotalScans:
		return p.TotalScans
	case MetricCategoryCount:
		return p.CategoryCounts[taxonomy.Key(c.Category)]
	case MetricMaterialCount:
		n := 0
		for id, count := range p.CategoryCounts {
			if e.materialOf(id) == c.Material {
				n += count
			}
		}
		return n
	case MetricRecyclableScans:
		return p.RecyclableScans
	case MetricUniqueCategories:
		n := 0
		for id, count := range p.CategoryCounts {
			if count <= 0 || id == taxonomy.Unclassified {
				continue
			}
			if c.Material == "" || e.materialOf(id) == c.Material {
				n++
			}
		}
		return n
	case MetricUniqueMaterials:
		seen := map[string]bool{}
		for id, count := range p.CategoryCounts {
			if count <= 0 || id == taxonomy.Unclassified {
				continue
			}
			seen[e.materialOf(id)] = true
		}
		return len(seen)
	case MetricStreakDays:
		return p.StreakDays
	case MetricHighConfidenceScans:
		return p.HighConfidenceScans
	case MetricChallengesCompleted:
		return p.ChallengesCompleted
	case MetricPoints:
		return p.Points
	}
	return 0
}

func (e *Engine) materialOf(category string) string {
	c, ok := e.tax.Lookup(category)
	if !ok {
		return ""
	}
	return c.Material
}

// AchievementStatus reports progress toward one achievement. Current and
// Target describe the least satisfied criterion.
type AchievementStatus struct {
	Achievement
	Unlocked bool `json:"unlocked"`
	Current  int  `json:"current"`
	Target   int  `json:"target"`
}

func (e *Engine) Achievements(p *gamification.UserProgress) []AchievementStatus {
	out := make([]AchievementStatus, 0, len(e.rules.Achievements))
	for _, a := range e.rules.Achievements {
		st := AchievementStatus{Achievement: a, Unlocked: p != nil && p.HasAchievement(a.ID)}
		worst := -1.0
		for _, c := range a.Criteria {
			v := 0
			if p != nil {
				v = e.Value(p, c)
			}
			if v > c.Threshold {
				v = c.Threshold
			}
			if ratio := float64(v) / float64(c.Threshold); worst < 0 || ratio < worst {
				worst = ratio
				st.Current, st.Target = v, c.Threshold
			}
		}
		out = append(out, st)
	}
	return out
}

// ChallengeStatus is a challenge as seen at one instant, with the user's
// progress in the current window when a record is supplied.
type ChallengeStatus struct {
	Challenge
	Active      bool      `json:"active"`
	WindowStart time.Time `json:"window_start,omitempty"`
	WindowEnd   time.Time `json:"window_end,omitempty"`
	Progress    int       `json:"progress"`
	Completed   bool      `json:"completed"`
}

func (e *Engine) Challenges(p *gamification.UserProgress, now time.Time) []ChallengeStatus {
	out := make([]ChallengeStatus, 0, len(e.rules.Challenges))
	for _, ch := range e.rules.Challenges {
		key, start, end, ok := ch.Instance(now, e.loc)
		st := ChallengeStatus{Challenge: ch, Active: ok, WindowStart: start, WindowEnd: end}
		if p != nil && ok {
			cs := p.ChallengeProgress[key]
			st.Progress, st.Completed = cs.Progress, cs.Completed()
		}
		out = append(out, st)
	}
	return out
}
