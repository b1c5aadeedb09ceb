package achievement

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

var ErrInvalidRules = errors.New("invalid achievement rules")

type Metric string

const (
	MetricTotalScans          Metric = "total_scans"
	MetricCategoryCount       Metric = "category_count"
	MetricMaterialCount       Metric = "material_count"
	MetricRecyclableScans     Metric = "recyclable_scans"
	MetricUniqueCategories    Metric = "unique_categories"
	MetricUniqueMaterials     Metric = "unique_materials"
	MetricStreakDays          Metric = "streak_days"
	MetricHighConfidenceScans Metric = "high_confidence_scans"
	MetricChallengesCompleted Metric = "challenges_completed"
	MetricPoints              Metric = "points"
)

var knownMetrics = map[Metric]bool{
	MetricTotalScans: true, MetricCategoryCount: true, MetricMaterialCount: true,
	MetricRecyclableScans: true, MetricUniqueCategories: true, MetricUniqueMaterials: true,
	MetricStreakDays: true, MetricHighConfidenceScans: true, MetricChallengesCompleted: true,
	MetricPoints: true,
}

// eventMetrics can be counted one disposal at a time, so they work as challenge goals.
var eventMetrics = map[Metric]bool{
	MetricTotalScans: true, MetricCategoryCount: true, MetricMaterialCount: true,
	MetricRecyclableScans: true, MetricHighConfidenceScans: true,
}

type Criterion struct {
	Metric    Metric `yaml:"metric" json:"metric"`
	Category  string `yaml:"category,omitempty" json:"category,omitempty"`
	Material  string `yaml:"material,omitempty" json:"material,omitempty"`
	Threshold int    `yaml:"threshold" json:"threshold"`
}

type Achievement struct {
	ID           string      `yaml:"id" json:"id"`
	Name         string      `yaml:"name" json:"name"`
	Description  string      `yaml:"description" json:"description"`
	Criteria     []Criterion `yaml:"criteria" json:"criteria"`
	RewardPoints int         `yaml:"reward_points" json:"reward_points"`
}

// Window makes a challenge recur. Progress is tracked per window instance.
type Window string

const (
	WindowNone   Window = ""
	WindowDaily  Window = "daily"
	WindowWeekly Window = "weekly"
)

// Challenge is time-boxed: fixed challenges use StartsAt and Deadline,
// recurring ones derive both from Window and the ledger's local date.
type Challenge struct {
	ID           string    `yaml:"id" json:"id"`
	Name         string    `yaml:"name" json:"name"`
	Description  string    `yaml:"description" json:"description"`
	Goal         Criterion `yaml:"goal" json:"goal"`
	Window       Window    `yaml:"window,omitempty" json:"window,omitempty"`
	StartsAt     time.Time `yaml:"starts_at,omitempty" json:"starts_at,omitempty"`
	Deadline     time.Time `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	RewardPoints int       `yaml:"reward_points" json:"reward_points"`
}

// Rules is immutable after Parse; achievements and challenges are sorted by id.
type Rules struct {
	Achievements []Achievement `yaml:"achievements" json:"achievements"`
	Challenges   []Challenge   `yaml:"challenges" json:"challenges"`
}

func Default() (*Rules, error) {
	return Parse(embeddedRules)
}

// Load reads rules from path, or the embedded table when path is empty.
func Load(path string) (*Rules, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	sort.Slice(r.Achievements, func(i, j int) bool { return r.Achievements[i].ID < r.Achievements[j].ID })
	sort.Slice(r.Challenges, func(i, j int) bool { return r.Challenges[i].ID < r.Challenges[j].ID })
	return &r, nil
}

func (r *Rules) validate() error {
	seen := map[string]bool{}
	for i := range r.Achievements {
		a := &r.Achievements[i]
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return fmt.Errorf("%w: achievement without id", ErrInvalidRules)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate achievement %q", ErrInvalidRules, a.ID)
		}
		seen[a.ID] = true
		if len(a.Criteria) == 0 {
			return fmt.Errorf("%w: achievement %q has no criteria", ErrInvalidRules, a.ID)
		}
		if a.RewardPoints < 0 {
			return fmt.Errorf("%w: achievement %q has negative reward", ErrInvalidRules, a.ID)
		}
		for _, c := range a.Criteria {
			if err := c.validate(); err != nil {
				return fmt.Errorf("%w: achievement %q: %v", ErrInvalidRules, a.ID, err)
			}
		}
	}

	seen = map[string]bool{}
	for i := range r.Challenges {
		c := &r.Challenges[i]
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return fmt.Errorf("%w: challenge without id", ErrInvalidRules)
		}
		if strings.Contains(c.ID, "@") {
			return fmt.Errorf("%w: challenge id %q must not contain '@'", ErrInvalidRules, c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate challenge %q", ErrInvalidRules, c.ID)
		}
		seen[c.ID] = true
		if c.RewardPoints < 0 {
			return fmt.Errorf("%w: challenge %q has negative reward", ErrInvalidRules, c.ID)
		}
		if err := c.Goal.validate(); err != nil {
			return fmt.Errorf("%w: challenge %q: %v", ErrInvalidRules, c.ID, err)
		}
		if !eventMetrics[c.Goal.Metric] {
			return fmt.Errorf("%w: challenge %q: metric %q cannot be counted per event", ErrInvalidRules, c.ID, c.Goal.Metric)
		}
		switch c.Window {
		case WindowDaily, WindowWeekly:
			if !c.StartsAt.IsZero() || !c.Deadline.IsZero() {
				return fmt.Errorf("%w: challenge %q mixes window and fixed dates", ErrInvalidRules, c.ID)
			}
		case WindowNone:
			if c.Deadline.IsZero() {
				return fmt.Errorf("%w: challenge %q needs a deadline or a window", ErrInvalidRules, c.ID)
			}
			if !c.StartsAt.IsZero() && !c.StartsAt.Before(c.Deadline) {
				return fmt.Errorf("%w: challenge %q starts after its deadline", ErrInvalidRules, c.ID)
			}
		default:
			return fmt.Errorf("%w: challenge %q has unknown window %q", ErrInvalidRules, c.ID, c.Window)
		}
	}
	return nil
}

func (c Criterion) validate() error {
	if !knownMetrics[c.Metric] {
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("metric %q needs a positive threshold", c.Metric)
	}
	if c.Metric == MetricCategoryCount && strings.TrimSpace(c.Category) == "" {
		return fmt.Errorf("category_count needs a category")
	}
	if c.Metric == MetricMaterialCount && strings.TrimSpace(c.Material) == "" {
		return fmt.Errorf("material_count needs a material")
	}
	return nil
}

// Instance resolves the challenge window containing now. key identifies the
// window for progress tracking; ok is false outside [start, end).
func (c Challenge) Instance(now time.Time, loc *time.Location) (key string, start, end time.Time, ok bool) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	switch c.Window {
	case WindowDaily:
		start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
	case WindowWeekly:
		offset := (int(local.Weekday()) + 6) % 7 // weeks start on Monday
		start = time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 7)
	default:
		start, end = c.StartsAt, c.Deadline
		if (!start.IsZero() && now.Before(start)) || !now.Before(end) {
			return c.ID, start, end, false
		}
		return c.ID, start, end, true
	}
	return c.ID + "@" + start.Format(windowLayout), start, end, true
}

// windowLayout formats the start date in recurring window keys.
const windowLayout = "2006-01-02"

// windowStart parses the start of a recurring window from its key. ok is false
// for keys that belong to another challenge or to a fixed one.
func (c Challenge) windowStart(key string, loc *time.Location) (time.Time, bool) {
	if c.Window == WindowNone {
		return time.Time{}, false
	}
	day, found := strings.CutPrefix(key, c.ID+"@")
	if !found {
		return time.Time{}, false
	}
	start, err := time.ParseInLocation(windowLayout, day, loc)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}
