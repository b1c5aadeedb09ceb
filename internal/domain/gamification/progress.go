package gamification

import (
	"sort"
	"time"
)

// ChallengeState is a user's progress toward one time-boxed challenge.
type ChallengeState struct {
	Progress    int        `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s ChallengeState) Completed() bool { return s.CompletedAt != nil }

// UserProgress is the per-user ledger record. Only the scoring ledger writes it.
type UserProgress struct {
	UserID string `gorm:"column:user_id;primaryKey;size:128" json:"user_id"`

	Points    int    `gorm:"column:points;not null;default:0;index" json:"points"`
	Level     int    `gorm:"column:level;not null;default:1" json:"level"`
	LevelName string `gorm:"column:level_name;size:64" json:"level_name"`

	CategoryCounts map[string]int `gorm:"column:category_counts;serializer:json;type:text" json:"category_counts"`

	TotalScans          int `gorm:"column:total_scans;not null;default:0" json:"total_scans"`
	RecyclableScans     int `gorm:"column:recyclable_scans;not null;default:0" json:"recyclable_scans"`
	HighConfidenceScans int `gorm:"column:high_confidence_scans;not null;default:0" json:"high_confidence_scans"`

	StreakDays   int    `gorm:"column:streak_days;not null;default:0" json:"streak_days"`
	LastScanDate string `gorm:"column:last_scan_date;size:10" json:"last_scan_date,omitempty"`

	AchievementsUnlocked []string                  `gorm:"column:achievements_unlocked;serializer:json;type:text" json:"achievements_unlocked"`
	ChallengeProgress    map[string]ChallengeState `gorm:"column:challenge_progress;serializer:json;type:text" json:"challenge_progress"`
	ChallengesCompleted  int                       `gorm:"column:challenges_completed;not null;default:0" json:"challenges_completed"`

	DailyPointsDate    string `gorm:"column:daily_points_date;size:10" json:"daily_points_date,omitempty"`
	DailyPointsAwarded int    `gorm:"column:daily_points_awarded;not null;default:0" json:"daily_points_awarded_today"`

	// EventSeq is the sequence number of the last appended DisposalEvent.
	EventSeq int64 `gorm:"column:event_seq;not null;default:0" json:"event_seq"`
	Version  int   `gorm:"column:version;not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (UserProgress) TableName() string { return "user_progress" }

// NewUserProgress returns an empty record registered at createdAt.
func NewUserProgress(userID string, createdAt time.Time) *UserProgress {
	return &UserProgress{
		UserID:               userID,
		Level:                1,
		CategoryCounts:       map[string]int{},
		AchievementsUnlocked: []string{},
		ChallengeProgress:    map[string]ChallengeState{},
		CreatedAt:            createdAt,
		UpdatedAt:            createdAt,
	}
}

// Normalize fills nil collections so records read from storage behave like fresh ones.
func (p *UserProgress) Normalize() {
	if p.CategoryCounts == nil {
		p.CategoryCounts = map[string]int{}
	}
	if p.AchievementsUnlocked == nil {
		p.AchievementsUnlocked = []string{}
	}
	if p.ChallengeProgress == nil {
		p.ChallengeProgress = map[string]ChallengeState{}
	}
}

func (p *UserProgress) HasAchievement(id string) bool {
	for _, a := range p.AchievementsUnlocked {
		if a == id {
			return true
		}
	}
	return false
}

// AddAchievement records id once and keeps the list sorted.
func (p *UserProgress) AddAchievement(id string) bool {
	if p.HasAchievement(id) {
		return false
	}
	p.AchievementsUnlocked = append(p.AchievementsUnlocked, id)
	sort.Strings(p.AchievementsUnlocked)
	return true
}

// Clone deep-copies the record.
func (p *UserProgress) Clone() *UserProgress {
	if p == nil {
		return nil
	}
	cp := *p
	cp.CategoryCounts = make(map[string]int, len(p.CategoryCounts))
	for k, v := range p.CategoryCounts {
		cp.CategoryCounts[k] = v
	}
	cp.AchievementsUnlocked = append([]string{}, p.AchievementsUnlocked...)
	cp.ChallengeProgress = make(map[string]ChallengeState, len(p.ChallengeProgress))
	for k, v := range p.ChallengeProgress {
		if v.CompletedAt != nil {
			at := *v.CompletedAt
			v.CompletedAt = &at
		}
		cp.ChallengeProgress[k] = v
	}
	return &cp
}
