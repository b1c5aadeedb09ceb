package gamification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventKind string

const (
	EventDisposal    EventKind = "disposal"
	EventAchievement EventKind = "achievement"
	EventChallenge   EventKind = "challenge"
	EventAdjustment  EventKind = "adjustment"
)

// DisposalEvent is an append-only ledger entry. Points on a UserProgress always
// equal the sum of PointsAwarded over that user's events.
type DisposalEvent struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID string    `gorm:"column:user_id;size:128;not null;index:idx_disposal_event_user_seq,unique,priority:1" json:"user_id"`
	Seq    int64     `gorm:"column:seq;not null;index:idx_disposal_event_user_seq,unique,priority:2" json:"seq"`

	Kind             EventKind `gorm:"column:kind;size:32;not null;index" json:"kind"`
	Category         string    `gorm:"column:category;size:64" json:"category,omitempty"`
	PointsAwarded    int       `gorm:"column:points_awarded;not null" json:"points_awarded"`
	SourceConfidence float64   `gorm:"column:source_confidence;not null;default:0" json:"source_confidence"`
	Source           string    `gorm:"column:source;size:32" json:"source,omitempty"`
	RefID            string    `gorm:"column:ref_id;size:128" json:"ref_id,omitempty"`

	Metadata datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`

	Timestamp time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`
}

func (DisposalEvent) TableName() string { return "disposal_event" }

// SumPoints totals PointsAwarded across events.
func SumPoints(events []DisposalEvent) int {
	total := 0
	for _, ev := range events {
		total += ev.PointsAwarded
	}
	return total
}
