package model

import "time"

// Custom quest cadences.
const (
	QuestTypeDaily  = "daily"
	QuestTypeWeekly = "weekly"
	QuestTypeCustom = "custom"
)

// CustomQuest is a user-authored quest with a manual progress counter.
// XPReward is fixed when the quest is created.
type CustomQuest struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64  `gorm:"index:idx_custom_user;not null" json:"user_id"`
	Title       string `gorm:"size:200;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Difficulty  string `gorm:"size:10;not null" json:"difficulty"`
	XPReward    int64  `gorm:"not null" json:"xp_reward"`
	QuestType   string `gorm:"size:10;not null" json:"quest_type"`

	ReminderTime    string `gorm:"size:5" json:"reminder_time"` // HH:MM, empty when unset
	ReminderEnabled bool   `json:"reminder_enabled"`
	LastRemindedOn  string `gorm:"size:10" json:"-"`

	TargetCount  int `gorm:"not null" json:"target_count"`
	CurrentCount int `gorm:"not null" json:"current_count"`

	IsCompleted bool       `gorm:"index" json:"is_completed"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// ProgressPercentage is CurrentCount/TargetCount*100.
func (q *CustomQuest) ProgressPercentage() float64 {
	if q.TargetCount <= 0 {
		return 0
	}
	return float64(q.CurrentCount) / float64(q.TargetCount) * 100
}

// IsOverdue reports whether a daily custom quest outlived the day it was
// created on. today is a DayLayout string in the tracker's location.
func (q *CustomQuest) IsOverdue(today string, loc *time.Location) bool {
	if q.QuestType != QuestTypeDaily || q.IsCompleted {
		return false
	}
	return today > DayKey(q.CreatedAt.In(loc))
}
