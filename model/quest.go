package model

import "time"

// Quest difficulty tiers.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
	DifficultyEpic   = "Epic"
)

// QuestCategory groups catalog quests for weekly and profile statistics.
type QuestCategory struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Code  string `gorm:"uniqueIndex;size:64;not null" json:"code"`
	Name  string `gorm:"size:50;not null" json:"name"`
	Icon  string `gorm:"size:50" json:"icon"`
	Color string `gorm:"size:20" json:"color"`
}

// Quest is an admin-managed catalog entry. Rows are reference data and are
// never mutated by user actions.
type Quest struct {
	ID          int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Code        string        `gorm:"uniqueIndex;size:120;not null" json:"code"`
	Title       string        `gorm:"size:200;not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	CategoryID  int64         `gorm:"index" json:"category_id"`
	Category    QuestCategory `gorm:"foreignKey:CategoryID" json:"category"`
	Difficulty  string        `gorm:"size:10;not null" json:"difficulty"`
	XPReward    int64         `gorm:"not null" json:"xp_reward"`
	IsDaily     bool          `json:"is_daily"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

// UserQuest assigns a catalog quest to a user for one calendar day.
// (user, quest, day) is unique; Completed moves false→true once.
type UserQuest struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64      `gorm:"uniqueIndex:idx_user_quest_day;not null" json:"user_id"`
	QuestID     int64      `gorm:"uniqueIndex:idx_user_quest_day;not null" json:"quest_id"`
	AssignedOn  string     `gorm:"uniqueIndex:idx_user_quest_day;size:10;not null" json:"assigned_on"`
	Completed   bool       `gorm:"index" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Quest       Quest      `gorm:"foreignKey:QuestID" json:"quest"`
}
