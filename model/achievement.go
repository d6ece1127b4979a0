package model

import "time"

// Achievement requirement kinds. Unknown kinds are never awarded.
const (
	RequirementLevel           = "level"
	RequirementStreak          = "streak"
	RequirementQuestsCompleted = "quests_completed"
)

// Achievement is catalog reference data.
type Achievement struct {
	ID               int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Code             string `gorm:"uniqueIndex;size:120;not null" json:"code"`
	Name             string `gorm:"size:100;not null" json:"name"`
	Description      string `gorm:"type:text" json:"description"`
	Icon             string `gorm:"size:50" json:"icon"`
	RequirementType  string `gorm:"size:50;not null" json:"requirement_type"`
	RequirementValue int64  `gorm:"not null" json:"requirement_value"`
	XPReward         int64  `gorm:"not null" json:"xp_reward"`
}

// UserAchievement records an earned achievement. Append-only; one row per
// (user, achievement).
type UserAchievement struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64       `gorm:"uniqueIndex:idx_user_achievement;not null" json:"user_id"`
	AchievementID int64       `gorm:"uniqueIndex:idx_user_achievement;not null" json:"achievement_id"`
	EarnedAt      time.Time   `gorm:"autoCreateTime" json:"earned_at"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement"`
}
