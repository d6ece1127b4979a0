package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types.
const (
	NotifyLevelUp       = "level_up"
	NotifyJobChange     = "job_change"
	NotifyQuestReminder = "quest_reminder"
	NotifyAchievement   = "achievement"
	NotifyWarning       = "warning"
)

// Notification is a user-visible event. Only IsRead ever changes, false→true.
type Notification struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64          `gorm:"index:idx_notify_user;not null" json:"user_id"`
	Type      string         `gorm:"size:20;not null" json:"type"`
	Title     string         `gorm:"size:100;not null" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Data      datatypes.JSON `json:"data"`
	IsRead    bool           `gorm:"index:idx_notify_user" json:"is_read"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
