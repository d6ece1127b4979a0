package model

import "time"

// DayLayout is the storage format of calendar-day columns.
const DayLayout = "2006-01-02"

// DayKey formats t as a calendar day in t's location.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// UserProfile holds one user's progression state.
// CurrentXP is always below Level*1000.
type UserProfile struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64 `gorm:"uniqueIndex;not null" json:"user_id"`
	Level     int   `gorm:"not null" json:"level"`
	CurrentXP int64 `gorm:"not null" json:"current_xp"`
	TotalXP   int64 `gorm:"index:idx_profile_total_xp;not null" json:"total_xp"`

	Streak       int    `gorm:"not null" json:"streak"`
	LastActivity string `gorm:"size:10;not null" json:"last_activity"` // YYYY-MM-DD
	LastWarnedOn string `gorm:"size:10" json:"-"`

	Strength     int `gorm:"not null" json:"strength"`
	Vitality     int `gorm:"not null" json:"vitality"`
	Agility      int `gorm:"not null" json:"agility"`
	Intelligence int `gorm:"not null" json:"intelligence"`
	Perception   int `gorm:"not null" json:"perception"`

	JobClass  string `gorm:"size:50;not null" json:"job_class"`
	JobTitle  string `gorm:"size:100;not null" json:"job_title"`
	AvatarURL string `gorm:"size:512" json:"avatar_url"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
