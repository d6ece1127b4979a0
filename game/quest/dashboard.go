package quest

import (
	"context"
	"time"

	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/model"
)

// weeklyTarget is the number of completions per category that fills a week.
const weeklyTarget = 7

// CategoryCount is a completion count for one quest category.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// ProfileSummary is a profile with its derived display values.
type ProfileSummary struct {
	*model.UserProfile
	XPToNextLevel int64   `json:"xp_to_next_level"`
	XPPercentage  float64 `json:"xp_percentage"`
	Rank          int64   `json:"rank"`
}

// Dashboard is everything the home view shows.
type Dashboard struct {
	Profile              ProfileSummary       `json:"profile"`
	TodayQuests          []model.UserQuest    `json:"today_quests"`
	CustomQuests         []CustomQuestView    `json:"custom_quests"`
	Notifications        []model.Notification `json:"notifications"`
	Leaderboard          []progression.Entry  `json:"leaderboard"`
	WeeklyProgress       map[string]float64   `json:"weekly_progress"`
	CompletedQuestsCount int64                `json:"completed_quests_count"`
}

// ProfileStats is the profile view.
type ProfileStats struct {
	Profile         ProfileSummary          `json:"profile"`
	Achievements    []model.UserAchievement `json:"achievements"`
	TotalQuests     int64                   `json:"total_quests"`
	CompletedQuests int64                   `json:"completed_quests"`
	CompletionRate  float64                 `json:"completion_rate"`
	CategoryStats   []CategoryCount         `json:"category_stats"`
}

// WeekStart returns the Monday of day's week.
func WeekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func (svc *Service) summary(ctx context.Context, p *model.UserProfile) (ProfileSummary, error) {
	rank, err := svc.pipe.Progression().Rank(ctx, p.TotalXP)
	if err != nil {
		return ProfileSummary{}, err
	}
	return ProfileSummary{
		UserProfile:   p,
		XPToNextLevel: progression.XPToNextLevel(p),
		XPPercentage:  progression.XPPercentage(p),
		Rank:          rank,
	}, nil
}

// Dashboard runs the first-visit-of-the-day bookkeeping (streak, daily
// assignments) and assembles the home view for userID.
func (svc *Service) Dashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	day := svc.Today()
	prog := svc.pipe.Progression()
	if _, err := prog.EnsureProfile(ctx, nil, userID, model.DayKey(day)); err != nil {
		return nil, err
	}
	if _, err := svc.UpdateStreak(ctx, userID, day); err != nil {
		return nil, err
	}
	today, err := svc.AssignDaily(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	profile, err := prog.Profile(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	sum, err := svc.summary(ctx, profile)
	if err != nil {
		return nil, err
	}
	custom, err := svc.ListCustom(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	notes, err := svc.pipe.Notifier().ListUnread(ctx, userID, svc.cfg.DashboardNotifications)
	if err != nil {
		return nil, err
	}
	board, err := prog.Leaderboard(ctx, svc.cfg.DashboardLeaderboardSize)
	if err != nil {
		return nil, err
	}

	weekly, err := svc.categoryCounts(ctx, userID, model.DayKey(WeekStart(day)))
	if err != nil {
		return nil, err
	}
	progress := make(map[string]float64, len(weekly))
	for _, c := range weekly {
		pct := float64(c.Count) / weeklyTarget * 100
		if pct > 100 {
			pct = 100
		}
		progress[c.Name] = pct
	}

	var completed int64
	if err := svc.db.WithContext(ctx).Model(&model.UserQuest{}).
		Where("user_id = ? AND completed = ?", userID, true).Count(&completed).Error; err != nil {
		return nil, err
	}

	return &Dashboard{
		Profile:              sum,
		TodayQuests:          today,
		CustomQuests:         custom,
		Notifications:        notes,
		Leaderboard:          board,
		WeeklyProgress:       progress,
		CompletedQuestsCount: completed,
	}, nil
}

// ProfileStats assembles the profile view for userID.
func (svc *Service) ProfileStats(ctx context.Context, userID int64) (*ProfileStats, error) {
	profile, err := svc.pipe.Progression().Profile(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	sum, err := svc.summary(ctx, profile)
	if err != nil {
		return nil, err
	}
	earned, err := svc.pipe.Evaluator().Earned(ctx, userID)
	if err != nil {
		return nil, err
	}

	db := svc.db.WithContext(ctx)
	var total, completed int64
	if err := db.Model(&model.UserQuest{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.UserQuest{}).
		Where("user_id = ? AND completed = ?", userID, true).Count(&completed).Error; err != nil {
		return nil, err
	}
	rate := 0.0
	if total > 0 {
		rate = float64(completed) / float64(total) * 100
	}

	cats, err := svc.categoryCounts(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return &ProfileStats{
		Profile:         sum,
		Achievements:    earned,
		TotalQuests:     total,
		CompletedQuests: completed,
		CompletionRate:  rate,
		CategoryStats:   cats,
	}, nil
}

// categoryCounts groups userID's completed assignments by category, largest
// first. A non-empty since restricts it to days on or after since.
func (svc *Service) categoryCounts(ctx context.Context, userID int64, since string) ([]CategoryCount, error) {
	q := svc.db.WithContext(ctx).Table("user_quests").
		Select("quest_categories.name AS name, COUNT(user_quests.id) AS count").
		Joins("JOIN quests ON quests.id = user_quests.quest_id").
		Joins("JOIN quest_categories ON quest_categories.id = quests.category_id").
		Where("user_quests.user_id = ? AND user_quests.completed = ?", userID, true)
	if since != "" {
		q = q.Where("user_quests.assigned_on >= ?", since)
	}
	var rows []CategoryCount
	err := q.Group("quest_categories.name").
		Order("count DESC").
		Order("name").
		Scan(&rows).Error
	return rows, err
}
