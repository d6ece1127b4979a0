// Package notify records user-visible events and fans them out to live
// subscribers.
package notify

import (
	"fmt"

	"github.com/kasuganosora/solotracker/model"
)

// Event is a notification waiting to be stored.
type Event struct {
	Type    string
	Title   string
	Message string
	Data    map[string]interface{}
}

// LevelUp is sent when a credit crosses one or more level thresholds.
func LevelUp(oldLevel, newLevel, statsGained int) Event {
	return Event{
		Type:    model.NotifyLevelUp,
		Title:   "Level Up!",
		Message: fmt.Sprintf("Congratulations! You reached Level %d!", newLevel),
		Data: map[string]interface{}{
			"old_level":    oldLevel,
			"new_level":    newLevel,
			"stats_gained": statsGained,
		},
	}
}

// JobChange is sent when a new level moves the profile into another job class.
func JobChange(oldJob, newJob string, newLevel int) Event {
	return Event{
		Type:    model.NotifyJobChange,
		Title:   "Job Changed!",
		Message: fmt.Sprintf("Your job has changed from %s to %s", oldJob, newJob),
		Data: map[string]interface{}{
			"old_job":   oldJob,
			"new_job":   newJob,
			"new_level": newLevel,
		},
	}
}

// QuestCompleted is sent when a custom quest reaches its target.
func QuestCompleted(questID int64, title string, xp int64, levelUp bool) Event {
	return Event{
		Type:    model.NotifyAchievement,
		Title:   "Quest Completed!",
		Message: fmt.Sprintf("You completed %q and gained %d XP!", title, xp),
		Data: map[string]interface{}{
			"quest_id":  questID,
			"xp_gained": xp,
			"level_up":  levelUp,
		},
	}
}

// QuestCreated confirms a new custom quest.
func QuestCreated(questID int64, title string) Event {
	return Event{
		Type:    model.NotifyQuestReminder,
		Title:   "New Quest Created",
		Message: fmt.Sprintf("Quest %q has been added to your list.", title),
		Data:    map[string]interface{}{"quest_id": questID},
	}
}

// QuestReminder nudges the user about a custom quest at its reminder time.
func QuestReminder(questID int64, title string) Event {
	return Event{
		Type:    model.NotifyQuestReminder,
		Title:   "Quest Reminder",
		Message: fmt.Sprintf("Don't forget to work on %q today.", title),
		Data:    map[string]interface{}{"quest_id": questID},
	}
}

// AchievementUnlocked is sent once per earned achievement.
func AchievementUnlocked(achievementID int64, name string, xp int64) Event {
	return Event{
		Type:    model.NotifyAchievement,
		Title:   "Achievement Unlocked!",
		Message: fmt.Sprintf("You earned %q and gained %d XP!", name, xp),
		Data: map[string]interface{}{
			"achievement_id": achievementID,
			"xp_gained":      xp,
		},
	}
}

// StreakWarning is sent to a user whose streak lapses without a completion today.
func StreakWarning(streak int) Event {
	return Event{
		Type:    model.NotifyWarning,
		Title:   "Streak at Risk",
		Message: fmt.Sprintf("Complete a quest today to keep your %d-day streak!", streak),
		Data:    map[string]interface{}{"streak": streak},
	}
}
