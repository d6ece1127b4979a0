package quest

import (
	"context"
	"time"

	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SendReminders notifies owners of open custom quests whose reminder time
// has passed today. Each quest is reminded at most once per day.
func (svc *Service) SendReminders(ctx context.Context, now time.Time) (int, error) {
	local := now.In(svc.cfg.Location)
	today := model.DayKey(local)
	clock := local.Format("15:04")

	var due []model.CustomQuest
	if err := svc.db.WithContext(ctx).
		Where("reminder_enabled = ? AND is_completed = ?", true, false).
		Where("reminder_time <> '' AND reminder_time <= ?", clock).
		Where("COALESCE(last_reminded_on, '') <> ?", today).
		Order("id").Find(&due).Error; err != nil {
		return 0, err
	}

	notifier := svc.pipe.Notifier()
	sent := 0
	for _, q := range due {
		var notes []*model.Notification
		err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			rs := tx.Model(&model.CustomQuest{}).
				Where("id = ? AND COALESCE(last_reminded_on, '') <> ?", q.ID, today).
				Update("last_reminded_on", today)
			if rs.Error != nil || rs.RowsAffected == 0 {
				return rs.Error
			}
			var err error
			notes, err = notifier.Emit(ctx, tx, q.UserID, notify.QuestReminder(q.ID, q.Title))
			return err
		})
		if err != nil {
			svc.logger.Warn("quest reminder failed", zap.Int64("quest_id", q.ID), zap.Error(err))
			continue
		}
		if len(notes) > 0 {
			notifier.Publish(ctx, notes)
			sent++
		}
	}
	return sent, nil
}

// SendStreakWarnings warns users holding a live streak who have not
// completed an assignment today. Each user is warned at most once per day.
func (svc *Service) SendStreakWarnings(ctx context.Context, now time.Time) (int, error) {
	local := now.In(svc.cfg.Location)
	today := model.DayKey(local)
	yesterday := model.DayKey(local.AddDate(0, 0, -1))

	var profiles []model.UserProfile
	if err := svc.db.WithContext(ctx).
		Where("streak > 0 AND last_activity >= ?", yesterday).
		Where("COALESCE(last_warned_on, '') <> ?", today).
		Where("NOT EXISTS (SELECT 1 FROM user_quests WHERE user_quests.user_id = user_profiles.user_id "+
			"AND user_quests.completed = ? AND user_quests.assigned_on = ?)", true, today).
		Order("id").Find(&profiles).Error; err != nil {
		return 0, err
	}

	notifier := svc.pipe.Notifier()
	sent := 0
	for _, p := range profiles {
		var notes []*model.Notification
		err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			rs := tx.Model(&model.UserProfile{}).
				Where("id = ? AND COALESCE(last_warned_on, '') <> ?", p.ID, today).
				Update("last_warned_on", today)
			if rs.Error != nil || rs.RowsAffected == 0 {
				return rs.Error
			}
			var err error
			notes, err = notifier.Emit(ctx, tx, p.UserID, notify.StreakWarning(p.Streak))
			return err
		})
		if err != nil {
			svc.logger.Warn("streak warning failed", zap.Int64("user_id", p.UserID), zap.Error(err))
			continue
		}
		if len(notes) > 0 {
			notifier.Publish(ctx, notes)
			sent++
		}
	}
	return sent, nil
}

// GrantXP credits amount XP to userID outside of any quest, running the same
// level, achievement and notification side effects.
func (svc *Service) GrantXP(ctx context.Context, userID, amount int64, reason string) (*model.UserProfile, error) {
	err := svc.pipe.Run(ctx, userID, func(tx *gorm.DB) ([]notify.Event, error) {
		_, _, events, err := svc.pipe.Credit(ctx, tx, userID, amount)
		return events, err
	})
	if err != nil {
		return nil, err
	}
	profile, err := svc.pipe.Progression().Profile(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	svc.logger.Info("xp granted",
		zap.Int64("user_id", userID),
		zap.Int64("xp", amount),
		zap.String("reason", reason))
	return profile, nil
}
