package quest

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompletionResult is returned to the caller of CompleteAssigned.
type CompletionResult struct {
	Success   bool  `json:"success"`
	LevelUp   bool  `json:"level_up"`
	NewLevel  int   `json:"new_level"`
	XPGained  int64 `json:"xp_gained"`
	CurrentXP int64 `json:"current_xp"`
	TotalXP   int64 `json:"total_xp"`
}

// AssignDaily makes sure userID has its daily assignments for day. Rows are
// created only when none exist for that day yet.
func (svc *Service) AssignDaily(ctx context.Context, userID int64, day time.Time) ([]model.UserQuest, error) {
	key := model.DayKey(day)
	db := svc.db.WithContext(ctx)

	var n int64
	if err := db.Model(&model.UserQuest{}).
		Where("user_id = ? AND assigned_on = ?", userID, key).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		var daily []model.Quest
		if err := db.Where("is_daily = ? AND is_active = ?", true, true).
			Order("id").Limit(svc.cfg.DailyQuestCount).Find(&daily).Error; err != nil {
			return nil, err
		}
		if len(daily) > 0 {
			rows := make([]model.UserQuest, len(daily))
			for i, q := range daily {
				rows[i] = model.UserQuest{UserID: userID, QuestID: q.ID, AssignedOn: key}
			}
			// A concurrent first visit may have inserted the same rows.
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
				return nil, err
			}
			svc.logger.Debug("daily quests assigned",
				zap.Int64("user_id", userID), zap.String("day", key), zap.Int("count", len(rows)))
		}
	}
	return svc.DayQuests(ctx, userID, key)
}

// DayQuests lists userID's assignments for the given DayLayout day.
func (svc *Service) DayQuests(ctx context.Context, userID int64, day string) ([]model.UserQuest, error) {
	var list []model.UserQuest
	if err := svc.db.WithContext(ctx).
		Where("user_id = ? AND assigned_on = ?", userID, day).
		Order("id").Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		q, err := svc.catalogQuest(ctx, svc.db, list[i].QuestID)
		if err != nil {
			return nil, err
		}
		list[i].Quest = *q
	}
	return list, nil
}

// CompleteAssigned completes one of userID's assignments and credits its XP.
// The completed flag is flipped with a conditional update, so a repeated or
// concurrent request fails with ErrAlreadyCompleted instead of crediting twice.
func (svc *Service) CompleteAssigned(ctx context.Context, userID, userQuestID int64) (*CompletionResult, error) {
	var (
		out      *CompletionResult
		oldLevel int
	)
	err := svc.pipe.Run(ctx, userID, func(tx *gorm.DB) ([]notify.Event, error) {
		var uq model.UserQuest
		err := tx.WithContext(ctx).Where("id = ? AND user_id = ?", userQuestID, userID).First(&uq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if uq.Completed {
			return nil, ErrAlreadyCompleted
		}

		now := svc.now()
		rs := tx.WithContext(ctx).Model(&model.UserQuest{}).
			Where("id = ? AND completed = ?", uq.ID, false).
			Updates(map[string]interface{}{"completed": true, "completed_at": now})
		if rs.Error != nil {
			return nil, rs.Error
		}
		if rs.RowsAffected == 0 {
			return nil, ErrAlreadyCompleted
		}

		q, err := svc.catalogQuest(ctx, tx, uq.QuestID)
		if err != nil {
			return nil, err
		}
		profile, res, events, err := svc.pipe.Credit(ctx, tx, userID, q.XPReward)
		if err != nil {
			return nil, err
		}
		oldLevel = res.OldLevel
		out = &CompletionResult{
			Success:   true,
			LevelUp:   res.LevelUp,
			NewLevel:  profile.Level,
			XPGained:  q.XPReward,
			CurrentXP: profile.CurrentXP,
			TotalXP:   profile.TotalXP,
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	// Achievement rewards credited during settlement are not in the
	// profile Credit returned.
	profile, err := svc.pipe.Progression().Profile(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	out.NewLevel, out.CurrentXP, out.TotalXP = profile.Level, profile.CurrentXP, profile.TotalXP
	out.LevelUp = out.NewLevel > oldLevel
	svc.logger.Info("quest completed",
		zap.Int64("user_id", userID),
		zap.Int64("user_quest_id", userQuestID),
		zap.Int64("xp", out.XPGained))
	return out, nil
}

// UpdateStreak runs the once-per-day streak bookkeeping for day. A quest
// completed on the previous day extends the streak when the user was also
// active that day; a gap of two or more days resets it. It reports whether
// anything changed.
func (svc *Service) UpdateStreak(ctx context.Context, userID int64, day time.Time) (bool, error) {
	today := model.DayKey(day)
	yesterday := model.DayKey(day.AddDate(0, 0, -1))

	profile, err := svc.pipe.Progression().Profile(ctx, nil, userID)
	if err != nil {
		return false, err
	}
	if profile.LastActivity >= today {
		return false, nil
	}

	changed := false
	err = svc.pipe.Run(ctx, userID, func(tx *gorm.DB) ([]notify.Event, error) {
		var done int64
		if err := tx.WithContext(ctx).Model(&model.UserQuest{}).
			Where("user_id = ? AND completed = ? AND assigned_on = ?", userID, true, yesterday).
			Count(&done).Error; err != nil {
			return nil, err
		}

		streak := profile.Streak
		switch {
		case done > 0 && profile.LastActivity == yesterday:
			streak++
		case profile.LastActivity < yesterday:
			streak = 0
		}

		rs := tx.WithContext(ctx).Model(&model.UserProfile{}).
			Where("id = ? AND last_activity = ?", profile.ID, profile.LastActivity).
			Updates(map[string]interface{}{"streak": streak, "last_activity": today})
		if rs.Error != nil {
			return nil, rs.Error
		}
		changed = rs.RowsAffected > 0
		return nil, nil
	})
	return changed, err
}
