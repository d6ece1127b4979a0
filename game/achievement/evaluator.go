// Package achievement awards catalog achievements whose requirement a user
// currently meets.
package achievement

import (
	"context"

	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Award is one newly earned achievement and the credit its reward caused.
type Award struct {
	Achievement model.Achievement
	Result      progression.Result
}

// Evaluator checks achievement requirements.
type Evaluator struct {
	db     *gorm.DB
	prog   *progression.Service
	logger *zap.Logger
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(db *gorm.DB, prog *progression.Service, logger *zap.Logger) *Evaluator {
	return &Evaluator{db: db, prog: prog, logger: logger}
}

// Evaluate awards every achievement userID satisfies but has not earned yet.
// Reward XP can unlock further achievements, so passes repeat until one
// awards nothing. Calling it again right away awards nothing.
func (ev *Evaluator) Evaluate(ctx context.Context, tx *gorm.DB, userID int64) ([]Award, error) {
	if tx == nil {
		tx = ev.db
	}
	var awards []Award
	for {
		got, err := ev.pass(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if len(got) == 0 {
			return awards, nil
		}
		awards = append(awards, got...)
	}
}

func (ev *Evaluator) pass(ctx context.Context, tx *gorm.DB, userID int64) ([]Award, error) {
	profile, err := ev.prog.Profile(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var earned []int64
	if err := tx.WithContext(ctx).Model(&model.UserAchievement{}).
		Where("user_id = ?", userID).Pluck("achievement_id", &earned).Error; err != nil {
		return nil, err
	}
	skip := make(map[int64]bool, len(earned))
	for _, id := range earned {
		skip[id] = true
	}

	var all []model.Achievement
	if err := tx.WithContext(ctx).Order("id").Find(&all).Error; err != nil {
		return nil, err
	}

	completed := int64(-1)
	var awards []Award
	for _, a := range all {
		if skip[a.ID] {
			continue
		}
		if a.RequirementType == model.RequirementQuestsCompleted && completed < 0 {
			if completed, err = CompletedQuests(ctx, tx, userID); err != nil {
				return nil, err
			}
		}
		if !meets(a, profile, completed) {
			continue
		}

		rs := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.UserAchievement{UserID: userID, AchievementID: a.ID})
		if rs.Error != nil {
			return nil, rs.Error
		}
		if rs.RowsAffected == 0 {
			continue // earned concurrently
		}

		award := Award{Achievement: a}
		if a.XPReward > 0 {
			p, res, err := ev.prog.Credit(ctx, tx, userID, a.XPReward)
			if err != nil {
				return nil, err
			}
			profile = p
			award.Result = res
		}
		ev.logger.Info("achievement earned",
			zap.Int64("user_id", userID),
			zap.String("achievement", a.Code),
			zap.Int64("xp", a.XPReward))
		awards = append(awards, award)
	}
	return awards, nil
}

func meets(a model.Achievement, p *model.UserProfile, completed int64) bool {
	switch a.RequirementType {
	case model.RequirementLevel:
		return int64(p.Level) >= a.RequirementValue
	case model.RequirementStreak:
		return int64(p.Streak) >= a.RequirementValue
	case model.RequirementQuestsCompleted:
		return completed >= a.RequirementValue
	default:
		return false
	}
}

// CompletedQuests counts userID's completed daily assignments.
func CompletedQuests(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.UserQuest{}).
		Where("user_id = ? AND completed = ?", userID, true).Count(&n).Error
	return n, err
}

// Earned lists userID's achievements, most recent first.
func (ev *Evaluator) Earned(ctx context.Context, userID int64) ([]model.UserAchievement, error) {
	var list []model.UserAchievement
	err := ev.db.WithContext(ctx).Preload("Achievement").
		Where("user_id = ?", userID).
		Order("earned_at DESC, id DESC").
		Find(&list).Error
	return list, err
}
