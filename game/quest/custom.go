package quest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxTitleLen    = 200
	maxTargetCount = 10000
)

// baseXP is the per-unit reward of a custom quest by difficulty.
var baseXP = map[string]int64{
	model.DifficultyEasy:   50,
	model.DifficultyMedium: 100,
	model.DifficultyHard:   200,
	model.DifficultyEpic:   400,
}

var questTypes = map[string]bool{
	model.QuestTypeDaily:  true,
	model.QuestTypeWeekly: true,
	model.QuestTypeCustom: true,
}

// CustomXP is the reward fixed at creation: base XP × target count.
func CustomXP(difficulty string, targetCount int) (int64, bool) {
	base, ok := baseXP[difficulty]
	if !ok || targetCount < 1 || targetCount > maxTargetCount {
		return 0, false
	}
	return base * int64(targetCount), true
}

// CustomQuestInput is the user-supplied part of a custom quest.
type CustomQuestInput struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Difficulty      string `json:"difficulty"`
	QuestType       string `json:"quest_type"`
	TargetCount     int    `json:"target_count"`
	ReminderTime    string `json:"reminder_time"` // HH:MM
	ReminderEnabled bool   `json:"reminder_enabled"`
}

func (in *CustomQuestInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLen {
		return fmt.Errorf("%w: title is longer than %d characters", ErrInvalidInput, maxTitleLen)
	}
	if _, ok := baseXP[in.Difficulty]; !ok {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, in.Difficulty)
	}
	if in.QuestType == "" {
		in.QuestType = model.QuestTypeCustom
	}
	if !questTypes[in.QuestType] {
		return fmt.Errorf("%w: unknown quest type %q", ErrInvalidInput, in.QuestType)
	}
	if in.TargetCount == 0 {
		in.TargetCount = 1
	}
	if in.TargetCount < 1 || in.TargetCount > maxTargetCount {
		return fmt.Errorf("%w: target count must be between 1 and %d", ErrInvalidInput, maxTargetCount)
	}
	in.ReminderTime = strings.TrimSpace(in.ReminderTime)
	if in.ReminderTime != "" {
		t, err := time.Parse("15:04", in.ReminderTime)
		if err != nil {
			return fmt.Errorf("%w: reminder time must be HH:MM", ErrInvalidInput)
		}
		in.ReminderTime = t.Format("15:04")
	}
	if in.ReminderEnabled && in.ReminderTime == "" {
		return fmt.Errorf("%w: reminder enabled without a reminder time", ErrInvalidInput)
	}
	return nil
}

// CustomQuestView adds derived fields to a custom quest.
type CustomQuestView struct {
	model.CustomQuest
	ProgressPercentage float64 `json:"progress_percentage"`
	IsOverdue          bool    `json:"is_overdue"`
}

func (svc *Service) view(q model.CustomQuest) CustomQuestView {
	return CustomQuestView{
		CustomQuest:        q,
		ProgressPercentage: q.ProgressPercentage(),
		IsOverdue:          q.IsOverdue(model.DayKey(svc.Today()), svc.cfg.Location),
	}
}

// CreateCustom stores a new custom quest for userID and notifies them.
func (svc *Service) CreateCustom(ctx context.Context, userID int64, in CustomQuestInput) (*CustomQuestView, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	xp, _ := CustomXP(in.Difficulty, in.TargetCount)
	q := &model.CustomQuest{
		UserID:          userID,
		Title:           in.Title,
		Description:     in.Description,
		Difficulty:      in.Difficulty,
		XPReward:        xp,
		QuestType:       in.QuestType,
		ReminderTime:    in.ReminderTime,
		ReminderEnabled: in.ReminderEnabled,
		TargetCount:     in.TargetCount,
		CreatedAt:       svc.now(),
	}

	notifier := svc.pipe.Notifier()
	var notes []*model.Notification
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(q).Error; err != nil {
			return err
		}
		var err error
		notes, err = notifier.Emit(ctx, tx, userID, notify.QuestCreated(q.ID, q.Title))
		return err
	})
	if err != nil {
		return nil, err
	}
	notifier.Publish(ctx, notes)

	v := svc.view(*q)
	return &v, nil
}

// ListCustom returns userID's custom quests, newest first.
func (svc *Service) ListCustom(ctx context.Context, userID int64, includeCompleted bool) ([]CustomQuestView, error) {
	db := svc.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeCompleted {
		db = db.Where("is_completed = ?", false)
	}
	var list []model.CustomQuest
	if err := db.Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	out := make([]CustomQuestView, len(list))
	for i, q := range list {
		out[i] = svc.view(q)
	}
	return out, nil
}

// GetCustom loads one of userID's custom quests.
func (svc *Service) GetCustom(ctx context.Context, userID, questID int64) (*CustomQuestView, error) {
	var q model.CustomQuest
	err := svc.db.WithContext(ctx).Where("id = ? AND user_id = ?", questID, userID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v := svc.view(q)
	return &v, nil
}

// ProgressResult is returned to the caller of AdvanceCustom.
type ProgressResult struct {
	Success      bool    `json:"success"`
	Completed    bool    `json:"completed"`
	Progress     float64 `json:"progress"`
	CurrentCount int     `json:"current_count"`
	TargetCount  int     `json:"target_count"`
	XPGained     int64   `json:"xp_gained"`
	LevelUp      bool    `json:"level_up"`
	NewLevel     int     `json:"new_level"`
	TotalXP      int64   `json:"total_xp"`
}

// AdvanceCustom adds one unit of progress to a custom quest. The counter
// keeps counting past the target; the reward and completion notification
// are issued only by the call that flips is_completed.
func (svc *Service) AdvanceCustom(ctx context.Context, userID, questID int64) (*ProgressResult, error) {
	var (
		out      *ProgressResult
		oldLevel int
	)
	err := svc.pipe.Run(ctx, userID, func(tx *gorm.DB) ([]notify.Event, error) {
		db := tx.WithContext(ctx)
		rs := db.Model(&model.CustomQuest{}).
			Where("id = ? AND user_id = ?", questID, userID).
			Update("current_count", gorm.Expr("current_count + ?", 1))
		if rs.Error != nil {
			return nil, rs.Error
		}
		if rs.RowsAffected == 0 {
			return nil, ErrNotFound
		}

		rs = db.Model(&model.CustomQuest{}).
			Where("id = ? AND is_completed = ? AND current_count >= target_count", questID, false).
			Updates(map[string]interface{}{"is_completed": true, "completed_at": svc.now()})
		if rs.Error != nil {
			return nil, rs.Error
		}
		justCompleted := rs.RowsAffected > 0

		var q model.CustomQuest
		if err := db.First(&q, questID).Error; err != nil {
			return nil, err
		}
		out = &ProgressResult{
			Success:      true,
			Completed:    q.IsCompleted,
			Progress:     q.ProgressPercentage(),
			CurrentCount: q.CurrentCount,
			TargetCount:  q.TargetCount,
		}
		if !justCompleted {
			return nil, nil
		}

		_, res, events, err := svc.pipe.Credit(ctx, tx, userID, q.XPReward)
		if err != nil {
			return nil, err
		}
		out.XPGained = q.XPReward
		out.LevelUp = res.LevelUp
		oldLevel = res.OldLevel
		svc.logger.Info("custom quest completed",
			zap.Int64("user_id", userID),
			zap.Int64("quest_id", q.ID),
			zap.Int64("xp", q.XPReward))
		return append([]notify.Event{notify.QuestCompleted(q.ID, q.Title, q.XPReward, res.LevelUp)}, events...), nil
	})
	if err != nil {
		return nil, err
	}
	profile, err := svc.pipe.Progression().Profile(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if out.XPGained > 0 && profile.Level > oldLevel {
		out.LevelUp = true
	}
	out.NewLevel, out.TotalXP = profile.Level, profile.TotalXP
	return out, nil
}
