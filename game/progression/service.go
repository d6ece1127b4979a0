package progression

import (
	"context"
	"errors"

	"github.com/kasuganosora/solotracker/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service persists progression changes. It is the only writer of a
// profile's level, xp, stats and job columns.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new progression Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (svc *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return svc.db
	}
	return tx
}

// EnsureProfile returns userID's profile, creating a level 1 one if absent.
func (svc *Service) EnsureProfile(ctx context.Context, tx *gorm.DB, userID int64, day string) (*model.UserProfile, error) {
	db := svc.conn(tx).WithContext(ctx)
	var p model.UserProfile
	err := db.Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	np := NewProfile(userID, day)
	if err := db.Create(np).Error; err != nil {
		return nil, err
	}
	return np, nil
}

// Profile loads userID's profile.
func (svc *Service) Profile(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserProfile, error) {
	var p model.UserProfile
	err := svc.conn(tx).WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Credit adds amount XP to userID's profile and persists the result. The
// write is conditional on total_xp still holding the value that was read;
// ErrConflict is returned when another credit got there first.
func (svc *Service) Credit(ctx context.Context, tx *gorm.DB, userID, amount int64) (*model.UserProfile, Result, error) {
	if amount < 0 {
		return nil, Result{}, ErrInvalidAmount
	}
	if amount > MaxCredit {
		return nil, Result{}, ErrAmountTooLarge
	}
	p, err := svc.Profile(ctx, tx, userID)
	if err != nil {
		return nil, Result{}, err
	}
	if amount == 0 {
		job := JobClass{Class: p.JobClass, Title: p.JobTitle}
		return p, Result{OldLevel: p.Level, NewLevel: p.Level, OldJob: job, NewJob: job}, nil
	}

	prevTotal := p.TotalXP
	res, err := Apply(p, amount)
	if err != nil {
		return nil, Result{}, err
	}

	rs := svc.conn(tx).WithContext(ctx).Model(&model.UserProfile{}).
		Where("id = ? AND total_xp = ?", p.ID, prevTotal).
		Updates(map[string]interface{}{
			"level":        p.Level,
			"current_xp":   p.CurrentXP,
			"total_xp":     p.TotalXP,
			"strength":     p.Strength,
			"vitality":     p.Vitality,
			"agility":      p.Agility,
			"intelligence": p.Intelligence,
			"perception":   p.Perception,
			"job_class":    p.JobClass,
			"job_title":    p.JobTitle,
		})
	if rs.Error != nil {
		return nil, Result{}, rs.Error
	}
	if rs.RowsAffected == 0 {
		return nil, Result{}, ErrConflict
	}

	if res.LevelUp {
		svc.logger.Info("level up",
			zap.Int64("user_id", userID),
			zap.Int("old_level", res.OldLevel),
			zap.Int("new_level", res.NewLevel))
	}
	return p, res, nil
}

// Entry is one leaderboard row.
type Entry struct {
	Rank      int64  `json:"rank" gorm:"-"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Level     int    `json:"level"`
	TotalXP   int64  `json:"total_xp"`
	JobClass  string `json:"job_class"`
	AvatarURL string `json:"avatar_url"`
}

// Rank is 1 + the number of profiles with strictly more total XP.
func (svc *Service) Rank(ctx context.Context, totalXP int64) (int64, error) {
	var n int64
	if err := svc.db.WithContext(ctx).Model(&model.UserProfile{}).
		Where("total_xp > ?", totalXP).Count(&n).Error; err != nil {
		return 0, err
	}
	return n + 1, nil
}

func (svc *Service) entries(ctx context.Context) *gorm.DB {
	return svc.db.WithContext(ctx).Table("user_profiles").
		Select("user_profiles.user_id, accounts.username, user_profiles.level, " +
			"user_profiles.total_xp, user_profiles.job_class, user_profiles.avatar_url").
		Joins("JOIN accounts ON accounts.id = user_profiles.user_id")
}

// Leaderboard returns the top limit profiles by total XP. Equal totals share
// the rank of the first of them.
func (svc *Service) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	var rows []Entry
	err := svc.entries(ctx).
		Order("user_profiles.total_xp DESC, user_profiles.user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	AssignRanks(rows)
	return rows, nil
}

// Entries loads the unranked leaderboard rows of userIDs, keyed by user id.
func (svc *Service) Entries(ctx context.Context, userIDs []int64) (map[int64]Entry, error) {
	out := make(map[int64]Entry, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []Entry
	if err := svc.entries(ctx).Where("user_profiles.user_id IN ?", userIDs).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.UserID] = r
	}
	return out, nil
}

// AssignRanks numbers rows already sorted by total XP descending. Equal
// totals share a rank.
func AssignRanks(rows []Entry) {
	for i := range rows {
		if i > 0 && rows[i].TotalXP == rows[i-1].TotalXP {
			rows[i].Rank = rows[i-1].Rank
		} else {
			rows[i].Rank = int64(i + 1)
		}
	}
}
