package resource

import (
	"context"

	"github.com/kasuganosora/solotracker/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func upsertOn(cols ...string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}
}

// Seed writes the loaded catalog into db. Rows are matched by code, so
// seeding is idempotent and a reload updates existing entries in place.
func Seed(ctx context.Context, db *gorm.DB, rl *ResourceLoader) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range rl.Categories {
			row := model.QuestCategory{Code: c.Code, Name: c.Name, Icon: c.Icon, Color: c.Color}
			if err := tx.Clauses(upsertOn("name", "icon", "color")).Create(&row).Error; err != nil {
				return err
			}
		}

		var cats []model.QuestCategory
		if err := tx.Find(&cats).Error; err != nil {
			return err
		}
		catIDs := make(map[string]int64, len(cats))
		for _, c := range cats {
			catIDs[c.Code] = c.ID
		}

		for _, q := range rl.Quests {
			row := model.Quest{
				Code:        q.Code,
				Title:       q.Title,
				Description: q.Description,
				CategoryID:  catIDs[q.Category],
				Difficulty:  q.Difficulty,
				XPReward:    q.XPReward,
				IsDaily:     q.IsDaily == nil || *q.IsDaily,
				IsActive:    q.IsActive == nil || *q.IsActive,
			}
			if err := tx.Clauses(upsertOn("title", "description", "category_id", "difficulty",
				"xp_reward", "is_daily", "is_active")).Create(&row).Error; err != nil {
				return err
			}
		}

		for _, a := range rl.Achievements {
			row := model.Achievement{
				Code:             a.Code,
				Name:             a.Name,
				Description:      a.Description,
				Icon:             a.Icon,
				RequirementType:  a.RequirementType,
				RequirementValue: a.RequirementValue,
				XPReward:         a.XPReward,
			}
			if err := tx.Clauses(upsertOn("name", "description", "icon", "requirement_type",
				"requirement_value", "xp_reward")).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAndSeed loads the catalog under dataPath and seeds it into db.
func LoadAndSeed(ctx context.Context, db *gorm.DB, dataPath string) (*ResourceLoader, error) {
	rl := NewLoader(dataPath)
	if err := rl.Load(); err != nil {
		return nil, err
	}
	if err := Seed(ctx, db, rl); err != nil {
		return nil, err
	}
	return rl, nil
}
