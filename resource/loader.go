package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
	"github.com/kasuganosora/solotracker/model"
)

// ---- Catalog Data Structures ----

type Category struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

type QuestDef struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"` // category code or name
	Difficulty  string `json:"difficulty"`
	XPReward    int64  `json:"xp_reward"`
	IsDaily     *bool  `json:"is_daily"`
	IsActive    *bool  `json:"is_active"`
}

type AchievementDef struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Icon             string `json:"icon"`
	RequirementType  string `json:"requirement_type"`
	RequirementValue int64  `json:"requirement_value"`
	XPReward         int64  `json:"xp_reward"`
}

// ResourceLoader reads the quest catalog from DataPath. Each file that is
// absent falls back to the built-in default for that section.
type ResourceLoader struct {
	DataPath string

	Categories   []*Category
	Quests       []*QuestDef
	Achievements []*AchievementDef
}

// NewLoader creates a ResourceLoader for the given directory.
func NewLoader(dataPath string) *ResourceLoader {
	return &ResourceLoader{DataPath: dataPath}
}

// Load reads categories.json, quests.json and achievements.json.
func (rl *ResourceLoader) Load() error {
	loaders := []func() error{
		rl.loadCategories,
		rl.loadQuests,
		rl.loadAchievements,
	}
	for _, fn := range loaders {
		if err := fn(); err != nil {
			return err
		}
	}
	return rl.normalize()
}

func (rl *ResourceLoader) path(file string) string {
	return filepath.Join(rl.DataPath, file)
}

func loadJSONArray[T any](path string) ([]*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", path, err)
	}
	var arr []*T
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return arr, nil
}

// loadOrDefault loads path, or returns def when the file does not exist.
func loadOrDefault[T any](path string, def []*T) ([]*T, error) {
	arr, err := loadJSONArray[T](path)
	if errors.Is(err, os.ErrNotExist) {
		return def, nil
	}
	return arr, err
}

func (rl *ResourceLoader) loadCategories() error {
	var err error
	rl.Categories, err = loadOrDefault(rl.path("categories.json"), defaultCategories())
	return err
}

func (rl *ResourceLoader) loadQuests() error {
	var err error
	rl.Quests, err = loadOrDefault(rl.path("quests.json"), defaultQuests())
	return err
}

func (rl *ResourceLoader) loadAchievements() error {
	var err error
	rl.Achievements, err = loadOrDefault(rl.path("achievements.json"), defaultAchievements())
	return err
}

var difficulties = map[string]bool{
	model.DifficultyEasy:   true,
	model.DifficultyMedium: true,
	model.DifficultyHard:   true,
	model.DifficultyEpic:   true,
}

// normalize fills missing codes from names and rejects malformed entries.
func (rl *ResourceLoader) normalize() error {
	cats := make(map[string]bool, len(rl.Categories))
	for _, c := range rl.Categories {
		if c == nil || c.Name == "" {
			return fmt.Errorf("resource: category without a name")
		}
		if c.Code == "" {
			c.Code = slug.Make(c.Name)
		}
		cats[c.Code] = true
	}
	seen := make(map[string]bool, len(rl.Quests))
	for _, q := range rl.Quests {
		if q == nil || q.Title == "" {
			return fmt.Errorf("resource: quest without a title")
		}
		if q.Code == "" {
			q.Code = slug.Make(q.Title)
		}
		if seen[q.Code] {
			return fmt.Errorf("resource: duplicate quest code %q", q.Code)
		}
		seen[q.Code] = true
		if !difficulties[q.Difficulty] {
			return fmt.Errorf("resource: quest %q: unknown difficulty %q", q.Code, q.Difficulty)
		}
		if q.XPReward < 0 {
			return fmt.Errorf("resource: quest %q: negative xp_reward", q.Code)
		}
		if !cats[q.Category] {
			q.Category = slug.Make(q.Category)
			if !cats[q.Category] {
				return fmt.Errorf("resource: quest %q: unknown category", q.Code)
			}
		}
	}
	for _, a := range rl.Achievements {
		if a == nil || a.Name == "" {
			return fmt.Errorf("resource: achievement without a name")
		}
		if a.Code == "" {
			a.Code = slug.Make(a.Name)
		}
		if a.XPReward < 0 {
			return fmt.Errorf("resource: achievement %q: negative xp_reward", a.Code)
		}
	}
	return nil
}

// QuestByCode finds a loaded quest definition.
func (rl *ResourceLoader) QuestByCode(code string) *QuestDef {
	for _, q := range rl.Quests {
		if q.Code == code {
			return q
		}
	}
	return nil
}
