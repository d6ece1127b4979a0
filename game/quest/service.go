// Package quest tracks daily catalog assignments, user-authored custom
// quests, streaks and the dashboard read model built from them.
package quest

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/kasuganosora/solotracker/game/pipeline"
	"github.com/kasuganosora/solotracker/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("quest: not found")
	ErrAlreadyCompleted = errors.New("quest: already completed")
	ErrInvalidInput     = errors.New("quest: invalid input")
)

// Config tunes the tracker.
type Config struct {
	DailyQuestCount          int
	DashboardNotifications   int
	DashboardLeaderboardSize int
	CatalogCacheSize         int
	// Location decides where a calendar day begins.
	Location *time.Location
}

func (c *Config) defaults() {
	if c.DailyQuestCount <= 0 {
		c.DailyQuestCount = 4
	}
	if c.DashboardNotifications <= 0 {
		c.DashboardNotifications = 3
	}
	if c.DashboardLeaderboardSize <= 0 {
		c.DashboardLeaderboardSize = 10
	}
	if c.CatalogCacheSize <= 0 {
		c.CatalogCacheSize = 256
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Service handles all quest operations.
type Service struct {
	db      *gorm.DB
	pipe    *pipeline.Pipeline
	cfg     Config
	catalog *lru.Cache // quest id → *model.Quest
	now     func() time.Time
	logger  *zap.Logger
}

// NewService creates a new quest Service.
func NewService(db *gorm.DB, pipe *pipeline.Pipeline, cfg Config, logger *zap.Logger) (*Service, error) {
	cfg.defaults()
	catalog, err := lru.New(cfg.CatalogCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:      db,
		pipe:    pipe,
		cfg:     cfg,
		catalog: catalog,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// SetClock replaces the time source. Tests only.
func (svc *Service) SetClock(now func() time.Time) { svc.now = now }

// Today is the current calendar day in the tracker's location.
func (svc *Service) Today() time.Time {
	t := svc.now().In(svc.cfg.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, svc.cfg.Location)
}

// PurgeCatalog drops cached catalog quests after the catalog was reseeded.
func (svc *Service) PurgeCatalog() { svc.catalog.Purge() }

func (svc *Service) catalogQuest(ctx context.Context, tx *gorm.DB, id int64) (*model.Quest, error) {
	if v, ok := svc.catalog.Get(id); ok {
		return v.(*model.Quest), nil
	}
	var q model.Quest
	if err := tx.WithContext(ctx).Preload("Category").First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	svc.catalog.Add(id, &q)
	return &q, nil
}
