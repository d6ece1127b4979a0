package testutil

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/config"
	dbadapter "github.com/kasuganosora/solotracker/db"
	"github.com/kasuganosora/solotracker/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var nameReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// SetupTestDB opens a private in-memory SQLite database and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := nameReplacer.Replace(t.Name()) + "_" + uuid.NewString()[:8]
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: "file:" + name + "?mode=memory&cache=shared",
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := config.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// CreateAccount inserts an account and its starting profile.
func CreateAccount(t *testing.T, db *gorm.DB, username string) (*model.Account, *model.UserProfile) {
	t.Helper()
	acc := &model.Account{Username: username, PasswordHash: "x", Status: 1}
	require.NoError(t, db.Create(acc).Error)
	p := &model.UserProfile{
		UserID:       acc.ID,
		Level:        1,
		Strength:     10,
		Vitality:     10,
		Agility:      10,
		Intelligence: 10,
		Perception:   10,
		JobClass:     "E-Rank Hunter",
		JobTitle:     "Novice Hunter",
	}
	require.NoError(t, db.Create(p).Error)
	return acc, p
}
