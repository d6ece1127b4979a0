package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// Timezone decides where a calendar day starts for streaks and daily quests.
	Timezone string `mapstructure:"timezone"`
}

// Location resolves Timezone, falling back to UTC when it is empty or unknown.
func (s ServerConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	// AdminIPs restricts admin routes to these client IPs. Empty allows any IP
	// that presents the admin key.
	AdminIPs []string `mapstructure:"admin_ips"`
	// AllowedOrigins feeds CORS. Empty allows any origin without credentials.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TrackerConfig tunes the quest tracker.
type TrackerConfig struct {
	DailyQuestCount          int           `mapstructure:"daily_quest_count"`
	NotificationLimit        int           `mapstructure:"notification_limit"`
	DashboardNotifications   int           `mapstructure:"dashboard_notifications"`
	LeaderboardSize          int           `mapstructure:"leaderboard_size"`
	DashboardLeaderboardSize int           `mapstructure:"dashboard_leaderboard_size"`
	ReminderInterval         time.Duration `mapstructure:"reminder_interval"`
	RankingRefreshInterval   time.Duration `mapstructure:"ranking_refresh_interval"`
	StreakWarningHour        int           `mapstructure:"streak_warning_hour"`
	CatalogCacheSize         int           `mapstructure:"catalog_cache_size"`
}

type CatalogConfig struct {
	DataPath string `mapstructure:"data_path"`
}

type StorageConfig struct {
	Mode          string `mapstructure:"mode"` // local | s3
	LocalDir      string `mapstructure:"local_dir"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	MaxAvatarSize int64  `mapstructure:"max_avatar_size"`
}

// Load reads config from the given YAML file path. A missing file is not an
// error: defaults and SOLO_* environment variables are used instead.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("solo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/tracker.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.postgres_dsn", "")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.admin_ips", []string{})
	v.SetDefault("security.allowed_origins", []string{})
	v.SetDefault("tracker.daily_quest_count", 4)
	v.SetDefault("tracker.notification_limit", 5)
	v.SetDefault("tracker.dashboard_notifications", 3)
	v.SetDefault("tracker.leaderboard_size", 50)
	v.SetDefault("tracker.dashboard_leaderboard_size", 10)
	v.SetDefault("tracker.reminder_interval", "1m")
	v.SetDefault("tracker.ranking_refresh_interval", "1m")
	v.SetDefault("tracker.streak_warning_hour", 20)
	v.SetDefault("tracker.catalog_cache_size", 256)
	v.SetDefault("catalog.data_path", "./data/catalog")
	v.SetDefault("storage.mode", "local")
	v.SetDefault("storage.local_dir", "./data/uploads")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.public_base_url", "/uploads")
	v.SetDefault("storage.max_avatar_size", 2<<20)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
