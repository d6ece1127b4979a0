package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/api/sse"
	"github.com/kasuganosora/solotracker/audit"
	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/config"
	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/game/quest"
	mw "github.com/kasuganosora/solotracker/middleware"
	"github.com/kasuganosora/solotracker/model"
	"github.com/kasuganosora/solotracker/scheduler"
	"github.com/kasuganosora/solotracker/storage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Security config.SecurityConfig
	AdminKey string
	Tracker  config.TrackerConfig

	Progression *progression.Service
	Quests      *quest.Service
	Notifier    *notify.Emitter
	Scheduler   *scheduler.Scheduler
	Audit       *audit.Service // optional

	Store         storage.Store
	MaxAvatarSize int64
	// UploadsDir is served under UploadsPath when set (local storage only).
	UploadsDir  string
	UploadsPath string

	CatalogPath string
	Logger      *zap.Logger
}

// Routes exposes the handlers that background jobs also drive.
type Routes struct {
	Ranking *RankingHandler
	SSE     *sse.Handler
}

// Register mounts every route on r.
func Register(r *gin.Engine, d Deps) *Routes {
	sec := d.Security
	limit := mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst)
	auth := mw.Auth(sec, d.Cache)
	today := func() string { return model.DayKey(d.Quests.Today()) }

	rankH := NewRankingHandler(d.Progression, d.Cache, d.Tracker.LeaderboardSize, d.Logger)
	authH := NewAuthHandler(d.DB, d.Cache, sec, d.Progression, today, d.Audit)
	questH := NewQuestHandler(d.Quests, rankH, d.Audit)
	noteH := NewNotificationHandler(d.Notifier, d.Tracker.NotificationLimit)
	profH := NewProfileHandler(d.DB, d.Quests, d.Store, d.MaxAvatarSize, d.Logger)
	sseH := sse.NewHandler(d.PubSub, d.Cache, d.Notifier, sec, d.Logger)
	adminH := NewAdminHandler(AdminDeps{
		DB:          d.DB,
		Cache:       d.Cache,
		Quests:      d.Quests,
		Ranking:     rankH,
		Scheduler:   d.Scheduler,
		Audit:       d.Audit,
		CatalogPath: d.CatalogPath,
		BanTTL:      sec.JWTTTLH,
		Logger:      d.Logger,
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/sse", sseH.ServeSSE)
	if d.UploadsDir != "" && d.UploadsPath != "" {
		r.Static(d.UploadsPath, d.UploadsDir)
	}

	api := r.Group("/api")
	{
		authG := api.Group("/auth", limit)
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		user := api.Group("", auth, limit)
		user.GET("/dashboard", questH.Dashboard)
		user.GET("/profile", profH.Profile)
		user.POST("/profile/avatar", profH.UploadAvatar)
		user.GET("/leaderboard", rankH.Leaderboard)

		user.POST("/quests/:id/complete", questH.Complete)
		user.GET("/custom-quests", questH.ListCustom)
		user.POST("/custom-quests", questH.CreateCustom)
		user.GET("/custom-quests/:id", questH.GetCustom)
		user.POST("/custom-quests/:id/progress", questH.Progress)

		user.GET("/notifications", noteH.List)
		user.POST("/notifications/:id/read", noteH.MarkRead)
		user.POST("/notifications/read-all", noteH.MarkAllRead)

		adminG := api.Group("/admin", mw.IPWhitelist(sec.AdminIPs), AdminAuth(d.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/xp/grant", adminH.GrantXP)
		adminG.POST("/catalog/reload", adminH.ReloadCatalog)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.POST("/ranking/refresh", rankH.RefreshRanking)
		adminG.POST("/announce", sseH.PostAnnouncement)
		adminG.GET("/audit", adminH.AuditLog)
		if d.Scheduler != nil {
			adminG.GET("/scheduler", adminH.ListSchedulerTasks)
			adminG.POST("/scheduler/:name/run", adminH.RunSchedulerTask)
		}
	}

	return &Routes{Ranking: rankH, SSE: sseH}
}
