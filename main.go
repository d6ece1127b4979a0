package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	apirest "github.com/kasuganosora/solotracker/api/rest"
	"github.com/kasuganosora/solotracker/audit"
	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/config"
	dbadapter "github.com/kasuganosora/solotracker/db"
	"github.com/kasuganosora/solotracker/game/achievement"
	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/game/pipeline"
	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/game/quest"
	mw "github.com/kasuganosora/solotracker/middleware"
	"github.com/kasuganosora/solotracker/model"
	"github.com/kasuganosora/solotracker/resource"
	"github.com/kasuganosora/solotracker/scheduler"
	"github.com/kasuganosora/solotracker/storage"
	"go.uber.org/zap"
)

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret is required")
	}
	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	loc := cfg.Server.Location()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Quest catalog ----
	rl, err := resource.LoadAndSeed(ctx, db, cfg.Catalog.DataPath)
	if err != nil {
		logger.Fatal("catalog", zap.Error(err))
	}
	logger.Info("catalog loaded",
		zap.Int("categories", len(rl.Categories)),
		zap.Int("quests", len(rl.Quests)),
		zap.Int("achievements", len(rl.Achievements)))

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		logger.Fatal("pubsub", zap.Error(err))
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Services ----
	prog := progression.NewService(db, logger)
	notifier := notify.NewEmitter(db, pubsub, logger)
	eval := achievement.NewEvaluator(db, prog, logger)
	pipe := pipeline.New(db, prog, eval, notifier)
	quests, err := quest.NewService(db, pipe, quest.Config{
		DailyQuestCount:          cfg.Tracker.DailyQuestCount,
		DashboardNotifications:   cfg.Tracker.DashboardNotifications,
		DashboardLeaderboardSize: cfg.Tracker.DashboardLeaderboardSize,
		CatalogCacheSize:         cfg.Tracker.CatalogCacheSize,
		Location:                 loc,
	}, logger)
	if err != nil {
		logger.Fatal("quest service", zap.Error(err))
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger, scheduler.WithLocation(loc), scheduler.WithLocker(c))
	defer sched.Stop()

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), mw.CORS(cfg.Security.AllowedOrigins))

	deps := apirest.Deps{
		DB:            db,
		Cache:         c,
		PubSub:        pubsub,
		Security:      cfg.Security,
		AdminKey:      cfg.Server.AdminKey,
		Tracker:       cfg.Tracker,
		Progression:   prog,
		Quests:        quests,
		Notifier:      notifier,
		Scheduler:     sched,
		Audit:         auditSvc,
		Store:         store,
		MaxAvatarSize: cfg.Storage.MaxAvatarSize,
		CatalogPath:   cfg.Catalog.DataPath,
		Logger:        logger,
	}
	// Local uploads are served by this process; S3 objects by the bucket.
	if cfg.Storage.Mode != storage.ModeS3 && strings.HasPrefix(cfg.Storage.PublicBaseURL, "/") {
		deps.UploadsDir = cfg.Storage.LocalDir
		deps.UploadsPath = cfg.Storage.PublicBaseURL
	}
	routes := apirest.Register(r, deps)

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("reminders", cfg.Tracker.ReminderInterval, func(ctx context.Context) {
		n, err := quests.SendReminders(ctx, time.Now())
		if err != nil {
			logger.Warn("reminders failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("reminders sent", zap.Int("count", n))
		}
	})
	sched.AddTicker("ranking-refresh", cfg.Tracker.RankingRefreshInterval,
		apirest.RefreshRankingTask(routes.Ranking, logger))
	if err := sched.AddDaily("streak-warnings", cfg.Tracker.StreakWarningHour, 0, func(ctx context.Context) {
		n, err := quests.SendStreakWarnings(ctx, time.Now())
		if err != nil {
			logger.Warn("streak warnings failed", zap.Error(err))
			return
		}
		logger.Info("streak warnings sent", zap.Int("count", n))
	}); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
