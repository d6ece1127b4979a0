package rest

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/audit"
	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/game/quest"
	mw "github.com/kasuganosora/solotracker/middleware"
	"github.com/kasuganosora/solotracker/model"
	"github.com/kasuganosora/solotracker/resource"
	"github.com/kasuganosora/solotracker/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db          *gorm.DB
	cache       cache.Cache
	quests      *quest.Service
	ranking     *RankingHandler
	sched       *scheduler.Scheduler
	audit       *audit.Service
	catalogPath string
	banTTL      time.Duration
	logger      *zap.Logger
}

// AdminDeps groups the AdminHandler collaborators.
type AdminDeps struct {
	DB          *gorm.DB
	Cache       cache.Cache
	Quests      *quest.Service
	Ranking     *RankingHandler
	Scheduler   *scheduler.Scheduler
	Audit       *audit.Service
	CatalogPath string
	// BanTTL should cover the longest session lifetime.
	BanTTL time.Duration
	Logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(d AdminDeps) *AdminHandler {
	if d.BanTTL <= 0 {
		d.BanTTL = 72 * time.Hour
	}
	return &AdminHandler{
		db:          d.DB,
		cache:       d.Cache,
		quests:      d.Quests,
		ranking:     d.Ranking,
		sched:       d.Scheduler,
		audit:       d.Audit,
		catalogPath: d.CatalogPath,
		banTTL:      d.BanTTL,
		logger:      d.Logger,
	}
}

// Metrics returns tracker health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	today := model.DayKey(h.quests.Today())

	var users, activeQuests, completedToday, openCustom, unread int64
	counts := []struct {
		dst *int64
		q   *gorm.DB
	}{
		{&users, db.Model(&model.UserProfile{})},
		{&activeQuests, db.Model(&model.Quest{}).Where("is_active = ?", true)},
		{&completedToday, db.Model(&model.UserQuest{}).Where("assigned_on = ? AND completed = ?", today, true)},
		{&openCustom, db.Model(&model.CustomQuest{}).Where("is_completed = ?", false)},
		{&unread, db.Model(&model.Notification{}).Where("is_read = ?", false)},
	}
	for _, ct := range counts {
		if err := ct.q.Count(ct.dst).Error; err != nil {
			writeError(c, err)
			return
		}
	}

	resp := gin.H{
		"users":                users,
		"active_catalog":       activeQuests,
		"completed_today":      completedToday,
		"open_custom_quests":   openCustom,
		"unread_notifications": unread,
		"day":                  today,
	}
	if h.sched != nil {
		resp["scheduler_tasks"] = h.sched.Names()
	}
	c.JSON(http.StatusOK, resp)
}

type grantRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason" binding:"max=200"`
}

// GrantXP credits XP to a user through the normal progression pipeline.
// POST /api/admin/xp/grant
func (h *AdminHandler) GrantXP(c *gin.Context) {
	start := time.Now()
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	p, err := h.quests.GrantXP(ctx, req.UserID, req.Amount, req.Reason)
	record(h.audit, c, req.UserID, audit.ActionXPGrant, start, req, p, err)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.ranking != nil {
		h.ranking.Touch(ctx, p.UserID, p.TotalXP)
	}
	h.logger.Info("admin granted xp",
		zap.Int64("user_id", req.UserID), zap.Int64("xp", req.Amount), zap.String("reason", req.Reason))
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// ReloadCatalog re-reads the catalog files and upserts them.
// POST /api/admin/catalog/reload
func (h *AdminHandler) ReloadCatalog(c *gin.Context) {
	start := time.Now()
	rl, err := resource.LoadAndSeed(c.Request.Context(), h.db, h.catalogPath)
	if err != nil {
		record(h.audit, c, 0, audit.ActionCatalogReload, start, nil, nil, err)
		h.logger.Error("catalog reload failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	h.quests.PurgeCatalog()
	resp := gin.H{
		"categories":   len(rl.Categories),
		"quests":       len(rl.Quests),
		"achievements": len(rl.Achievements),
	}
	record(h.audit, c, 0, audit.ActionCatalogReload, start, nil, resp, nil)
	c.JSON(http.StatusOK, resp)
}

// BanAccount bans or unbans an account. A ban also blocks live sessions.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	start := time.Now()
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Ban {
		status = 0
	}
	ctx := c.Request.Context()
	result := h.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", userID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	var err error
	if req.Ban {
		err = h.cache.Set(ctx, mw.BannedKey(userID), "1", h.banTTL)
	} else {
		err = h.cache.Del(ctx, mw.BannedKey(userID))
	}
	record(h.audit, c, userID, audit.ActionAccountBan, start, req, gin.H{"status": status}, err)
	if err != nil {
		h.logger.Warn("ban cache update failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// ListSchedulerTasks returns all registered tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RunSchedulerTask runs a task immediately.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunSchedulerTask(c *gin.Context) {
	err := h.sched.RunNow(c.Param("name"))
	if errors.Is(err, scheduler.ErrUnknownTask) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AuditLog returns recent audit entries.
// GET /api/admin/audit?user_id=&limit=
func (h *AdminHandler) AuditLog(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []model.AuditLog{}})
		return
	}
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.audit.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs})
}

// RefreshRankingTask adapts RankingHandler.Refresh for the scheduler.
func RefreshRankingTask(h *RankingHandler, logger *zap.Logger) scheduler.TaskFn {
	return func(ctx context.Context) {
		if _, err := h.Refresh(ctx); err != nil {
			logger.Warn("ranking refresh failed", zap.Error(err))
		}
	}
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
