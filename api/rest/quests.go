package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/audit"
	"github.com/kasuganosora/solotracker/game/quest"
	mw "github.com/kasuganosora/solotracker/middleware"
)

// QuestHandler serves the dashboard, daily quests and custom quests.
type QuestHandler struct {
	quests  *quest.Service
	ranking *RankingHandler
	audit   *audit.Service
}

// NewQuestHandler creates a QuestHandler. ranking and a may be nil.
func NewQuestHandler(quests *quest.Service, ranking *RankingHandler, a *audit.Service) *QuestHandler {
	return &QuestHandler{quests: quests, ranking: ranking, audit: a}
}

// Dashboard handles GET /api/dashboard.
func (h *QuestHandler) Dashboard(c *gin.Context) {
	d, err := h.quests.Dashboard(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Complete handles POST /api/quests/:id/complete, where id is the daily
// assignment id.
func (h *QuestHandler) Complete(c *gin.Context) {
	start := time.Now()
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID := mw.GetUserID(c)
	ctx := c.Request.Context()

	res, err := h.quests.CompleteAssigned(ctx, userID, id)
	record(h.audit, c, userID, audit.ActionQuestComplete, start, gin.H{"user_quest_id": id}, res, err)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.ranking != nil {
		h.ranking.Touch(ctx, userID, res.TotalXP)
	}
	c.JSON(http.StatusOK, res)
}

// ListCustom handles GET /api/custom-quests?include_completed=true.
func (h *QuestHandler) ListCustom(c *gin.Context) {
	all := c.Query("include_completed") == "true"
	list, err := h.quests.ListCustom(c.Request.Context(), mw.GetUserID(c), all)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": list})
}

// GetCustom handles GET /api/custom-quests/:id.
func (h *QuestHandler) GetCustom(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	q, err := h.quests.GetCustom(c.Request.Context(), mw.GetUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// CreateCustom handles POST /api/custom-quests.
func (h *QuestHandler) CreateCustom(c *gin.Context) {
	start := time.Now()
	var in quest.CustomQuestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := mw.GetUserID(c)
	q, err := h.quests.CreateCustom(c.Request.Context(), userID, in)
	record(h.audit, c, userID, audit.ActionCustomCreate, start, in, q, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// Progress handles POST /api/custom-quests/:id/progress.
func (h *QuestHandler) Progress(c *gin.Context) {
	start := time.Now()
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID := mw.GetUserID(c)
	ctx := c.Request.Context()
	res, err := h.quests.AdvanceCustom(ctx, userID, id)
	record(h.audit, c, userID, audit.ActionCustomProgress, start, gin.H{"quest_id": id}, res, err)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.ranking != nil && res.XPGained > 0 {
		h.ranking.Touch(ctx, userID, res.TotalXP)
	}
	c.JSON(http.StatusOK, res)
}
