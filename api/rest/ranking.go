package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/game/progression"
	mw "github.com/kasuganosora/solotracker/middleware"
	"go.uber.org/zap"
)

// RankingZKey is the sorted set of user id → total XP.
const RankingZKey = "ranking:total_xp"

// RankingHandler serves the leaderboard from the cached sorted set, falling
// back to the database when the set is empty.
type RankingHandler struct {
	prog   *progression.Service
	cache  cache.Cache
	size   int
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler that keeps the top size users cached.
func NewRankingHandler(prog *progression.Service, c cache.Cache, size int, logger *zap.Logger) *RankingHandler {
	if size <= 0 {
		size = 50
	}
	return &RankingHandler{prog: prog, cache: c, size: size, logger: logger}
}

// Leaderboard handles GET /api/leaderboard?limit=10.
// The response also carries the caller's own rank.
func (h *RankingHandler) Leaderboard(c *gin.Context) {
	limit := h.size
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= h.size {
		limit = l
	}
	ctx := c.Request.Context()

	entries, err := h.Top(ctx, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"leaderboard": entries}
	if p, err := h.prog.Profile(ctx, nil, mw.GetUserID(c)); err == nil {
		if rank, err := h.prog.Rank(ctx, p.TotalXP); err == nil {
			resp["my_rank"] = rank
			resp["my_total_xp"] = p.TotalXP
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Top returns the first limit leaderboard rows.
func (h *RankingHandler) Top(ctx context.Context, limit int) ([]progression.Entry, error) {
	members, err := h.cache.ZRevRangeWithScores(ctx, RankingZKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		if entries, err := h.fromCache(ctx, members); err == nil {
			return entries, nil
		}
	}

	entries, err := h.prog.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	h.store(ctx, entries)
	return entries, nil
}

func (h *RankingHandler) fromCache(ctx context.Context, members []cache.ZMember) ([]progression.Entry, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseInt(m.Member, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	byID, err := h.prog.Entries(ctx, ids)
	if err != nil {
		return nil, err
	}
	entries := make([]progression.Entry, 0, len(ids))
	for i, id := range ids {
		e, ok := byID[id]
		if !ok {
			continue
		}
		// The cached score orders the board; the row may already be newer.
		e.TotalXP = int64(members[i].Score)
		entries = append(entries, e)
	}
	progression.AssignRanks(entries)
	return entries, nil
}

func (h *RankingHandler) store(ctx context.Context, entries []progression.Entry) {
	if len(entries) == 0 {
		return
	}
	zs := make([]cache.ZMember, len(entries))
	for i, e := range entries {
		zs[i] = cache.ZMember{Member: strconv.FormatInt(e.UserID, 10), Score: float64(e.TotalXP)}
	}
	if err := h.cache.ZAdd(ctx, RankingZKey, zs...); err != nil {
		h.logger.Warn("ranking cache write failed", zap.Error(err))
	}
}

// Touch updates one user's cached score after an XP change. An empty set is
// left empty so the next read rebuilds it from the database.
func (h *RankingHandler) Touch(ctx context.Context, userID, totalXP int64) {
	head, err := h.cache.ZRevRangeWithScores(ctx, RankingZKey, 0, 0)
	if err != nil || len(head) == 0 {
		return
	}
	h.store(ctx, []progression.Entry{{UserID: userID, TotalXP: totalXP}})
}

// Refresh rebuilds the sorted set from the database. It is run periodically
// by the scheduler.
func (h *RankingHandler) Refresh(ctx context.Context) (int, error) {
	entries, err := h.prog.Leaderboard(ctx, h.size)
	if err != nil {
		return 0, err
	}
	if err := h.cache.Del(ctx, RankingZKey); err != nil {
		return 0, err
	}
	h.store(ctx, entries)
	return len(entries), nil
}

// RefreshRanking handles POST /api/admin/ranking/refresh.
func (h *RankingHandler) RefreshRanking(c *gin.Context) {
	n, err := h.Refresh(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}
