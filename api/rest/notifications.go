package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/game/notify"
	mw "github.com/kasuganosora/solotracker/middleware"
)

// NotificationHandler lists and acknowledges a user's notifications.
type NotificationHandler struct {
	notifier *notify.Emitter
	limit    int
}

// NewNotificationHandler creates a NotificationHandler that returns at most
// limit notifications per call.
func NewNotificationHandler(notifier *notify.Emitter, limit int) *NotificationHandler {
	if limit <= 0 {
		limit = 5
	}
	return &NotificationHandler{notifier: notifier, limit: limit}
}

// List handles GET /api/notifications?limit=5.
func (h *NotificationHandler) List(c *gin.Context) {
	limit := h.limit
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	userID := mw.GetUserID(c)
	ctx := c.Request.Context()

	notes, err := h.notifier.ListUnread(ctx, userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	unread, err := h.notifier.UnreadCount(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes, "unread_count": unread})
}

// MarkRead handles POST /api/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.notifier.MarkRead(c.Request.Context(), mw.GetUserID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifier.MarkAllRead(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "marked": n})
}
