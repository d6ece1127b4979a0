// Package sse pushes a user's notifications and global announcements to the
// browser over server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/config"
	"github.com/kasuganosora/solotracker/game/notify"
	mw "github.com/kasuganosora/solotracker/middleware"
	"go.uber.org/zap"
)

const AnnounceChannel = "announce"

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	c         cache.Cache
	notifier  *notify.Emitter
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, notifier *notify.Emitter, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, notifier: notifier, sec: sec, keepalive: 30 * time.Second, logger: logger}
}

// SetKeepalive changes the comment interval that keeps proxies from closing
// idle streams.
func (h *Handler) SetKeepalive(d time.Duration) {
	if d > 0 {
		h.keepalive = d
	}
}

func bearer(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// ServeSSE handles GET /sse?token=<jwt>.
// Events: "connected" with the unread count, "notification" for each new
// notification of the user, and "announce" for broadcasts.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := bearer(c)
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.ValidateSession(c.Request.Context(), h.sec, h.c, tokenStr)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, mw.ErrBanned) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	userID := claims.UserID
	userChannel := notify.Channel(userID)

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, AnnounceChannel, userChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	var unread int64
	if h.notifier != nil {
		unread, _ = h.notifier.UnreadCount(c.Request.Context(), userID)
	}
	hello, _ := json.Marshal(gin.H{"user_id": userID, "unread": unread})
	fmt.Fprintf(c.Writer, "event: connected\ndata: %s\n\n", hello)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event := "announce"
			if msg.Channel == userChannel {
				event = "notification"
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	payload, err := json.Marshal(gin.H{"message": message, "at": time.Now().UTC()})
	if err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, AnnounceChannel, string(payload))
}

// PostAnnouncement handles POST /api/admin/announce {"message": "..."}.
func (h *Handler) PostAnnouncement(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Announce(c.Request.Context(), req.Message); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
