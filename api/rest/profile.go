package rest

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/game/quest"
	mw "github.com/kasuganosora/solotracker/middleware"
	"github.com/kasuganosora/solotracker/model"
	"github.com/kasuganosora/solotracker/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProfileHandler serves the profile view and avatar uploads.
type ProfileHandler struct {
	db      *gorm.DB
	quests  *quest.Service
	store   storage.Store
	maxSize int64
	logger  *zap.Logger
}

// NewProfileHandler creates a ProfileHandler accepting avatars up to maxSize bytes.
func NewProfileHandler(db *gorm.DB, quests *quest.Service, store storage.Store, maxSize int64, logger *zap.Logger) *ProfileHandler {
	if maxSize <= 0 {
		maxSize = 2 << 20
	}
	return &ProfileHandler{db: db, quests: quests, store: store, maxSize: maxSize, logger: logger}
}

// Profile handles GET /api/profile.
func (h *ProfileHandler) Profile(c *gin.Context) {
	stats, err := h.quests.ProfileStats(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// UploadAvatar handles POST /api/profile/avatar (multipart field "avatar").
// The image type is sniffed from the content, not trusted from the client.
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	userID := mw.GetUserID(c)
	ctx := c.Request.Context()

	// Leave room for the multipart envelope around the file.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+64<<10)
	fh, err := c.FormFile("avatar")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "avatar too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file is required"})
		return
	}
	if fh.Size > h.maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "avatar too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	if int64(len(data)) > h.maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "avatar too large"})
		return
	}
	contentType := http.DetectContentType(data)
	ext, ok := storage.ImageExt(contentType)
	if !ok {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "avatar must be png, jpeg, gif or webp"})
		return
	}

	var profile model.UserProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		writeError(c, err)
		return
	}

	url, err := h.store.Put(ctx, storage.AvatarKey(userID, ext), contentType, bytes.NewReader(data))
	if err != nil {
		h.logger.Error("avatar upload failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		return
	}
	if err := h.db.WithContext(ctx).Model(&model.UserProfile{}).
		Where("id = ?", profile.ID).Update("avatar_url", url).Error; err != nil {
		writeError(c, err)
		return
	}
	if old := storage.KeyFromURL(h.store.BaseURL(), profile.AvatarURL); old != "" {
		if err := h.store.Delete(ctx, old); err != nil {
			h.logger.Warn("old avatar delete failed", zap.String("key", old), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"avatar_url": url})
}
