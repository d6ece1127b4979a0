package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("notify: notification not found")

// Channel is the pub/sub channel carrying userID's new notifications.
func Channel(userID int64) string {
	return fmt.Sprintf("notify:%d", userID)
}

// Emitter stores notifications and publishes them once their transaction
// has committed.
type Emitter struct {
	db     *gorm.DB
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewEmitter creates an Emitter. pubsub may be nil.
func NewEmitter(db *gorm.DB, pubsub cache.PubSub, logger *zap.Logger) *Emitter {
	return &Emitter{db: db, pubsub: pubsub, logger: logger}
}

// Emit appends one notification row per event, in order.
func (e *Emitter) Emit(ctx context.Context, tx *gorm.DB, userID int64, events ...Event) ([]*model.Notification, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if tx == nil {
		tx = e.db
	}
	notes := make([]*model.Notification, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return nil, err
		}
		n := &model.Notification{
			UserID:  userID,
			Type:    ev.Type,
			Title:   ev.Title,
			Message: ev.Message,
			Data:    datatypes.JSON(data),
		}
		if err := tx.WithContext(ctx).Create(n).Error; err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// Publish pushes stored notifications to live subscribers. Delivery is best
// effort; the rows remain the source of truth.
func (e *Emitter) Publish(ctx context.Context, notes []*model.Notification) {
	if e.pubsub == nil {
		return
	}
	for _, n := range notes {
		payload, err := json.Marshal(n)
		if err != nil {
			continue
		}
		if err := e.pubsub.Publish(ctx, Channel(n.UserID), string(payload)); err != nil {
			e.logger.Warn("notification publish failed",
				zap.Int64("user_id", n.UserID), zap.Error(err))
		}
	}
}

// ListUnread returns up to limit unread notifications, newest first.
func (e *Emitter) ListUnread(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	var notes []model.Notification
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&notes).Error
	return notes, err
}

// UnreadCount counts userID's unread notifications.
func (e *Emitter) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := e.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).Count(&n).Error
	return n, err
}

// MarkRead flags one of userID's notifications as read. Marking an already
// read notification succeeds; one owned by someone else is ErrNotFound.
func (e *Emitter) MarkRead(ctx context.Context, userID, id int64) error {
	rs := e.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Update("is_read", true)
	if rs.Error != nil {
		return rs.Error
	}
	if rs.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := e.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of userID and returns how
// many changed.
func (e *Emitter) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	rs := e.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return rs.RowsAffected, rs.Error
}
