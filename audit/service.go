// Package audit records state-changing actions asynchronously in batches.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/solotracker/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions recorded by the API.
const (
	ActionRegister       = "auth.register"
	ActionLogin          = "auth.login"
	ActionQuestComplete  = "quest.complete"
	ActionCustomCreate   = "custom_quest.create"
	ActionCustomProgress = "custom_quest.progress"
	ActionXPGrant        = "admin.xp_grant"
	ActionAccountBan     = "admin.account_ban"
	ActionCatalogReload  = "admin.catalog_reload"
)

// Entry holds one audit event to be logged.
type Entry struct {
	TraceID    string
	UserID     *int64
	Action     string
	Request    interface{}
	Response   interface{}
	Error      string
	IP         string
	DurationMs int
}

// Options tunes batching. Zero values use the defaults.
type Options struct {
	FlushInterval time.Duration // default 2s
	BatchSize     int           // default 100
	Buffer        int           // default 1024
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db        *gorm.DB
	ch        chan *model.AuditLog
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// New creates a new audit Service with default options and starts its
// background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	return NewWithOptions(db, Options{}, logger)
}

// NewWithOptions is New with explicit batching options.
func NewWithOptions(db *gorm.DB, opts Options, logger *zap.Logger) *Service {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	svc := &Service{
		db:        db,
		ch:        make(chan *model.AuditLog, opts.Buffer),
		stopCh:    make(chan struct{}),
		interval:  opts.FlushInterval,
		batchSize: opts.BatchSize,
		logger:    logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. It never blocks; entries
// are dropped when the buffer is full.
func (svc *Service) Log(entry Entry) {
	reqJSON, _ := json.Marshal(entry.Request)
	respJSON, _ := json.Marshal(entry.Response)
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		Request:    datatypes.JSON(reqJSON),
		Response:   datatypes.JSON(respJSON),
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Recent returns the newest entries, optionally only those of userID (0 = all).
func (svc *Service) Recent(ctx context.Context, userID int64, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := svc.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	var logs []model.AuditLog
	err := q.Find(&logs).Error
	return logs, err
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(&batch, svc.batchSize).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= svc.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
