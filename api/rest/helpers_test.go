package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/api/rest"
	"github.com/kasuganosora/solotracker/audit"
	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/config"
	"github.com/kasuganosora/solotracker/game/achievement"
	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/game/pipeline"
	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/game/quest"
	"github.com/kasuganosora/solotracker/resource"
	"github.com/kasuganosora/solotracker/scheduler"
	"github.com/kasuganosora/solotracker/storage"
	"github.com/kasuganosora/solotracker/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testAdminKey = "admin-secret"

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func init() { gin.SetMode(gin.TestMode) }

type server struct {
	r       *gin.Engine
	db      *gorm.DB
	cache   cache.Cache
	quests  *quest.Service
	sched   *scheduler.Scheduler
	routes  *rest.Routes
	uploads string
	catalog string
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := nopLogger()
	ctx := context.Background()

	catalog := t.TempDir()
	_, err := resource.LoadAndSeed(ctx, db, catalog)
	require.NoError(t, err)

	prog := progression.NewService(db, logger)
	notifier := notify.NewEmitter(db, ps, logger)
	pipe := pipeline.New(db, prog, achievement.NewEvaluator(db, prog, logger), notifier)
	qs, err := quest.NewService(db, pipe, quest.Config{Location: time.UTC}, logger)
	require.NoError(t, err)
	qs.SetClock(func() time.Time { return fixedNow })

	uploads := t.TempDir()
	store, err := storage.NewLocal(uploads, "/uploads")
	require.NoError(t, err)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	auditSvc := audit.NewWithOptions(db, audit.Options{FlushInterval: 10 * time.Millisecond}, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	r := gin.New()
	routes := rest.Register(r, rest.Deps{
		DB:     db,
		Cache:  c,
		PubSub: ps,
		Security: config.SecurityConfig{
			JWTSecret:      "test-secret",
			JWTTTLH:        time.Hour,
			RateLimitRPS:   1000,
			RateLimitBurst: 1000,
			BcryptCost:     bcrypt.MinCost,
		},
		AdminKey:      testAdminKey,
		Tracker:       config.TrackerConfig{LeaderboardSize: 50, NotificationLimit: 5},
		Progression:   prog,
		Quests:        qs,
		Notifier:      notifier,
		Scheduler:     sched,
		Audit:         auditSvc,
		Store:         store,
		MaxAvatarSize: 1 << 20,
		UploadsDir:    uploads,
		UploadsPath:   "/uploads",
		CatalogPath:   catalog,
		Logger:        logger,
	})
	return &server{r: r, db: db, cache: c, quests: qs, sched: sched, routes: routes, uploads: uploads, catalog: catalog}
}

func (s *server) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *server) admin(method, path string, body interface{}) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", testAdminKey)
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

// register creates a user and returns its token and id.
func (s *server) register(t *testing.T, username string) (string, int64) {
	t.Helper()
	w := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username, "password": "password1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	decode(t, w, &resp)
	return resp.Token, resp.UserID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
