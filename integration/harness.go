package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/solotracker/api/rest"
	"github.com/kasuganosora/solotracker/audit"
	"github.com/kasuganosora/solotracker/cache"
	"github.com/kasuganosora/solotracker/config"
	"github.com/kasuganosora/solotracker/game/achievement"
	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/game/pipeline"
	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/game/quest"
	mw "github.com/kasuganosora/solotracker/middleware"
	"github.com/kasuganosora/solotracker/resource"
	"github.com/kasuganosora/solotracker/scheduler"
	"github.com/kasuganosora/solotracker/storage"
	"github.com/kasuganosora/solotracker/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminKey is accepted by the test server's admin routes.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every tracker subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Quests *quest.Service
	Sched  *scheduler.Scheduler
	Routes *apirest.Routes
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	Sec    config.SecurityConfig

	audit *audit.Service
}

// NewTestServer creates a fully wired tracker for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	ctx := context.Background()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		BcryptCost:     bcrypt.MinCost,
	}
	tracker := config.TrackerConfig{
		DailyQuestCount:   4,
		NotificationLimit: 5,
		LeaderboardSize:   50,
	}

	// Built-in catalog (no data files).
	catalog := t.TempDir()
	_, err := resource.LoadAndSeed(ctx, db, catalog)
	require.NoError(t, err)

	// ---- Services ----
	prog := progression.NewService(db, logger)
	notifier := notify.NewEmitter(db, pubsub, logger)
	pipe := pipeline.New(db, prog, achievement.NewEvaluator(db, prog, logger), notifier)
	quests, err := quest.NewService(db, pipe, quest.Config{
		DailyQuestCount: tracker.DailyQuestCount,
		Location:        time.UTC,
	}, logger)
	require.NoError(t, err)

	uploads := t.TempDir()
	store, err := storage.NewLocal(uploads, "/uploads")
	require.NoError(t, err)

	auditSvc := audit.NewWithOptions(db, audit.Options{FlushInterval: 10 * time.Millisecond}, logger)
	sched := scheduler.New(logger, scheduler.WithLocker(c))

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger), mw.CORS(nil))
	routes := apirest.Register(r, apirest.Deps{
		DB:            db,
		Cache:         c,
		PubSub:        pubsub,
		Security:      sec,
		AdminKey:      AdminKey,
		Tracker:       tracker,
		Progression:   prog,
		Quests:        quests,
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
	routes.SSE.SetKeepalive(200 * time.Millisecond)
	sched.AddTicker("ranking-refresh", time.Hour, apirest.RefreshRankingTask(routes.Ranking, logger))

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Quests: quests,
		Sched:  sched,
		Routes: routes,
		Server: server,
		URL:    server.URL,
		Sec:    sec,
		audit:  auditSvc,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the test server and background workers. It is safe to
// call more than once.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Sched.Stop()
	ts.audit.Stop(context.Background())
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, header http.Header) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func bearer(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, bearer(token))
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, bearer(token))
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	h := http.Header{}
	h.Set("X-Admin-Key", AdminKey)
	return ts.do(t, method, path, body, h)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

type authResult struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// Register creates an account and returns its token and user ID.
func (ts *TestServer) Register(t *testing.T, username, password string) (string, int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res authResult
	ReadJSON(t, resp, &res)
	return res.Token, res.UserID
}

// Login signs an existing account in and returns the token and user ID.
func (ts *TestServer) Login(t *testing.T, username, password string) (string, int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res authResult
	ReadJSON(t, resp, &res)
	return res.Token, res.UserID
}

// --- SSE client ---

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// SSEClient reads an event stream in a background goroutine.
type SSEClient struct {
	t      *testing.T
	resp   *http.Response
	cancel context.CancelFunc
	events chan Event
}

// ConnectSSE opens /sse with the given token and waits for the connected event.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		t.Fatalf("sse connect: status %d", resp.StatusCode)
	}
	sc := &SSEClient{t: t, resp: resp, cancel: cancel, events: make(chan Event, 64)}
	go sc.readLoop()
	t.Cleanup(sc.Close)
	sc.Expect("connected", 2*time.Second)
	return sc
}

func (sc *SSEClient) readLoop() {
	defer close(sc.events)
	scanner := bufio.NewScanner(sc.resp.Body)
	var ev Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Name != "" {
				sc.events <- ev
			}
			ev = Event{}
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// Expect returns the next event with the given name, skipping others.
func (sc *SSEClient) Expect(name string, timeout time.Duration) Event {
	sc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sc.events:
			if !ok {
				sc.t.Fatalf("sse stream closed while waiting for %q", name)
			}
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			sc.t.Fatalf("timed out waiting for sse event %q", name)
			return Event{}
		}
	}
}

// Close ends the stream.
func (sc *SSEClient) Close() {
	sc.cancel()
	sc.resp.Body.Close()
}

var testCounter uint64

// UniqueID returns a collision-free name for parallel tests.
func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
