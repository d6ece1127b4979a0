package rest_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/api/rest"
	mw "github.com/kasuganosora/solotracker/middleware"
	"github.com/kasuganosora/solotracker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth(t *testing.T) {
	r := gin.New()
	r.GET("/off", rest.AdminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/on", rest.AdminAuth("k"), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, tc := range []struct {
		path, key string
		want      int
	}{
		{"/off", "", http.StatusServiceUnavailable},
		{"/off", "anything", http.StatusServiceUnavailable},
		{"/on", "", http.StatusUnauthorized},
		{"/on", "wrong", http.StatusUnauthorized},
		{"/on", "k", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.key != "" {
			req.Header.Set("X-Admin-Key", tc.key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "%s key=%q", tc.path, tc.key)
	}
}

func TestAdmin_RequiresKey(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/api/admin/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_Metrics(t *testing.T) {
	s := newServer(t)
	token, _ := s.register(t, "jinwoo")
	s.register(t, "cha-hae-in")
	uq := s.dashboard(t, token).TodayQuests[0]
	w := s.do(http.MethodPost, "/api/quests/"+strconv.FormatInt(uq.ID, 10)+"/complete", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.admin(http.MethodGet, "/api/admin/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var m struct {
		Users          int64  `json:"users"`
		ActiveCatalog  int64  `json:"active_catalog"`
		CompletedToday int64  `json:"completed_today"`
		Day            string `json:"day"`
	}
	decode(t, w, &m)
	assert.Equal(t, int64(2), m.Users)
	assert.Equal(t, int64(6), m.ActiveCatalog)
	assert.Equal(t, int64(1), m.CompletedToday)
	assert.Equal(t, "2026-03-10", m.Day)
}

func TestAdmin_GrantXP(t *testing.T) {
	s := newServer(t)
	_, userID := s.register(t, "jinwoo")

	w := s.admin(http.MethodPost, "/api/admin/xp/grant", map[string]interface{}{
		"user_id": userID, "amount": 250, "reason": "event",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p model.UserProfile
	require.NoError(t, s.db.Where("user_id = ?", userID).First(&p).Error)
	assert.GreaterOrEqual(t, p.TotalXP, int64(250))

	w = s.admin(http.MethodPost, "/api/admin/xp/grant", map[string]interface{}{
		"user_id": userID, "amount": -5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodPost, "/api/admin/xp/grant", map[string]interface{}{
		"user_id": userID, "amount": int64(math.MaxInt64 - 5),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var after model.UserProfile
	require.NoError(t, s.db.Where("user_id = ?", userID).First(&after).Error)
	assert.Equal(t, p.TotalXP, after.TotalXP)
	assert.Equal(t, p.Level, after.Level)

	w = s.admin(http.MethodPost, "/api/admin/xp/grant", map[string]interface{}{
		"user_id": 9999, "amount": 10,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_BanAccount(t *testing.T) {
	s := newServer(t)
	token, userID := s.register(t, "jinwoo")
	path := "/api/admin/accounts/" + strconv.FormatInt(userID, 10) + "/ban"

	w := s.admin(http.MethodPost, path, map[string]bool{"ban": true})
	require.Equal(t, http.StatusOK, w.Code)

	// Live sessions are cut off and new logins refused.
	w = s.do(http.MethodGet, "/api/dashboard", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "jinwoo", "password": "password1",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.admin(http.MethodPost, path, map[string]bool{"ban": false})
	require.Equal(t, http.StatusOK, w.Code)
	ok, err := s.cache.Exists(context.Background(), mw.BannedKey(userID))
	require.NoError(t, err)
	assert.False(t, ok)
	w = s.do(http.MethodGet, "/api/dashboard", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.admin(http.MethodPost, "/api/admin/accounts/9999/ban", map[string]bool{"ban": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_ReloadCatalog(t *testing.T) {
	s := newServer(t)
	quests := `[{"title": "Cold Shower", "category": "fitness", "difficulty": "Hard", "xp_reward": 150}]`
	require.NoError(t, os.WriteFile(filepath.Join(s.catalog, "quests.json"), []byte(quests), 0o644))

	w := s.admin(http.MethodPost, "/api/admin/catalog/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Quests int `json:"quests"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Quests)

	var q model.Quest
	require.NoError(t, s.db.Where("code = ?", "cold-shower").First(&q).Error)
	assert.Equal(t, int64(150), q.XPReward)

	require.NoError(t, os.WriteFile(filepath.Join(s.catalog, "quests.json"), []byte("{broken"), 0o644))
	w = s.admin(http.MethodPost, "/api/admin/catalog/reload", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAdmin_Scheduler(t *testing.T) {
	s := newServer(t)
	var runs atomic.Int32
	s.sched.AddTicker("noop", time.Hour, func(context.Context) { runs.Add(1) })

	w := s.admin(http.MethodGet, "/api/admin/scheduler", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Tasks []struct {
			Name string `json:"name"`
		} `json:"tasks"`
	}
	decode(t, w, &list)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "noop", list.Tasks[0].Name)

	w = s.admin(http.MethodPost, "/api/admin/scheduler/noop/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), runs.Load())

	w = s.admin(http.MethodPost, "/api/admin/scheduler/missing/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_AuditLog(t *testing.T) {
	s := newServer(t)
	_, userID := s.register(t, "jinwoo")

	path := "/api/admin/audit?user_id=" + strconv.FormatInt(userID, 10)
	require.Eventually(t, func() bool {
		w := s.admin(http.MethodGet, path, nil)
		var resp struct {
			Entries []model.AuditLog `json:"entries"`
		}
		if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &resp) != nil {
			return false
		}
		return len(resp.Entries) == 1 && resp.Entries[0].Action == "auth.register"
	}, 2*time.Second, 20*time.Millisecond)
}
