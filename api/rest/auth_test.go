package rest_test

import (
	"net/http"
	"testing"

	"github.com/kasuganosora/solotracker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_CreatesProfile(t *testing.T) {
	s := newServer(t)
	token, userID := s.register(t, "jinwoo")
	assert.NotEmpty(t, token)

	var p model.UserProfile
	require.NoError(t, s.db.Where("user_id = ?", userID).First(&p).Error)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, "2026-03-10", p.LastActivity)
}

func TestRegister_Duplicate(t *testing.T) {
	s := newServer(t)
	s.register(t, "jinwoo")

	w := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "jinwoo", "password": "password1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	s := newServer(t)
	for name, body := range map[string]map[string]string{
		"short password": {"username": "jinwoo", "password": "abc"},
		"missing name":   {"password": "password1"},
		"bad email":      {"username": "jinwoo", "password": "password1", "email": "nope"},
	} {
		t.Run(name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/auth/register", "", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLogin(t *testing.T) {
	s := newServer(t)
	_, userID := s.register(t, "jinwoo")

	w := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "jinwoo", "password": "password1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	decode(t, w, &resp)
	assert.Equal(t, userID, resp.UserID)

	w = s.do(http.MethodGet, "/api/dashboard", resp.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_BadCredentials(t *testing.T) {
	s := newServer(t)
	s.register(t, "jinwoo")

	w := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "jinwoo", "password": "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown users are not registered on the fly.
	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "nobody", "password": "password1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var n int64
	s.db.Model(&model.Account{}).Where("username = ?", "nobody").Count(&n)
	assert.Zero(t, n)
}

func TestLogout_InvalidatesSession(t *testing.T) {
	s := newServer(t)
	token, _ := s.register(t, "jinwoo")

	w := s.do(http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/dashboard", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_RotatesToken(t *testing.T) {
	s := newServer(t)
	token, _ := s.register(t, "jinwoo")

	w := s.do(http.MethodPost, "/api/auth/refresh", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	assert.NotEqual(t, token, resp.Token)

	w = s.do(http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/profile", resp.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/api/dashboard", "/api/profile", "/api/notifications", "/api/leaderboard"} {
		w := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}
