package integration

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerFlow(t *testing.T) {
	ts := NewTestServer(t)

	username := UniqueID("hunter")
	password := "testpass1234"

	// 1. Register, then sign in again with the same credentials.
	token, userID := ts.Register(t, username, password)
	require.NotEmpty(t, token)
	token2, userID2 := ts.Login(t, username, password)
	assert.Equal(t, userID, userID2)
	assert.NotEqual(t, token, token2)

	stream := ts.ConnectSSE(t, token2)

	// 2. The first dashboard visit assigns today's quests.
	resp := ts.Get(t, "/api/dashboard", token2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dash struct {
		TodayQuests []struct {
			ID    int64 `json:"id"`
			Quest struct {
				XPReward int64 `json:"xp_reward"`
			} `json:"quest"`
		} `json:"today_quests"`
	}
	ReadJSON(t, resp, &dash)
	require.Len(t, dash.TodayQuests, 4)

	// 3. Complete one daily quest.
	resp = ts.PostJSON(t, fmt.Sprintf("/api/quests/%d/complete", dash.TodayQuests[0].ID), nil, token2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var done struct {
		XPGained int64 `json:"xp_gained"`
		TotalXP  int64 `json:"total_xp"`
	}
	ReadJSON(t, resp, &done)
	assert.Equal(t, dash.TodayQuests[0].Quest.XPReward, done.XPGained)

	// 4. A one-step custom quest completes on its first progress and
	// pushes a notification over the stream.
	resp = ts.PostJSON(t, "/api/custom-quests", map[string]interface{}{
		"title": "Inbox zero", "difficulty": "Medium", "quest_type": "custom", "target_count": 1,
	}, token2)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cq struct {
		ID int64 `json:"id"`
	}
	ReadJSON(t, resp, &cq)
	resp = ts.PostJSON(t, fmt.Sprintf("/api/custom-quests/%d/progress", cq.ID), nil, token2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var pushed Event
	for i := 0; i < 10; i++ {
		pushed = stream.Expect("notification", 2*time.Second)
		if strings.Contains(pushed.Data, "Quest Completed!") {
			break
		}
	}
	assert.Contains(t, pushed.Data, "Inbox zero")

	// 5. The notification is also listed until it is read.
	resp = ts.Get(t, "/api/notifications?limit=50", token2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notes struct {
		UnreadCount int64 `json:"unread_count"`
	}
	ReadJSON(t, resp, &notes)
	assert.NotZero(t, notes.UnreadCount)
	resp = ts.PostJSON(t, "/api/notifications/read-all", nil, token2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// 6. Admin announcements reach every open stream.
	resp = ts.Admin(t, http.MethodPost, "/api/admin/announce", map[string]string{"message": "double xp weekend"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	ann := stream.Expect("announce", 2*time.Second)
	assert.Contains(t, ann.Data, "double xp weekend")

	// 7. Logout invalidates the token.
	resp = ts.PostJSON(t, "/api/auth/logout", nil, token2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Get(t, "/api/dashboard", token2)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLeaderboardFlow(t *testing.T) {
	ts := NewTestServer(t)
	tokA, a := ts.Register(t, UniqueID("a"), "testpass1234")
	_, b := ts.Register(t, UniqueID("b"), "testpass1234")

	resp := ts.Admin(t, http.MethodPost, "/api/admin/xp/grant", map[string]interface{}{
		"user_id": b, "amount": 1000, "reason": "seed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The scheduled refresh rebuilds the cached board.
	require.NoError(t, ts.Sched.RunNow("ranking-refresh"))
	n, err := ts.Routes.Ranking.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resp = ts.Get(t, "/api/leaderboard", tokA)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var board struct {
		Leaderboard []struct {
			UserID int64 `json:"user_id"`
			Rank   int64 `json:"rank"`
		} `json:"leaderboard"`
		MyRank int64 `json:"my_rank"`
	}
	ReadJSON(t, resp, &board)
	require.Len(t, board.Leaderboard, 2)
	assert.Equal(t, b, board.Leaderboard[0].UserID)
	assert.Equal(t, a, board.Leaderboard[1].UserID)
	assert.Equal(t, int64(2), board.MyRank)
}

func TestBanFlow(t *testing.T) {
	ts := NewTestServer(t)
	username := UniqueID("banned")
	token, userID := ts.Register(t, username, "testpass1234")
	ts.ConnectSSE(t, token).Close()

	resp := ts.Admin(t, http.MethodPost, fmt.Sprintf("/api/admin/accounts/%d/ban", userID), map[string]bool{"ban": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Get(t, "/api/dashboard", token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Get(t, "/sse?token="+token, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
	resp = ts.PostJSON(t, "/api/auth/login", map[string]string{"username": username, "password": "testpass1234"}, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndCORS(t *testing.T) {
	ts := NewTestServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
