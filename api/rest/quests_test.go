package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dashboardResp struct {
	Profile struct {
		Level   int   `json:"level"`
		TotalXP int64 `json:"total_xp"`
		Rank    int64 `json:"rank"`
	} `json:"profile"`
	TodayQuests []struct {
		ID        int64 `json:"id"`
		Completed bool  `json:"completed"`
		Quest     struct {
			XPReward int64 `json:"xp_reward"`
		} `json:"quest"`
	} `json:"today_quests"`
	CompletedQuestsCount int64 `json:"completed_quests_count"`
}

func (s *server) dashboard(t *testing.T, token string) dashboardResp {
	t.Helper()
	w := s.do(http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var d dashboardResp
	decode(t, w, &d)
	return d
}

func TestDashboard_AssignsDailyQuests(t *testing.T) {
	s := newServer(t)
	token, _ := s.register(t, "jinwoo")

	d := s.dashboard(t, token)
	assert.Len(t, d.TodayQuests, 4)
	assert.Equal(t, 1, d.Profile.Level)

	// A second visit on the same day keeps the same assignments.
	again := s.dashboard(t, token)
	require.Len(t, again.TodayQuests, 4)
	assert.Equal(t, d.TodayQuests[0].ID, again.TodayQuests[0].ID)
}

func TestCompleteQuest(t *testing.T) {
	s := newServer(t)
	token, _ := s.register(t, "jinwoo")
	uq := s.dashboard(t, token).TodayQuests[0]

	path := fmt.Sprintf("/api/quests/%d/complete", uq.ID)
	w := s.do(http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Success  bool  `json:"success"`
		XPGained int64 `json:"xp_gained"`
		TotalXP  int64 `json:"total_xp"`
	}
	decode(t, w, &res)
	assert.True(t, res.Success)
	assert.Equal(t, uq.Quest.XPReward, res.XPGained)
	assert.GreaterOrEqual(t, res.TotalXP, uq.Quest.XPReward)

	w = s.do(http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	d := s.dashboard(t, token)
	assert.True(t, d.TodayQuests[0].Completed)
	assert.Equal(t, int64(1), d.CompletedQuestsCount)
}

func TestCompleteQuest_NotOwned(t *testing.T) {
	s := newServer(t)
	owner, _ := s.register(t, "jinwoo")
	other, _ := s.register(t, "cha-hae-in")
	uq := s.dashboard(t, owner).TodayQuests[0]

	w := s.do(http.MethodPost, fmt.Sprintf("/api/quests/%d/complete", uq.ID), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/quests/abc/complete", other, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomQuest_Lifecycle(t *testing.T) {
	s := newServer(t)
	token, _ := s.register(t, "jinwoo")

	w := s.do(http.MethodPost, "/api/custom-quests", token, map[string]interface{}{
		"title": "Water the plants", "difficulty": "Easy", "quest_type": "daily", "target_count": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID       int64 `json:"id"`
		XPReward int64 `json:"xp_reward"`
	}
	decode(t, w, &created)
	assert.Equal(t, int64(100), created.XPReward)

	path := fmt.Sprintf("/api/custom-quests/%d/progress", created.ID)
	var step struct {
		Completed    bool  `json:"completed"`
		CurrentCount int   `json:"current_count"`
		XPGained     int64 `json:"xp_gained"`
	}
	w = s.do(http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &step)
	assert.False(t, step.Completed)
	assert.Equal(t, 1, step.CurrentCount)
	assert.Zero(t, step.XPGained)

	w = s.do(http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &step)
	assert.True(t, step.Completed)
	assert.Equal(t, int64(100), step.XPGained)

	// Progress past the target keeps counting without a second reward.
	w = s.do(http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	step.XPGained = 0
	decode(t, w, &step)
	assert.True(t, step.Completed)
	assert.Equal(t, 3, step.CurrentCount)
	assert.Zero(t, step.XPGained)

	var list struct {
		Quests []struct {
			ID int64 `json:"id"`
		} `json:"quests"`
	}
	w = s.do(http.MethodGet, "/api/custom-quests", token, nil)
	decode(t, w, &list)
	assert.Empty(t, list.Quests)
	w = s.do(http.MethodGet, "/api/custom-quests?include_completed=true", token, nil)
	decode(t, w, &list)
	assert.Len(t, list.Quests, 1)
}

func TestCustomQuest_Validation(t *testing.T) {
	s := newServer(t)
	token, _ := s.register(t, "jinwoo")

	for name, body := range map[string]map[string]interface{}{
		"empty title":     {"title": " ", "difficulty": "Easy", "quest_type": "daily", "target_count": 1},
		"bad difficulty":  {"title": "x", "difficulty": "legendary", "quest_type": "daily", "target_count": 1},
		"negative target": {"title": "x", "difficulty": "Easy", "quest_type": "daily", "target_count": -1},
		"huge target":     {"title": "x", "difficulty": "Epic", "quest_type": "daily", "target_count": 23058430092136940},
	} {
		t.Run(name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/custom-quests", token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCustomQuest_OtherUser(t *testing.T) {
	s := newServer(t)
	owner, _ := s.register(t, "jinwoo")
	other, _ := s.register(t, "cha-hae-in")

	w := s.do(http.MethodPost, "/api/custom-quests", owner, map[string]interface{}{
		"title": "Secret", "difficulty": "Hard", "quest_type": "custom", "target_count": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &created)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/custom-quests/%d", created.ID), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodPost, fmt.Sprintf("/api/custom-quests/%d/progress", created.ID), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
