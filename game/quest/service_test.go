package quest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kasuganosora/solotracker/game/achievement"
	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/game/pipeline"
	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/model"
	"github.com/kasuganosora/solotracker/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

// Wednesday.
var testNow = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db  *gorm.DB
	svc *Service
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	db := testutil.SetupTestDB(t)
	_, ps := testutil.SetupTestCache(t)
	prog := progression.NewService(db, nopLogger())
	eval := achievement.NewEvaluator(db, prog, nopLogger())
	pipe := pipeline.New(db, prog, eval, notify.NewEmitter(db, ps, nopLogger()))
	svc, err := NewService(db, pipe, Config{Location: time.UTC}, nopLogger())
	require.NoError(t, err)
	f := &fixture{db: db, svc: svc, now: testNow}
	svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) user(t *testing.T, name string) int64 {
	acc, _ := testutil.CreateAccount(t, f.db, name)
	return acc.ID
}

func (f *fixture) catalog(t *testing.T, n int) []model.Quest {
	cat := &model.QuestCategory{Code: "fitness", Name: "Fitness"}
	require.NoError(t, f.db.Create(cat).Error)
	var out []model.Quest
	for i := 0; i < n; i++ {
		q := model.Quest{
			Code: fmt.Sprintf("q-%d", i), Title: fmt.Sprintf("Quest %d", i),
			CategoryID: cat.ID, Difficulty: model.DifficultyEasy,
			XPReward: 400, IsDaily: true, IsActive: true,
		}
		require.NoError(t, f.db.Create(&q).Error)
		out = append(out, q)
	}
	return out
}

func (f *fixture) profile(t *testing.T, userID int64) model.UserProfile {
	var p model.UserProfile
	require.NoError(t, f.db.Where("user_id = ?", userID).First(&p).Error)
	return p
}

func (f *fixture) notifications(t *testing.T, userID int64) []model.Notification {
	var list []model.Notification
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("id").Find(&list).Error)
	return list
}

func TestNewService_Defaults(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 4, f.svc.cfg.DailyQuestCount)
	assert.Equal(t, 256, f.svc.cfg.CatalogCacheSize)
}

func TestAssignDaily_UpToLimitAndIdempotent(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "hunter")
	qs := f.catalog(t, 6)
	require.NoError(t, f.db.Model(&model.Quest{}).Where("id = ?", qs[0].ID).Update("is_active", false).Error)
	ctx := context.Background()

	list, err := f.svc.AssignDaily(ctx, uid, f.svc.Today())
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, qs[1].ID, list[0].QuestID)
	assert.Equal(t, "Fitness", list[0].Quest.Category.Name)
	assert.Equal(t, "2024-03-06", list[0].AssignedOn)

	again, err := f.svc.AssignDaily(ctx, uid, f.svc.Today())
	require.NoError(t, err)
	assert.Len(t, again, 4)

	var n int64
	f.db.Model(&model.UserQuest{}).Where("user_id = ?", uid).Count(&n)
	assert.Equal(t, int64(4), n)
}

func TestAssignDaily_EmptyCatalog(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "hunter")
	list, err := f.svc.AssignDaily(context.Background(), uid, f.svc.Today())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCompleteAssigned_CreditsOnce(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "hunter")
	f.catalog(t, 3)
	ctx := context.Background()
	list, err := f.svc.AssignDaily(ctx, uid, f.svc.Today())
	require.NoError(t, err)

	res, err := f.svc.CompleteAssigned(ctx, uid, list[0].ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.LevelUp)
	assert.Equal(t, int64(400), res.XPGained)
	assert.Equal(t, int64(400), res.TotalXP)

	_, err = f.svc.CompleteAssigned(ctx, uid, list[0].ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Equal(t, int64(400), f.profile(t, uid).TotalXP)

	var uq model.UserQuest
	require.NoError(t, f.db.First(&uq, list[0].ID).Error)
	assert.True(t, uq.Completed)
	require.NotNil(t, uq.CompletedAt)
}

func TestCompleteAssigned_LevelUpNotifies(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "hunter")
	f.catalog(t, 3)
	ctx := context.Background()
	list, err := f.svc.AssignDaily(ctx, uid, f.svc.Today())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.CompleteAssigned(ctx, uid, list[i].ID)
		require.NoError(t, err)
	}
	p := f.profile(t, uid)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(200), p.CurrentXP)

	notes := f.notifications(t, uid)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotifyLevelUp, notes[0].Type)
}

func TestCompleteAssigned_OtherUserIsNotFound(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner")
	intruder := f.user(t, "intruder")
	f.catalog(t, 1)
	ctx := context.Background()
	list, err := f.svc.AssignDaily(ctx, owner, f.svc.Today())
	require.NoError(t, err)

	_, err = f.svc.CompleteAssigned(ctx, intruder, list[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.CompleteAssigned(ctx, owner, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteAssigned_EvaluatesAchievements(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "hunter")
	f.catalog(t, 1)
	require.NoError(t, f.db.Create(&model.Achievement{
		Code: "first-quest", Name: "First Quest", RequirementType: model.RequirementQuestsCompleted,
		RequirementValue: 1, XPReward: 50,
	}).Error)
	ctx := context.Background()
	list, err := f.svc.AssignDaily(ctx, uid, f.svc.Today())
	require.NoError(t, err)

	res, err := f.svc.CompleteAssigned(ctx, uid, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), res.XPGained)
	assert.Equal(t, int64(450), res.TotalXP)
	assert.Equal(t, int64(450), res.CurrentXP)
	assert.Equal(t, int64(450), f.profile(t, uid).TotalXP)

	notes := f.notifications(t, uid)
	require.Len(t, notes, 1)
	assert.Equal(t, "Achievement Unlocked!", notes[0].Title)
}

func TestUpdateStreak(t *testing.T) {
	f := newFixture(t)
	qs := f.catalog(t, 1)
	ctx := context.Background()

	cases := []struct {
		name         string
		lastActivity string
		doneYday     bool
		streak       int
		want         int
	}{
		{"extends after active yesterday", "2024-03-05", true, 3, 4},
		{"keeps when idle yesterday", "2024-03-05", false, 3, 3},
		{"resets after gap", "2024-03-03", true, 3, 0},
	}
	for i, c := range cases {
		uid := f.user(t, fmt.Sprintf("u%d", i))
		require.NoError(t, f.db.Model(&model.UserProfile{}).Where("user_id = ?", uid).
			Updates(map[string]interface{}{"streak": c.streak, "last_activity": c.lastActivity}).Error)
		require.NoError(t, f.db.Create(&model.UserQuest{
			UserID: uid, QuestID: qs[0].ID, AssignedOn: "2024-03-05", Completed: c.doneYday,
		}).Error)

		changed, err := f.svc.UpdateStreak(ctx, uid, f.svc.Today())
		require.NoError(t, err, c.name)
		assert.True(t, changed, c.name)
		p := f.profile(t, uid)
		assert.Equal(t, c.want, p.Streak, c.name)
		assert.Equal(t, "2024-03-06", p.LastActivity, c.name)

		changed, err = f.svc.UpdateStreak(ctx, uid, f.svc.Today())
		require.NoError(t, err)
		assert.False(t, changed, c.name)
		assert.Equal(t, c.want, f.profile(t, uid).Streak, c.name)
	}
}

func TestUpdateStreak_AwardsStreakAchievement(t *testing.T) {
	f := newFixture(t)
	qs := f.catalog(t, 1)
	uid := f.user(t, "hunter")
	require.NoError(t, f.db.Create(&model.Achievement{
		Code: "streak-2", Name: "On Fire", RequirementType: model.RequirementStreak, RequirementValue: 2,
	}).Error)
	require.NoError(t, f.db.Model(&model.UserProfile{}).Where("user_id = ?", uid).
		Updates(map[string]interface{}{"streak": 1, "last_activity": "2024-03-05"}).Error)
	require.NoError(t, f.db.Create(&model.UserQuest{
		UserID: uid, QuestID: qs[0].ID, AssignedOn: "2024-03-05", Completed: true,
	}).Error)

	_, err := f.svc.UpdateStreak(context.Background(), uid, f.svc.Today())
	require.NoError(t, err)

	var n int64
	f.db.Model(&model.UserAchievement{}).Where("user_id = ?", uid).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestCatalogCache_PurgeReloads(t *testing.T) {
	f := newFixture(t)
	qs := f.catalog(t, 1)
	ctx := context.Background()

	q, err := f.svc.catalogQuest(ctx, f.db, qs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), q.XPReward)

	require.NoError(t, f.db.Model(&model.Quest{}).Where("id = ?", qs[0].ID).Update("xp_reward", 500).Error)
	q, err = f.svc.catalogQuest(ctx, f.db, qs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), q.XPReward)

	f.svc.PurgeCatalog()
	q, err = f.svc.catalogQuest(ctx, f.db, qs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.XPReward)

	_, err = f.svc.catalogQuest(ctx, f.db, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}
