package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kasuganosora/solotracker/game/achievement"
	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/model"
	"github.com/kasuganosora/solotracker/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func newPipeline(t *testing.T) (*gorm.DB, *Pipeline) {
	db := testutil.SetupTestDB(t)
	_, ps := testutil.SetupTestCache(t)
	prog := progression.NewService(db, nopLogger())
	eval := achievement.NewEvaluator(db, prog, nopLogger())
	return db, New(db, prog, eval, notify.NewEmitter(db, ps, nopLogger()))
}

func TestProgressEvents_Order(t *testing.T) {
	res := progression.Result{
		LevelUp: true, OldLevel: 9, NewLevel: 10, StatsGained: 2,
		OldJob:     progression.JobFor(9),
		NewJob:     progression.JobFor(10),
		JobChanged: true,
	}
	events := ProgressEvents(res)
	require.Len(t, events, 2)
	assert.Equal(t, model.NotifyJobChange, events[0].Type)
	assert.Equal(t, model.NotifyLevelUp, events[1].Type)

	assert.Empty(t, ProgressEvents(progression.Result{OldLevel: 1, NewLevel: 1}))
}

func TestRun_CreditAndAchievements(t *testing.T) {
	db, p := newPipeline(t)
	acc, _ := testutil.CreateAccount(t, db, "hunter")
	require.NoError(t, db.Create(&model.Achievement{
		Code: "level-2", Name: "Level 2", RequirementType: model.RequirementLevel,
		RequirementValue: 2, XPReward: 100,
	}).Error)
	ctx := context.Background()

	err := p.Run(ctx, acc.ID, func(tx *gorm.DB) ([]notify.Event, error) {
		_, _, events, err := p.Credit(ctx, tx, acc.ID, 1000)
		return events, err
	})
	require.NoError(t, err)

	var notes []model.Notification
	require.NoError(t, db.Where("user_id = ?", acc.ID).Order("id").Find(&notes).Error)
	require.Len(t, notes, 2)
	assert.Equal(t, "Level Up!", notes[0].Title)
	assert.Equal(t, "Achievement Unlocked!", notes[1].Title)

	var prof model.UserProfile
	require.NoError(t, db.Where("user_id = ?", acc.ID).First(&prof).Error)
	assert.Equal(t, int64(1100), prof.TotalXP)
	assert.Equal(t, int64(100), prof.CurrentXP)
}

func TestRun_RollsBackOnError(t *testing.T) {
	db, p := newPipeline(t)
	acc, _ := testutil.CreateAccount(t, db, "hunter")
	ctx := context.Background()
	boom := errors.New("boom")

	err := p.Run(ctx, acc.ID, func(tx *gorm.DB) ([]notify.Event, error) {
		if _, _, _, err := p.Credit(ctx, tx, acc.ID, 5000); err != nil {
			return nil, err
		}
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	var prof model.UserProfile
	require.NoError(t, db.Where("user_id = ?", acc.ID).First(&prof).Error)
	assert.Equal(t, 1, prof.Level)
	assert.Equal(t, int64(0), prof.TotalXP)

	var n int64
	db.Model(&model.Notification{}).Count(&n)
	assert.Equal(t, int64(0), n)
}

func TestRun_PublishesAfterCommit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, ps := testutil.SetupTestCache(t)
	prog := progression.NewService(db, nopLogger())
	p := New(db, prog, achievement.NewEvaluator(db, prog, nopLogger()), notify.NewEmitter(db, ps, nopLogger()))
	acc, _ := testutil.CreateAccount(t, db, "hunter")
	ctx := context.Background()

	ch, unsub, err := ps.Subscribe(ctx, notify.Channel(acc.ID))
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, p.Run(ctx, acc.ID, func(tx *gorm.DB) ([]notify.Event, error) {
		return []notify.Event{notify.QuestCreated(1, "Read")}, nil
	}))

	select {
	case msg := <-ch:
		assert.Contains(t, msg.Payload, "New Quest Created")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for publish")
	}
}

func TestCredit_ZeroIsNoop(t *testing.T) {
	db, p := newPipeline(t)
	acc, _ := testutil.CreateAccount(t, db, "hunter")
	ctx := context.Background()
	var before model.UserProfile
	require.NoError(t, db.Where("user_id = ?", acc.ID).First(&before).Error)

	err := p.Run(ctx, acc.ID, func(tx *gorm.DB) ([]notify.Event, error) {
		profile, res, events, err := p.Credit(ctx, tx, acc.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.False(t, res.LevelUp)
		assert.False(t, res.JobChanged)
		assert.Equal(t, int64(0), res.XPGained)
		assert.Equal(t, before.TotalXP, profile.TotalXP)
		return events, nil
	})
	require.NoError(t, err)

	var after model.UserProfile
	require.NoError(t, db.Where("user_id = ?", acc.ID).First(&after).Error)
	assert.Equal(t, before.Level, after.Level)
	assert.Equal(t, before.TotalXP, after.TotalXP)
	assert.Equal(t, before.JobClass, after.JobClass)

	var n int64
	require.NoError(t, db.Model(&model.Notification{}).Where("user_id = ?", acc.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCredit_RejectsOversizedAmount(t *testing.T) {
	db, p := newPipeline(t)
	acc, _ := testutil.CreateAccount(t, db, "hunter")
	ctx := context.Background()

	err := p.Run(ctx, acc.ID, func(tx *gorm.DB) ([]notify.Event, error) {
		_, _, events, err := p.Credit(ctx, tx, acc.ID, progression.MaxCredit+1)
		return events, err
	})
	assert.ErrorIs(t, err, progression.ErrAmountTooLarge)

	var after model.UserProfile
	require.NoError(t, db.Where("user_id = ?", acc.ID).First(&after).Error)
	assert.Equal(t, int64(0), after.TotalXP)
	assert.Equal(t, 1, after.Level)
}
