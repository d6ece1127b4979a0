// Package pipeline sequences the side effects of crediting XP: the credit
// itself, job-change and level-up events, achievement evaluation, and
// notification emission.
package pipeline

import (
	"context"

	"github.com/kasuganosora/solotracker/game/achievement"
	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/model"
	"gorm.io/gorm"
)

// Pipeline is shared by every operation that can award XP.
type Pipeline struct {
	db       *gorm.DB
	prog     *progression.Service
	eval     *achievement.Evaluator
	notifier *notify.Emitter
}

// New creates a Pipeline.
func New(db *gorm.DB, prog *progression.Service, eval *achievement.Evaluator, notifier *notify.Emitter) *Pipeline {
	return &Pipeline{db: db, prog: prog, eval: eval, notifier: notifier}
}

// Progression returns the underlying progression service.
func (p *Pipeline) Progression() *progression.Service { return p.prog }

// Evaluator returns the underlying achievement evaluator.
func (p *Pipeline) Evaluator() *achievement.Evaluator { return p.eval }

// Notifier returns the underlying emitter.
func (p *Pipeline) Notifier() *notify.Emitter { return p.notifier }

// ProgressEvents turns a credit result into notifications, job change first.
func ProgressEvents(res progression.Result) []notify.Event {
	var events []notify.Event
	if res.JobChanged {
		events = append(events, notify.JobChange(res.OldJob.Class, res.NewJob.Class, res.NewLevel))
	}
	if res.LevelUp {
		events = append(events, notify.LevelUp(res.OldLevel, res.NewLevel, res.StatsGained))
	}
	return events
}

// Credit adds amount XP and returns the events it produced.
func (p *Pipeline) Credit(ctx context.Context, tx *gorm.DB, userID, amount int64) (*model.UserProfile, progression.Result, []notify.Event, error) {
	profile, res, err := p.prog.Credit(ctx, tx, userID, amount)
	if err != nil {
		return nil, progression.Result{}, nil, err
	}
	return profile, res, ProgressEvents(res), nil
}

// Settle evaluates achievements, appends their events after events, and
// stores everything in order.
func (p *Pipeline) Settle(ctx context.Context, tx *gorm.DB, userID int64, events []notify.Event) ([]*model.Notification, error) {
	awards, err := p.eval.Evaluate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range awards {
		events = append(events, notify.AchievementUnlocked(a.Achievement.ID, a.Achievement.Name, a.Achievement.XPReward))
		events = append(events, ProgressEvents(a.Result)...)
	}
	return p.notifier.Emit(ctx, tx, userID, events...)
}

// Run executes fn and Settle in one transaction and publishes the stored
// notifications after commit. Any error rolls the whole unit back.
func (p *Pipeline) Run(ctx context.Context, userID int64, fn func(tx *gorm.DB) ([]notify.Event, error)) error {
	var notes []*model.Notification
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events, err := fn(tx)
		if err != nil {
			return err
		}
		notes, err = p.Settle(ctx, tx, userID, events)
		return err
	})
	if err != nil {
		return err
	}
	p.notifier.Publish(ctx, notes)
	return nil
}
