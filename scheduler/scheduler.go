// Package scheduler runs the tracker's background jobs: interval tickers and
// once-a-day jobs at a wall-clock time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kasuganosora/solotracker/cache"
	"go.uber.org/zap"
)

// ErrUnknownTask is returned by RunNow for a name that is not registered.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// TaskFn is the function signature for scheduled tasks. ctx is cancelled
// when the scheduler stops.
type TaskFn func(ctx context.Context)

const (
	KindTicker = "ticker"
	KindDaily  = "daily"
)

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Interval string     `json:"interval,omitempty"`
	At       string     `json:"at,omitempty"`
	Runs     int64      `json:"runs"`
	Skipped  int64      `json:"skipped"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the time zone daily jobs are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLocker makes every run first take a cache lock named after the task,
// so only one process runs it when several share the cache.
func WithLocker(c cache.Cache) Option {
	return func(s *Scheduler) { s.locker = c }
}

// Scheduler manages periodic tasks.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	cron    gocron.Scheduler
	loc     *time.Location
	locker  cache.Cache
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

type task struct {
	info    TaskInfo
	fn      TaskFn
	lockTTL time.Duration
	stopCh  chan struct{} // tickers
	job     gocron.Job    // daily
}

// New creates a new Scheduler.
func New(logger *zap.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		tasks:  make(map[string]*task),
		loc:    time.UTC,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.removeLocked(name)

	t := &task{
		info:    TaskInfo{Name: name, Kind: KindTicker, Interval: interval.String()},
		fn:      fn,
		lockTTL: interval - interval/10, // expires before the next tick
		stopCh:  make(chan struct{}),
	}
	s.tasks[name] = t

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(t)
			case <-t.stopCh:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDaily registers a task to run once a day at hour:minute in the
// scheduler's location. If a task with the same name exists, it is replaced.
func (s *Scheduler) AddDaily(name string, hour, minute int, fn TaskFn) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("scheduler: invalid time %02d:%02d", hour, minute)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("scheduler: stopped")
	}
	if s.cron == nil {
		cron, err := gocron.NewScheduler(gocron.WithLocation(s.loc))
		if err != nil {
			return err
		}
		cron.Start()
		s.cron = cron
	}
	s.removeLocked(name)

	t := &task{
		info:    TaskInfo{Name: name, Kind: KindDaily, At: fmt.Sprintf("%02d:%02d", hour, minute)},
		fn:      fn,
		lockTTL: time.Hour,
	}
	job, err := s.cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0))),
		gocron.NewTask(func() { s.run(t) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	t.job = job
	s.tasks[name] = t
	s.logger.Info("scheduler daily task registered", zap.String("name", name), zap.String("at", t.info.At))
	return nil
}

// RunNow runs the named task immediately in the caller's goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownTask
	}
	s.run(t)
	return nil
}

func (s *Scheduler) run(t *task) {
	name := t.info.Name
	if s.locker != nil {
		ok, err := s.locker.SetNX(s.ctx, "lock:task:"+name, "1", t.lockTTL)
		if err != nil || !ok {
			s.mu.Lock()
			t.info.Skipped++
			s.mu.Unlock()
			return
		}
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	now := time.Now()
	s.mu.Lock()
	t.info.Runs++
	t.info.LastRun = &now
	s.mu.Unlock()
	t.fn(s.ctx)
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Scheduler) removeLocked(name string) {
	t, ok := s.tasks[name]
	if !ok {
		return
	}
	if t.stopCh != nil {
		close(t.stopCh)
	}
	if t.job != nil && s.cron != nil {
		if err := s.cron.RemoveJob(t.job.ID()); err != nil {
			s.logger.Warn("scheduler remove job failed", zap.String("task", name), zap.Error(err))
		}
	}
	delete(s.tasks, name)
}

// Stop stops all tasks and cancels the context of running ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	cron := s.cron
	s.mu.Unlock()

	// Shutdown waits for running daily jobs, which take s.mu.
	if cron != nil {
		if err := cron.Shutdown(); err != nil {
			s.logger.Warn("scheduler shutdown", zap.Error(err))
		}
	}
}

// Tasks returns a snapshot of all registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	out := make([]TaskInfo, 0, len(s.tasks))
	jobs := make([]gocron.Job, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.info)
		jobs = append(jobs, t.job)
	}
	s.mu.Unlock()

	for i, job := range jobs {
		if job == nil {
			continue
		}
		if next, err := job.NextRun(); err == nil && !next.IsZero() {
			out[i].NextRun = &next
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the names of all registered tasks, sorted.
func (s *Scheduler) Names() []string {
	tasks := s.Tasks()
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}
