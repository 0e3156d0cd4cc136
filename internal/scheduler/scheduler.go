// Package scheduler runs named sync tasks on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wesm/mudex/internal/config"
)

// DefaultTask is the name of the task created from the [sync] section.
const DefaultTask = "sync"

var (
	// ErrStopped is returned when triggering a task after Stop.
	ErrStopped = errors.New("scheduler is stopped")
	// ErrBusy is returned when a task is already running.
	ErrBusy = errors.New("task already running")
)

// TaskFunc performs one run of a task.
type TaskFunc func(ctx context.Context, name string) error

// TaskStatus is a snapshot of one scheduled task.
type TaskStatus struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Running      bool          `json:"running"`
	Runs         int           `json:"runs"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	NextRun      time.Time     `json:"next_run"`
	LastError    string        `json:"last_error,omitempty"`
}

type task struct {
	entry    cron.EntryID
	schedule string
	running  bool
	runs     int
	lastRun  time.Time
	lastDur  time.Duration
	lastErr  error
}

// Scheduler owns a cron instance and guarantees at most one run per task
// at a time. Overlapping ticks of a busy task are skipped.
type Scheduler struct {
	cron   *cron.Cron
	run    TaskFunc
	logger *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// New creates a scheduler that calls run for every due task.
func New(run TaskFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser())),
		run:    run,
		logger: slog.Default(),
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Add schedules name with a cron expression ("*/15 * * * *", "@hourly"),
// replacing any previous schedule of the same name.
func (s *Scheduler) Add(name, expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(expr, func() { s.start(name, "schedule") })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	t, ok := s.tasks[name]
	if ok {
		s.cron.Remove(t.entry)
	} else {
		t = &task{}
		s.tasks[name] = t
	}
	t.entry, t.schedule = id, expr
	s.logger.Info("scheduled task", "task", name, "schedule", expr, "next_run", s.cron.Entry(id).Next)
	return nil
}

// AddFromConfig schedules DefaultTask when the configuration names both a
// sync command and a schedule. It reports whether a task was added.
func (s *Scheduler) AddFromConfig(cfg *config.Config) (bool, error) {
	if cfg.Sync.Command == "" || cfg.Sync.Schedule == "" {
		return false, nil
	}
	if err := s.Add(DefaultTask, cfg.Sync.Schedule); err != nil {
		return false, fmt.Errorf("sync.schedule: %w", err)
	}
	return true, nil
}

// Remove unschedules name. A run in progress finishes.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		s.cron.Remove(t.entry)
		delete(s.tasks, name)
		s.logger.Info("removed task", "task", name)
	}
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.mu.Lock()
	n := len(s.tasks)
	s.mu.Unlock()
	s.logger.Info("scheduler started", "tasks", n)
}

// Trigger runs name now, outside its schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("task %q is not scheduled", name)
	}
	if t.running {
		return fmt.Errorf("trigger %s: %w", name, ErrBusy)
	}
	t.running = true
	s.wg.Add(1)
	go s.execute(name, "manual")
	return nil
}

// start is the cron callback.
func (s *Scheduler) start(name, reason string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if s.stopped || !ok || t.running {
		s.mu.Unlock()
		if ok {
			s.logger.Debug("skipping tick", "task", name)
		}
		return
	}
	t.running = true
	s.wg.Add(1)
	s.mu.Unlock()
	s.execute(name, reason)
}

// execute runs a task whose running flag and wg slot are already taken.
func (s *Scheduler) execute(name, reason string) {
	defer s.wg.Done()
	s.logger.Info("task started", "task", name, "reason", reason)
	begin := time.Now()
	err := s.run(s.ctx, name)
	elapsed := time.Since(begin)

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return
	}
	t.running = false
	t.runs++
	t.lastRun = begin
	t.lastDur = elapsed
	t.lastErr = err
	if err != nil {
		s.logger.Error("task failed", "task", name, "duration", elapsed, "error", err)
		return
	}
	s.logger.Info("task completed", "task", name, "duration", elapsed)
}

// Stop halts the schedules, cancels running tasks and waits for them up
// to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Status returns a snapshot of every task, sorted by name.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for name, t := range s.tasks {
		st := TaskStatus{
			Name:         name,
			Schedule:     t.schedule,
			Running:      t.running,
			Runs:         t.runs,
			LastRun:      t.lastRun,
			LastDuration: t.lastDur,
			NextRun:      s.cron.Entry(t.entry).Next,
		}
		if t.lastErr != nil {
			st.LastError = t.lastErr.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateCronExpr checks expr without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := parser().Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
