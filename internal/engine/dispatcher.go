package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned when submitting to a closed dispatcher.
var ErrClosed = errors.New("engine closed")

// JobKind decides which earlier jobs a job must wait for.
type JobKind int

const (
	// JobQuery waits for earlier mutations.
	JobQuery JobKind = iota
	// JobMutation waits for earlier mutations sharing a key.
	JobMutation
	// JobBarrier waits for everything before it and blocks everything after.
	JobBarrier
)

func (k JobKind) String() string {
	switch k {
	case JobQuery:
		return "query"
	case JobMutation:
		return "mutation"
	case JobBarrier:
		return "barrier"
	}
	return "unknown"
}

// Completion is the result of a job, applied on the engine's goroutine.
type Completion struct {
	job   uint64
	name  string
	apply func(e *Engine) Outcome
}

// Job is one unit of external work. Run executes on a worker and must not
// touch engine state; it returns a Completion that does.
type Job struct {
	Name string
	Kind JobKind
	Keys []string // message ids, for JobMutation
	Run  func(ctx context.Context) Completion
}

type queued struct {
	id      uint64
	job     Job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Dispatcher runs jobs on a fixed set of workers while preserving the
// per-key ordering rules of JobKind. Completions are delivered in the
// order jobs finish; a job's completion is delivered before any job that
// waited on it starts.
type Dispatcher struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	out    chan Completion

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*queued
	nextID uint64
	closed bool
}

// NewDispatcher starts workers goroutines (minimum 1).
func NewDispatcher(workers int) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan Completion, 64),
	}
	d.cond = sync.NewCond(&d.mu)
	for i := 0; i < max(workers, 1); i++ {
		d.group.Go(d.work)
	}
	return d
}

// WithLogger sets the logger for the dispatcher.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = logger
	return d
}

// Completions delivers finished jobs.
func (d *Dispatcher) Completions() <-chan Completion { return d.out }

// Submit queues job and returns a function that cancels it.
func (d *Dispatcher) Submit(job Job) (context.CancelFunc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.nextID++
	ctx, cancel := context.WithCancel(d.ctx)
	d.queue = append(d.queue, &queued{id: d.nextID, job: job, ctx: ctx, cancel: cancel})
	d.logger.Debug("job queued", "job", d.nextID, "name", job.Name, "kind", job.Kind, "keys", len(job.Keys))
	d.cond.Broadcast()
	return cancel, nil
}

// Pending returns the number of queued or running jobs.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close cancels every job and waits for the workers to exit. Undelivered
// completions are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	d.cancel()
	_ = d.group.Wait()
}

func (d *Dispatcher) work() error {
	for {
		d.mu.Lock()
		var q *queued
		for {
			if d.closed {
				d.mu.Unlock()
				return nil
			}
			if q = d.nextRunnable(); q != nil {
				break
			}
			d.cond.Wait()
		}
		q.running = true
		d.mu.Unlock()

		d.execute(q)

		d.mu.Lock()
		d.remove(q)
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

func (d *Dispatcher) execute(q *queued) {
	defer q.cancel()
	c := q.job.Run(q.ctx)
	c.job = q.id
	c.name = q.job.Name
	select {
	case d.out <- c:
	case <-d.ctx.Done():
		d.logger.Debug("completion dropped", "job", q.id, "name", q.job.Name)
	}
}

// nextRunnable returns the first waiting job not blocked by an earlier one.
func (d *Dispatcher) nextRunnable() *queued {
	for i, q := range d.queue {
		if q.running {
			continue
		}
		blocked := false
		for _, earlier := range d.queue[:i] {
			if conflicts(earlier.job, q.job) {
				blocked = true
				break
			}
		}
		if !blocked {
			return q
		}
	}
	return nil
}

func (d *Dispatcher) remove(q *queued) {
	for i, v := range d.queue {
		if v == q {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return
		}
	}
}

// conflicts reports whether later must wait for earlier.
func conflicts(earlier, later Job) bool {
	switch {
	case earlier.Kind == JobBarrier || later.Kind == JobBarrier:
		return true
	case later.Kind == JobQuery:
		return earlier.Kind == JobMutation
	case later.Kind == JobMutation:
		return earlier.Kind == JobMutation && sharesKey(earlier.Keys, later.Keys)
	}
	return false
}

func sharesKey(a, b []string) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	for _, k := range b {
		if set[k] {
			return true
		}
	}
	return false
}
