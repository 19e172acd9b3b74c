// Package scheduler is the Scheduler Fabric: cron-expression tasks (price refresh, kline
// cleanup) and plain interval tasks, each individually startable/pausable/resumable. The teacher
// has no scheduler package of its own; this borrows robfig/cron/v3 the way aristath-sentinel
// wires it for its own periodic market-data jobs.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"perpilot/internal/apperr"
	"perpilot/internal/logger"
)

// TaskFunc is the unit of work a scheduled task runs. It receives a context cancelled when the
// task is paused or the scheduler is stopped.
type TaskFunc func(ctx context.Context)

type taskState int

const (
	stateRunning taskState = iota
	statePaused
)

type task struct {
	name    string
	cronID  cron.EntryID
	isCron  bool
	fn      TaskFunc
	cancel  context.CancelFunc
	state   taskState
	mu      sync.Mutex
}

// Fabric owns the set of named scheduled tasks.
type Fabric struct {
	cronSched *cron.Cron
	log       *logger.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

// New builds a Fabric. Call Start to begin running the underlying cron loop.
func New() *Fabric {
	return &Fabric{
		cronSched: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		log:       logger.With("scheduler"),
		tasks:     make(map[string]*task),
	}
}

// Start begins the underlying cron scheduler goroutine.
func (f *Fabric) Start() { f.cronSched.Start() }

// Stop drains the cron scheduler and cancels every running interval task.
func (f *Fabric) Stop(ctx context.Context) {
	stopCtx := f.cronSched.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.cancel != nil {
			t.cancel()
		}
	}
}

// AddCron registers fn to run on a five-or-six-field cron expression (robfig/cron/v3 syntax,
// seconds optional since the Fabric's parser is built with cron.SecondOptional).
func (f *Fabric) AddCron(name, expr string, fn TaskFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tasks[name]; exists {
		return apperr.New(apperr.ConflictOrDup, "task "+name+" already registered")
	}

	t := &task{name: name, isCron: true, fn: fn, state: stateRunning}
	id, err := f.cronSched.AddFunc(expr, func() {
		t.mu.Lock()
		running := t.state == stateRunning
		t.mu.Unlock()
		if !running {
			return
		}
		fn(context.Background())
	})
	if err != nil {
		return apperr.Wrap(apperr.ValidationFailed, "invalid cron expression", err)
	}
	t.cronID = id
	f.tasks[name] = t
	return nil
}

// AddInterval registers fn to run immediately, then every interval defined by the caller via
// ticker (the caller owns the ticker construction so each task can use a distinct interval).
func (f *Fabric) AddInterval(ctx context.Context, name string, run func(ctx context.Context)) error {
	f.mu.Lock()
	if _, exists := f.tasks[name]; exists {
		f.mu.Unlock()
		return apperr.New(apperr.ConflictOrDup, "task "+name+" already registered")
	}
	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{name: name, isCron: false, cancel: cancel, state: stateRunning}
	f.tasks[name] = t
	f.mu.Unlock()

	go func() {
		t.mu.Lock()
		running := t.state == stateRunning
		t.mu.Unlock()
		if running {
			run(taskCtx)
		}
	}()
	return nil
}

// Pause suspends a task without unregistering it. A cron task simply no-ops on its next tick;
// an interval task's context is cancelled, so the caller's run loop must return on ctx.Done().
func (f *Fabric) Pause(name string) error {
	f.mu.Lock()
	t, ok := f.tasks[name]
	f.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "task "+name+" not registered")
	}
	t.mu.Lock()
	t.state = statePaused
	t.mu.Unlock()
	if !t.isCron && t.cancel != nil {
		t.cancel()
	}
	return nil
}

// Resume re-arms a paused cron task. Interval tasks must be re-added via AddInterval once
// paused, since their run loop exits on cancellation.
func (f *Fabric) Resume(name string) error {
	f.mu.Lock()
	t, ok := f.tasks[name]
	f.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "task "+name+" not registered")
	}
	t.mu.Lock()
	t.state = stateRunning
	t.mu.Unlock()
	return nil
}
