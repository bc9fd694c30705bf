package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/phoenikes/calldoc-sync/internal/platform/notify"
)

// Reconciler is what the coordinator dispatches to.
type Reconciler interface {
	Reconcile(ctx context.Context, scope Scope) (*Result, error)
}

const queueCapacity = 256

// Coordinator runs reconciliations as asynchronous tasks on a bounded
// worker pool. It enforces one in-flight task per scope, a wall-clock
// timeout per task, and evicts terminal tasks after a retention window.
type Coordinator struct {
	engine    Reconciler
	sink      notify.Sink
	logger    zerolog.Logger
	workers   int
	timeout   time.Duration
	retention time.Duration
	now       func() time.Time

	mu      stdsync.Mutex
	tasks   map[string]*Task
	byScope map[string]*Task

	queue  chan *Task
	wg     stdsync.WaitGroup
	cancel context.CancelFunc
}

type CoordinatorConfig struct {
	Engine    Reconciler
	Sink      notify.Sink
	Logger    zerolog.Logger
	Workers   int           // defaults to 4
	Timeout   time.Duration // defaults to 60s
	Retention time.Duration // defaults to 5m
	Now       func() time.Time
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.NopSink{}
	}
	return &Coordinator{
		engine:    cfg.Engine,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		workers:   cfg.Workers,
		timeout:   cfg.Timeout,
		retention: cfg.Retention,
		now:       cfg.Now,
		tasks:     make(map[string]*Task),
		byScope:   make(map[string]*Task),
		queue:     make(chan *Task, queueCapacity),
	}
}

// Start launches the worker pool and the retention janitor.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}
	c.wg.Add(1)
	go c.janitor(ctx)
}

// Stop cancels running tasks and waits for workers to drain.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	close(c.queue)
	c.wg.Wait()
}

// Submit accepts a new task unless an identical scope is already in
// flight, in which case it returns a ConflictError naming that task.
func (c *Coordinator) Submit(scope Scope) (View, error) {
	c.mu.Lock()
	if existing, ok := c.byScope[scope.Key()]; ok {
		c.mu.Unlock()
		return View{}, &ConflictError{TaskID: existing.ID}
	}

	task := &Task{
		ID:        newTaskID(scope, c.now()),
		Scope:     scope,
		State:     StatePending,
		CreatedAt: c.now(),
	}
	c.tasks[task.ID] = task
	c.byScope[scope.Key()] = task
	view := task.view()
	c.mu.Unlock()

	select {
	case c.queue <- task:
		return view, nil
	default:
		c.mu.Lock()
		delete(c.tasks, task.ID)
		delete(c.byScope, scope.Key())
		c.mu.Unlock()
		return View{}, fmt.Errorf("task queue full (%d pending)", queueCapacity)
	}
}

// Get returns a task snapshot or ErrTaskNotFound.
func (c *Coordinator) Get(taskID string) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return View{}, ErrTaskNotFound
	}
	return task.view(), nil
}

// Active lists all tasks still in the registry, terminal ones included
// until the janitor evicts them.
func (c *Coordinator) Active() []View {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]View, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t.view())
	}
	return out
}

// ActiveCount counts non-terminal tasks.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tasks {
		if !t.State.Terminal() {
			n++
		}
	}
	return n
}

// Cancel stops a task. Pending tasks fail immediately; running tasks
// get their context canceled and finish cooperatively.
func (c *Coordinator) Cancel(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if task.State.Terminal() {
		return ErrTaskTerminal
	}
	switch task.State {
	case StatePending:
		c.finishLocked(task, nil, errors.New("canceled before start"))
	case StateRunning:
		if task.cancel != nil {
			task.cancel()
		}
	}
	return nil
}

func (c *Coordinator) worker(ctx context.Context) {
	defer c.wg.Done()
	for task := range c.queue {
		if ctx.Err() != nil {
			return
		}
		c.run(ctx, task)
	}
}

func (c *Coordinator) run(ctx context.Context, task *Task) {
	c.mu.Lock()
	if task.State != StatePending {
		// canceled while queued
		c.mu.Unlock()
		return
	}
	started := c.now()
	task.State = StateRunning
	task.StartedAt = &started

	taskCtx, cancel := context.WithTimeout(ctx, c.timeout)
	task.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	result, err := c.engine.Reconcile(taskCtx, task.Scope)
	if err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}

	c.mu.Lock()
	c.finishLocked(task, result, err)
	c.mu.Unlock()

	c.publishSummary(task)
}

// finishLocked moves a task to its terminal state. Caller holds c.mu.
func (c *Coordinator) finishLocked(task *Task, result *Result, err error) {
	ended := c.now()
	task.EndedAt = &ended
	task.Result = result
	task.cancel = nil
	if err != nil {
		task.State = StateFailed
		task.Err = err.Error()
		c.logger.Error().Err(err).Str("task_id", task.ID).Msg("sync task failed")
	} else {
		task.State = StateCompleted
		c.logger.Info().Str("task_id", task.ID).Msg("sync task completed")
	}
	delete(c.byScope, task.Scope.Key())
}

// publishSummary notifies the sink about a terminal task. Best effort,
// never affects the task outcome.
func (c *Coordinator) publishSummary(task *Task) {
	c.mu.Lock()
	view := task.view()
	c.mu.Unlock()

	msg := notify.Message{Level: notify.LevelInfo}
	if view.State == StateFailed {
		msg.Level = notify.LevelError
		msg.Title = fmt.Sprintf("Sync %s failed", view.TaskID)
		msg.Text = view.Error
	} else {
		msg.Title = fmt.Sprintf("Sync %s completed", view.TaskID)
		if view.Result != nil {
			msg.Text = fmt.Sprintf("%d inserted, %d updated, %d deleted, %d skipped, %d patients created",
				view.Result.Inserted, view.Result.Updated, view.Result.Deleted,
				view.Result.Skipped, view.Result.PatientsCreated)
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.sink.Publish(ctx, msg); err != nil {
			c.logger.Warn().Err(err).Str("task_id", view.TaskID).Msg("notification publish failed")
		}
	}()
}

// janitor evicts terminal tasks once their retention window passes.
func (c *Coordinator) janitor(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Coordinator) evictExpired() {
	cutoff := c.now().Add(-c.retention)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.tasks {
		if t.State.Terminal() && t.EndedAt != nil && t.EndedAt.Before(cutoff) {
			delete(c.tasks, id)
		}
	}
}
