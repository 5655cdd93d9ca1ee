// Package scheduler owns the recurring task list: it finds due tasks once a
// second, runs them through an Executor and persists the outcome.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agentdesk/internal/core"
	"agentdesk/internal/events"
	"agentdesk/internal/kernel"
	"agentdesk/internal/logging"
)

// DefaultTaskTimeout bounds a single task execution.
const DefaultTaskTimeout = 5 * time.Minute

// TickInterval is how often the engine looks for due tasks.
const TickInterval = time.Second

var (
	// ErrTaskNotFound is returned for ids the engine does not own.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskCompleted is returned when running a one-shot task that already ran.
	ErrTaskCompleted = errors.New("task already completed")
)

// TaskStore persists the full task list.
type TaskStore interface {
	Load(ctx context.Context) ([]core.ScheduledTask, error)
	Save(ctx context.Context, tasks []core.ScheduledTask) error
}

// RunRecorder keeps a history of execution attempts.
type RunRecorder interface {
	RecordRun(ctx context.Context, run core.RunRecord) error
}

// RunPurger is implemented by recorders that can drop a removed task's history.
type RunPurger interface {
	DeleteRuns(ctx context.Context, taskID string) error
}

// FacadeSource hands out the current kernel facade.
type FacadeSource interface {
	Facade() *kernel.Facade
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTaskTimeout bounds each execution. Non-positive values keep the default.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.taskTimeout = d
		}
	}
}

// WithRunRecorder records every execution attempt.
func WithRunRecorder(r RunRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithEvents publishes task-run and task-complete on bus.
func WithEvents(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

type entry struct {
	task core.ScheduledTask
	seq  uint64
}

// Engine is the single owner of the scheduled tasks. Callers only ever see
// copies.
type Engine struct {
	store       TaskStore
	kernel      FacadeSource
	executor    Executor
	recorder    RunRecorder
	bus         *events.Bus
	logger      *slog.Logger
	now         func() time.Time
	taskTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	queue   dueQueue

	// tickMu serializes executions; persistMu serializes snapshot+save.
	tickMu    sync.Mutex
	persistMu sync.Mutex

	lifeMu sync.Mutex
	cron   *cron.Cron
}

// New creates an engine with no tasks. Call Load to restore persisted tasks.
func New(store TaskStore, k FacadeSource, executor Executor, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		kernel:      k,
		executor:    executor,
		logger:      slog.Default(),
		now:         time.Now,
		taskTimeout: DefaultTaskTimeout,
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the in-memory tasks with the persisted ones. A store that
// cannot be read leaves the engine empty.
func (e *Engine) Load(ctx context.Context) {
	tasks, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Error("load scheduled tasks, starting empty", "err", err)
		tasks = nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = make(map[string]*entry, len(tasks))
	e.queue = nil
	for _, t := range tasks {
		if t.ID == "" {
			e.logger.Warn("skip persisted task without id", "name", t.Name)
			continue
		}
		if _, dup := e.entries[t.ID]; dup {
			e.logger.Warn("skip duplicate persisted task", "task_id", t.ID)
			continue
		}
		e.insertLocked(t.Clone())
	}
	e.logger.Info("scheduled tasks loaded", "count", len(e.entries))
}

// Start begins ticking every second. Calling it again while running is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.cron != nil {
		return
	}
	cronLogger := logging.NewCronLogger(e.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	c.Schedule(cron.Every(TickInterval), cron.FuncJob(func() { e.Tick(ctx) }))
	c.Start()
	e.cron = c
	e.logger.Info("scheduler started", "tick", TickInterval)
}

// Stop prevents further ticks. The returned context is done once a tick that
// was already running has finished and persisted its results.
func (e *Engine) Stop() context.Context {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := e.cron.Stop()
	e.cron = nil
	e.logger.Info("scheduler stopped")
	return ctx
}

// AddTask validates spec, stores a new active task and returns a copy of it.
// A zero NextRun makes the task due immediately.
func (e *Engine) AddTask(ctx context.Context, spec core.TaskSpec) (core.ScheduledTask, error) {
	if err := spec.Validate(); err != nil {
		return core.ScheduledTask{}, err
	}
	task := core.ScheduledTask{
		ID:              core.NewID(),
		Name:            strings.TrimSpace(spec.Name),
		Type:            spec.Action.Type(),
		Action:          spec.Action,
		Schedule:        spec.Schedule,
		IntervalSeconds: spec.IntervalSeconds,
		NextRun:         spec.NextRun,
		Status:          core.TaskStatusActive,
	}.Clone()
	if task.NextRun == 0 {
		task.NextRun = e.now().UnixMilli()
	}

	e.mu.Lock()
	e.insertLocked(task)
	e.mu.Unlock()

	e.persist(ctx)
	e.logger.Info("task scheduled", "task_id", task.ID, "name", task.Name, "type", task.Type, "schedule", task.Schedule)
	if f := e.facade(); f != nil {
		body := fmt.Sprintf("%s (%s, %s)", task.Name, task.Type, task.Schedule)
		if err := f.Notify().Info(ctx, "Task scheduled", body); err != nil {
			e.logger.Warn("notify task scheduled", "task_id", task.ID, "err", err)
		}
	}
	return task.Clone(), nil
}

// RemoveTask deletes a task. Unknown ids are ignored.
func (e *Engine) RemoveTask(ctx context.Context, id string) error {
	e.mu.Lock()
	_, ok := e.entries[id]
	delete(e.entries, id)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	e.persist(ctx)
	if purger, ok := e.recorder.(RunPurger); ok {
		if err := purger.DeleteRuns(context.WithoutCancel(ctx), id); err != nil {
			e.logger.Warn("delete run history", "task_id", id, "err", err)
		}
	}
	e.logger.Info("task removed", "task_id", id)
	return nil
}

// Tasks returns copies of all tasks in insertion order.
func (e *Engine) Tasks() []core.ScheduledTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Task returns a copy of one task.
func (e *Engine) Task(id string) (core.ScheduledTask, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.entries[id]
	if !ok {
		return core.ScheduledTask{}, false
	}
	return en.task.Clone(), true
}

// NextDue returns the earliest pending due time, if any active task is queued.
// Stale heap heads left by removed or rescheduled tasks are dropped on the way.
func (e *Engine) NextDue() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		head, ok := e.queue.peek()
		if !ok {
			return time.Time{}, false
		}
		if en, live := e.entries[head.id]; live && en.task.NextRun == head.nextRun && en.task.Status == core.TaskStatusActive {
			return time.UnixMilli(head.nextRun), true
		}
		heap.Pop(&e.queue)
	}
}

// RunNow executes an active task immediately, waiting for any running tick.
func (e *Engine) RunNow(ctx context.Context, id string) (core.ScheduledTask, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	task, ok := e.Task(id)
	if !ok {
		return core.ScheduledTask{}, ErrTaskNotFound
	}
	if task.Status == core.TaskStatusCompleted {
		return core.ScheduledTask{}, ErrTaskCompleted
	}
	updated, kept := e.execute(ctx, task)
	e.persist(ctx)
	if !kept {
		return core.ScheduledTask{}, ErrTaskNotFound
	}
	return updated, nil
}

// Tick runs every due task once, in insertion order, then saves the store.
// A tick that starts while another is still running is skipped.
func (e *Engine) Tick(ctx context.Context) {
	if !e.tickMu.TryLock() {
		e.logger.Warn("previous tick still running, skipping")
		return
	}
	defer e.tickMu.Unlock()

	due := e.takeDue(e.now())
	if len(due) == 0 {
		return
	}
	for _, task := range due {
		if ctx.Err() != nil {
			e.requeue(due)
			break
		}
		e.execute(ctx, task)
	}
	e.persist(ctx)
}

// takeDue pops due heap entries and returns snapshots of the live, active
// tasks they point at, ordered by insertion.
func (e *Engine) takeDue(now time.Time) []core.ScheduledTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := e.queue.popDue(now.UnixMilli())
	seen := make(map[string]bool, len(items))
	var due []*entry
	for _, it := range items {
		en, ok := e.entries[it.id]
		if !ok || seen[it.id] || en.task.NextRun != it.nextRun || !en.task.Due(now) {
			continue
		}
		seen[it.id] = true
		due = append(due, en)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })

	out := make([]core.ScheduledTask, len(due))
	for i, en := range due {
		out[i] = en.task.Clone()
	}
	return out
}

// requeue puts back tasks whose execution was skipped because ctx ended.
// Tasks that already ran have a new nextRun, so their old entries go stale.
func (e *Engine) requeue(tasks []core.ScheduledTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range tasks {
		if en, ok := e.entries[t.ID]; ok && en.task.NextRun == t.NextRun && en.task.Status == core.TaskStatusActive {
			e.queue.push(dueItem{id: t.ID, nextRun: t.NextRun, seq: en.seq})
		}
	}
}

// execute runs one task outside the engine lock and applies the outcome. It
// reports false when the task was removed while running; its result is then
// discarded.
func (e *Engine) execute(ctx context.Context, task core.ScheduledTask) (core.ScheduledTask, bool) {
	e.publish(events.TaskRun, events.TaskRunPayload{TaskID: task.ID, Name: task.Name})
	e.logger.Info("task run", "task_id", task.ID, "name", task.Name, "type", task.Type)

	startedAt := e.now()
	result := core.TruncateResult(e.dispatch(ctx, task))
	endedAt := e.now()

	updated, ok := e.complete(task.ID, startedAt, result)
	if !ok {
		e.logger.Info("task removed during execution, result discarded", "task_id", task.ID)
		return core.ScheduledTask{}, false
	}

	if e.recorder != nil {
		run := core.RunRecord{
			ID:        core.NewID(),
			TaskID:    task.ID,
			StartedAt: startedAt.UTC(),
			EndedAt:   endedAt.UTC(),
			Result:    result,
		}
		if err := e.recorder.RecordRun(ctx, run); err != nil {
			e.logger.Warn("record task run", "task_id", task.ID, "err", err)
		}
	}
	e.logger.Info("task complete", "task_id", task.ID, "result", result, "status", updated.Status, "duration", endedAt.Sub(startedAt))
	e.publish(events.TaskComplete, events.TaskCompletePayload{TaskID: task.ID, Result: result})
	return updated, true
}

// dispatch calls the executor with a timeout and turns panics into a status.
func (e *Engine) dispatch(ctx context.Context, task core.ScheduledTask) (result string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task executor panicked", "task_id", task.ID, "panic", r)
			result = fmt.Sprintf("Error: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, e.taskTimeout)
	defer cancel()
	return e.executor.Execute(ctx, task, e.facade())
}

// complete records the outcome of an attempt started at startedAt and
// reschedules the task from that instant.
func (e *Engine) complete(id string, startedAt time.Time, result string) (core.ScheduledTask, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.entries[id]
	if !ok {
		return core.ScheduledTask{}, false
	}
	t := &en.task
	ran := startedAt.UnixMilli()
	t.LastRun = &ran
	t.LastResult = result

	next, again, err := core.NextRun(t.Schedule, t.IntervalSeconds, startedAt)
	switch {
	case err != nil:
		e.logger.Error("cannot reschedule task, marking completed", "task_id", id, "err", err)
		t.Status = core.TaskStatusCompleted
	case !again:
		t.Status = core.TaskStatusCompleted
	default:
		t.NextRun = next.UnixMilli()
		e.queue.push(dueItem{id: id, nextRun: t.NextRun, seq: en.seq})
	}
	return t.Clone(), true
}

func (e *Engine) insertLocked(t core.ScheduledTask) {
	e.seq++
	e.entries[t.ID] = &entry{task: t, seq: e.seq}
	if t.Status == core.TaskStatusActive {
		e.queue.push(dueItem{id: t.ID, nextRun: t.NextRun, seq: e.seq})
	}
}

func (e *Engine) snapshotLocked() []core.ScheduledTask {
	ordered := make([]*entry, 0, len(e.entries))
	for _, en := range e.entries {
		ordered = append(ordered, en)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	out := make([]core.ScheduledTask, len(ordered))
	for i, en := range ordered {
		out[i] = en.task.Clone()
	}
	return out
}

// persist saves a fresh snapshot. Failures are logged; memory stays authoritative.
func (e *Engine) persist(ctx context.Context) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	tasks := e.snapshotLocked()
	e.mu.Unlock()

	if err := e.store.Save(context.WithoutCancel(ctx), tasks); err != nil {
		e.logger.Error("save scheduled tasks", "count", len(tasks), "err", err)
	}
}

func (e *Engine) facade() *kernel.Facade {
	if e.kernel == nil {
		return nil
	}
	return e.kernel.Facade()
}

func (e *Engine) publish(name string, payload any) {
	if e.bus != nil {
		e.bus.Publish(name, payload)
	}
}
