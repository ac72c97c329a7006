package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"mediarelay/internal/config"
	"mediarelay/internal/logging"
	"mediarelay/internal/services"
)

// Task names reported in status snapshots and logs.
const (
	TaskReconcile = "reconcile"
	TaskSubtitles = "subtitles"
	TaskSweep     = "sweep"
)

// RunFunc executes one scheduled run.
type RunFunc func(ctx context.Context) error

// Runner is the subset of the engine the scheduler drives.
type Runner interface {
	RunReconciliation(ctx context.Context) error
	RunSubtitles(ctx context.Context) error
	RunSweep(ctx context.Context) error
}

// Task is one periodic loop.
type Task struct {
	Name     string
	Interval time.Duration
	Run      RunFunc
}

// TaskStatus is a snapshot of one loop.
type TaskStatus struct {
	Name      string
	Interval  time.Duration
	Runs      int
	LastRunID string
	LastStart time.Time
	LastError string
	Running   bool
}

// Status is a snapshot of the scheduler.
type Status struct {
	Running  bool
	LockPath string
	Tasks    []TaskStatus
}

type taskState struct {
	task   Task
	mu     sync.Mutex
	status TaskStatus
	busy   atomic.Bool
}

// Scheduler runs tasks on independent tickers under a single-instance lock.
type Scheduler struct {
	logger     *slog.Logger
	runTimeout time.Duration
	lockPath   string
	lock       *flock.Flock
	tasks      []*taskState

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a scheduler with the three standard tasks bound to runner.
func New(cfg *config.Config, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	if cfg == nil || runner == nil {
		return nil, errors.New("scheduler requires config and runner")
	}
	tasks := []Task{
		{Name: TaskReconcile, Interval: time.Duration(cfg.Reconcile.IntervalSeconds) * time.Second, Run: runner.RunReconciliation},
		{Name: TaskSubtitles, Interval: time.Duration(cfg.Subtitles.IntervalSeconds) * time.Second, Run: runner.RunSubtitles},
		{Name: TaskSweep, Interval: time.Duration(cfg.Sweeper.IntervalHours) * time.Hour, Run: runner.RunSweep},
	}
	return NewWithTasks(cfg.LockPath(), cfg.RunTimeout(), logger, tasks...)
}

// NewWithTasks builds a scheduler over arbitrary tasks. Tasks with a
// non-positive interval are disabled.
func NewWithTasks(lockPath string, runTimeout time.Duration, logger *slog.Logger, tasks ...Task) (*Scheduler, error) {
	if lockPath == "" {
		return nil, errors.New("scheduler lock path required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		logger:     logging.NewComponentLogger(logger, "scheduler"),
		runTimeout: runTimeout,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	for _, task := range tasks {
		if task.Run == nil {
			return nil, fmt.Errorf("task %q has no run function", task.Name)
		}
		if task.Interval <= 0 {
			s.logger.Info("scheduled task disabled",
				logging.String(logging.FieldEventType, "task_disabled"),
				logging.String("task", task.Name),
			)
			continue
		}
		s.tasks = append(s.tasks, &taskState{task: task, status: TaskStatus{Name: task.Name, Interval: task.Interval}})
	}
	return s, nil
}

// Start acquires the lock and launches one loop per task. Every task runs
// once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another scheduler holds %s", s.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(len(s.tasks))
	for _, state := range s.tasks {
		go s.loop(runCtx, state)
	}
	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_started"),
		logging.String("lock", s.lockPath),
		logging.Int("tasks", len(s.tasks)),
	)
	return nil
}

// Stop cancels every loop, waits for in-flight runs, and releases the lock.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	if err := s.lock.Unlock(); err != nil {
		logging.WarnWithContext(s.logger, "failed to release scheduler lock", "scheduler_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale lock file may remain until the process exits"),
		)
	}
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
}

// Status returns a snapshot of every loop.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	out := Status{Running: running, LockPath: s.lockPath}
	for _, state := range s.tasks {
		state.mu.Lock()
		snapshot := state.status
		state.mu.Unlock()
		snapshot.Running = state.busy.Load()
		out.Tasks = append(out.Tasks, snapshot)
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, state *taskState) {
	defer s.wg.Done()
	ticker := time.NewTicker(state.task.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, state)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, state)
		}
	}
}

// runOnce skips the tick when the previous run of the same task is still
// going.
func (s *Scheduler) runOnce(ctx context.Context, state *taskState) {
	if !state.busy.CompareAndSwap(false, true) {
		s.logger.Debug("previous run still active; skipping tick", logging.String("task", state.task.Name))
		return
	}
	defer state.busy.Store(false)

	runID := uuid.NewString()
	runCtx := services.WithRunID(ctx, runID)
	cancel := func() {}
	if s.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, s.runTimeout)
	}
	defer cancel()

	logger := logging.WithContext(runCtx, s.logger).With(logging.String("task", state.task.Name))
	started := time.Now()
	err := state.task.Run(runCtx)

	state.mu.Lock()
	state.status.Runs++
	state.status.LastRunID = runID
	state.status.LastStart = started
	state.status.LastError = ""
	if err != nil {
		state.status.LastError = err.Error()
	}
	state.mu.Unlock()

	switch {
	case err == nil:
		logger.Info("scheduled run complete",
			logging.String(logging.FieldEventType, "scheduled_run_complete"),
			logging.Duration("elapsed", time.Since(started)),
		)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		logger.Info("scheduled run interrupted by shutdown")
	default:
		logging.ErrorWithContext(logger, "scheduled run failed", "scheduled_run_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.Duration("elapsed", time.Since(started)),
		)
	}
}
