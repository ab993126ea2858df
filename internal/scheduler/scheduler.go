// Package scheduler runs the server's periodic housekeeping tasks.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"grimm.is/ngxweb/internal/clock"
	"grimm.is/ngxweb/internal/logging"
)

// TaskFunc performs a scheduled task. ctx is cancelled when the scheduler
// stops or the task's timeout passes.
type TaskFunc func(ctx context.Context) error

// Schedule defines when a task should run.
type Schedule interface {
	// Next returns the next time the task should run after the given time.
	Next(after time.Time) time.Time
}

// Task represents a scheduled task.
type Task struct {
	ID          string
	Name        string
	Description string
	Schedule    Schedule
	Func        TaskFunc
	RunOnStart  bool
	Timeout     time.Duration
}

// TaskStatus represents the current status of a task.
type TaskStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
	RunCount     int64         `json:"run_count"`
	ErrorCount   int64         `json:"error_count"`
}

// Scheduler manages and runs scheduled tasks.
type Scheduler struct {
	tasks   map[string]*taskEntry
	mu      sync.Mutex
	logger  *logging.Logger
	clock   clock.Clock
	tick    time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

type taskEntry struct {
	task   *Task
	status TaskStatus
}

// New creates a scheduler. A nil logger uses the "scheduler" component
// logger and a nil clock the wall clock.
func New(logger *logging.Logger, clk clock.Clock) *Scheduler {
	if logger == nil {
		logger = logging.WithComponent("scheduler")
	}
	return &Scheduler{
		tasks:  make(map[string]*taskEntry),
		logger: logger,
		clock:  clock.Or(clk),
		tick:   time.Second,
	}
}

// AddTask adds a task to the scheduler.
func (s *Scheduler) AddTask(task *Task) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if task.Schedule == nil {
		return fmt.Errorf("task schedule is required")
	}
	if task.Func == nil {
		return fmt.Errorf("task function is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	s.tasks[task.ID] = &taskEntry{
		task: task,
		status: TaskStatus{
			ID:          task.ID,
			Name:        task.Name,
			Description: task.Description,
			NextRun:     task.Schedule.Next(s.clock.Now()),
		},
	}
	s.logger.Debug("task added", "id", task.ID, "next_run", s.tasks[task.ID].status.NextRun)
	return nil
}

// RunTask runs a task now, regardless of schedule. It fails when the task
// is unknown, already running, or the scheduler is stopped.
func (s *Scheduler) RunTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task %s not found", id)
	}
	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}
	if entry.status.Running {
		return fmt.Errorf("task %s is already running", id)
	}
	s.launch(entry)
	return nil
}

// Status returns the status of all tasks, sorted by name.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, entry := range s.tasks {
		statuses = append(statuses, entry.status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// StatusOf returns the status of one task.
func (s *Scheduler) StatusOf(id string) (TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[id]
	if !exists {
		return TaskStatus{}, false
	}
	return entry.status, true
}

// Start launches RunOnStart tasks and the scheduling loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	for _, entry := range s.tasks {
		if entry.task.RunOnStart {
			s.launch(entry)
		}
	}

	s.wg.Add(1)
	go s.run(s.ctx)
	s.logger.Info("Scheduler started", "tasks", len(s.tasks))
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(s.clock.Now())
		}
	}
}

// runDue launches every idle task whose next run is not after now.
func (s *Scheduler) runDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	for _, entry := range s.tasks {
		if entry.status.Running || entry.status.NextRun.IsZero() {
			continue
		}
		if !now.Before(entry.status.NextRun) {
			s.launch(entry)
		}
	}
}

// launch starts entry in its own goroutine. Callers hold s.mu.
func (s *Scheduler) launch(entry *taskEntry) {
	entry.status.Running = true
	s.wg.Add(1)
	go s.execute(s.ctx, entry)
}

func (s *Scheduler) execute(parent context.Context, entry *taskEntry) {
	defer s.wg.Done()

	task := entry.task
	var ctx context.Context
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, task.Timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()

	start := s.clock.Now()
	err := task.Func(ctx)
	duration := s.clock.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.status.Running = false
	entry.status.LastRun = start
	entry.status.LastDuration = duration
	entry.status.RunCount++
	entry.status.NextRun = task.Schedule.Next(s.clock.Now())
	if err != nil {
		entry.status.LastError = err.Error()
		entry.status.ErrorCount++
		s.logger.Warn("Task failed", "id", task.ID, "error", err, "duration", duration)
		return
	}
	entry.status.LastError = ""
	s.logger.Debug("Task completed", "id", task.ID, "duration", duration)
}
