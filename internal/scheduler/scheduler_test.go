package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"grimm.is/ngxweb/internal/clock"
)

// futureSchedule returns time + 1 hour
type futureSchedule struct{}

func (s futureSchedule) Next(t time.Time) time.Time {
	return t.Add(time.Hour)
}

func noop(ctx context.Context) error { return nil }

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestScheduler_AddTask(t *testing.T) {
	s := New(nil, nil)

	invalid := []*Task{
		{Schedule: futureSchedule{}, Func: noop},
		{ID: "no-schedule", Func: noop},
		{ID: "no-func", Schedule: futureSchedule{}},
	}
	for _, task := range invalid {
		if err := s.AddTask(task); err == nil {
			t.Errorf("AddTask(%+v) should fail", task)
		}
	}

	if err := s.AddTask(&Task{ID: "b", Name: "Beta", Schedule: futureSchedule{}, Func: noop}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if err := s.AddTask(&Task{ID: "a", Name: "Alpha", Schedule: futureSchedule{}, Func: noop}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if err := s.AddTask(&Task{ID: "a", Name: "Again", Schedule: futureSchedule{}, Func: noop}); err == nil {
		t.Error("Expected error adding duplicate task")
	}

	all := s.Status()
	if len(all) != 2 || all[0].Name != "Alpha" || all[1].Name != "Beta" {
		t.Errorf("Status not sorted by name: %+v", all)
	}
	if _, ok := s.StatusOf("missing"); ok {
		t.Error("StatusOf should not find unknown task")
	}
}

func TestScheduler_RunTask(t *testing.T) {
	s := New(nil, nil)

	release := make(chan struct{})
	ran := make(chan struct{}, 1)
	s.AddTask(&Task{
		ID:       "manual",
		Name:     "Manual",
		Schedule: futureSchedule{},
		Func: func(ctx context.Context) error {
			ran <- struct{}{}
			<-release
			return nil
		},
	})

	if err := s.RunTask("manual"); err == nil {
		t.Error("RunTask should fail while the scheduler is stopped")
	}

	s.Start()
	defer s.Stop()

	if err := s.RunTask("missing"); err == nil {
		t.Error("RunTask should fail for unknown task")
	}
	if err := s.RunTask("manual"); err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for manual task run")
	}
	if err := s.RunTask("manual"); err == nil {
		t.Error("RunTask should refuse a task that is still running")
	}

	close(release)
	waitFor(t, "task to finish", func() bool {
		st, _ := s.StatusOf("manual")
		return !st.Running && st.RunCount == 1
	})
}

func TestScheduler_RunOnStart(t *testing.T) {
	s := New(nil, nil)

	var runs atomic.Int32
	s.AddTask(&Task{
		ID:         "start-run",
		Name:       "Start Run",
		RunOnStart: true,
		Schedule:   futureSchedule{},
		Func: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start()
	s.Start() // no-op
	defer s.Stop()

	waitFor(t, "run on start", func() bool { return runs.Load() == 1 })
}

func TestScheduler_RunDue(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMockClock(start)
	s := New(nil, clk)
	s.tick = time.Hour

	var runs atomic.Int32
	s.AddTask(&Task{
		ID:       "hourly",
		Name:     "Hourly",
		Schedule: Every(time.Hour),
		Func: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	s.Start()
	defer s.Stop()

	s.runDue(clk.Now())
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatal("Task ran before it was due")
	}

	clk.Advance(time.Hour)
	s.runDue(clk.Now())
	waitFor(t, "due task", func() bool {
		st, _ := s.StatusOf("hourly")
		return st.RunCount == 1
	})

	st, _ := s.StatusOf("hourly")
	if want := start.Add(2 * time.Hour); !st.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want %v", st.NextRun, want)
	}
	if !st.LastRun.Equal(start.Add(time.Hour)) {
		t.Errorf("LastRun = %v", st.LastRun)
	}
}

func TestScheduler_TaskFailure(t *testing.T) {
	s := New(nil, nil)
	s.AddTask(&Task{
		ID:         "failing",
		Name:       "Failing",
		RunOnStart: true,
		Schedule:   futureSchedule{},
		Func: func(ctx context.Context) error {
			return errors.New("disk full")
		},
	})
	s.Start()
	defer s.Stop()

	waitFor(t, "failure to be recorded", func() bool {
		st, _ := s.StatusOf("failing")
		return st.ErrorCount == 1
	})
	st, _ := s.StatusOf("failing")
	if st.LastError != "disk full" {
		t.Errorf("LastError = %q", st.LastError)
	}
}

func TestScheduler_StopCancelsTasks(t *testing.T) {
	s := New(nil, nil)

	started := make(chan struct{})
	var cancelled atomic.Bool
	s.AddTask(&Task{
		ID:         "blocking",
		Name:       "Blocking",
		RunOnStart: true,
		Schedule:   futureSchedule{},
		Func: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	})
	s.Start()
	<-started

	s.Stop()
	if !cancelled.Load() {
		t.Error("Stop returned before the task saw cancellation")
	}
}

func TestScheduler_Timeout(t *testing.T) {
	s := New(nil, nil)
	s.AddTask(&Task{
		ID:         "slow",
		Name:       "Slow",
		RunOnStart: true,
		Timeout:    10 * time.Millisecond,
		Schedule:   futureSchedule{},
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	s.Start()
	defer s.Stop()

	waitFor(t, "timeout", func() bool {
		st, _ := s.StatusOf("slow")
		return st.LastError == context.DeadlineExceeded.Error()
	})
}
