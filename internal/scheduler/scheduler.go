// Package scheduler is the gateway's named-task dispatcher. Shutdown
// cancels every task registered with a Scheduler and waits for the
// non-Unref ones, so registered work is drained rather than left behind.
// The server registers its topology re-poll, services-cache refresh and
// saved-station favourites refresh here. Subscription renewal, the
// subscription health check, SSDP rescans and the debug stream run on
// their own tickers outside it, and no task re-indexes the library or
// refreshes a saved-station API listing on a timer.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskFunc is the unit of work a scheduled task runs. It receives a context
// that is cancelled when the task is cleared or the scheduler shuts down.
type TaskFunc func(ctx context.Context)

// TaskKind distinguishes how a task is driven.
type TaskKind string

const (
	KindInterval TaskKind = "interval"
	KindTimeout  TaskKind = "timeout"
	KindCron     TaskKind = "cron"
)

// Options controls how a scheduled task behaves.
type Options struct {
	// Unref marks the task non-blocking for Shutdown: the scheduler
	// still cancels it, but Shutdown does not wait for it to finish.
	Unref bool
}

// task is the scheduler's internal bookkeeping for one named unit of work.
type task struct {
	id         string
	kind       TaskKind
	fn         TaskFunc
	period     time.Duration
	delay      time.Duration
	cronExpr   string
	unref      bool
	cancel     context.CancelFunc
	done       chan struct{}
	createdAt  time.Time
	lastRunAt  time.Time
	runCount   int
	lastErrMsg string
}

// Scheduler owns every named background task running in the gateway.
// Registering a task under an id that is already in use cancels and
// replaces the prior one.
type Scheduler struct {
	logger *log.Logger
	cron   *cron.Cron

	mu    sync.Mutex
	tasks map[string]*task
}

// New creates a Scheduler. The returned scheduler's internal cron driver
// (used only by ScheduleCron) is started immediately; it runs until Shutdown.
func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		logger: logger,
		cron:   cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
		tasks:  make(map[string]*task),
	}
	s.cron.Start()
	return s
}

// ScheduleInterval runs fn every period, starting one period from now.
// Duplicate id replaces the previous task registered under it.
func (s *Scheduler) ScheduleInterval(id string, fn TaskFunc, period time.Duration, opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(id)

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:        id,
		kind:      KindInterval,
		fn:        fn,
		period:    period,
		unref:     opts.Unref,
		cancel:    cancel,
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	s.tasks[id] = t

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.run(t, ctx)
			}
		}
	}()
}

// ScheduleTimeout runs fn once, after delay. The task entry is removed from
// GetDetailedTasks once it has fired, same as clearTask would.
func (s *Scheduler) ScheduleTimeout(id string, fn TaskFunc, delay time.Duration, opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(id)

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:        id,
		kind:      KindTimeout,
		fn:        fn,
		delay:     delay,
		unref:     opts.Unref,
		cancel:    cancel,
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	s.tasks[id] = t

	go func() {
		defer close(t.done)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.run(t, ctx)
		}
		s.mu.Lock()
		if s.tasks[id] == t {
			delete(s.tasks, id)
		}
		s.mu.Unlock()
	}()
}

// ScheduleCron runs fn on the given standard 5-field cron expression
// (minute hour dom month dow), interpreted in server-local time, for
// tasks that want clock-aligned scheduling rather than a fixed period.
// The server registers no cron tasks; its services-cache refresh runs on
// a 6-hour ScheduleInterval.
func (s *Scheduler) ScheduleCron(id string, fn TaskFunc, cronExpr string, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(id)

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:        id,
		kind:      KindCron,
		fn:        fn,
		cronExpr:  cronExpr,
		unref:     opts.Unref,
		cancel:    cancel,
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		select {
		case <-ctx.Done():
		default:
			s.run(t, ctx)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("invalid cron expression %q for task %s: %w", cronExpr, id, err)
	}

	go func() {
		<-ctx.Done()
		s.cron.Remove(entryID)
		close(t.done)
	}()

	s.tasks[id] = t
	return nil
}

func (s *Scheduler) run(t *task, ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("scheduler: task %s panicked: %v", t.id, r)
			s.mu.Lock()
			t.lastErrMsg = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
		}
	}()
	t.fn(ctx)
	s.mu.Lock()
	t.lastRunAt = time.Now()
	t.runCount++
	s.mu.Unlock()
}

// ClearTask cancels the named task, if any. No further invocation of its
// function occurs after ClearTask returns.
func (s *Scheduler) ClearTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(id)
}

func (s *Scheduler) clearLocked(id string) {
	if t, ok := s.tasks[id]; ok {
		t.cancel()
		delete(s.tasks, id)
	}
}

// Status summarizes the scheduler's running tasks.
type Status struct {
	TotalTasks    int `json:"total_tasks"`
	IntervalTasks int `json:"interval_tasks"`
	TimeoutTasks  int `json:"timeout_tasks"`
	CronTasks     int `json:"cron_tasks"`
	UnrefTasks    int `json:"unref_tasks"`
}

// GetStatus returns a point-in-time count of registered tasks by kind.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Status
	st.TotalTasks = len(s.tasks)
	for _, t := range s.tasks {
		switch t.kind {
		case KindInterval:
			st.IntervalTasks++
		case KindTimeout:
			st.TimeoutTasks++
		case KindCron:
			st.CronTasks++
		}
		if t.unref {
			st.UnrefTasks++
		}
	}
	return st
}

// TaskInfo is one task's introspection record, as returned by GetDetailedTasks.
type TaskInfo struct {
	ID        string     `json:"id"`
	Kind      TaskKind   `json:"kind"`
	Period    string     `json:"period,omitempty"`
	Delay     string     `json:"delay,omitempty"`
	CronExpr  string     `json:"cron_expr,omitempty"`
	Unref     bool       `json:"unref"`
	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	RunCount  int        `json:"run_count"`
	LastError string     `json:"last_error,omitempty"`
}

// GetDetailedTasks returns an introspection record for every registered task.
func (s *Scheduler) GetDetailedTasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		info := TaskInfo{
			ID:        t.id,
			Kind:      t.kind,
			Unref:     t.unref,
			CreatedAt: t.createdAt,
			RunCount:  t.runCount,
			LastError: t.lastErrMsg,
		}
		if t.period > 0 {
			info.Period = t.period.String()
		}
		if t.delay > 0 {
			info.Delay = t.delay.String()
		}
		if t.cronExpr != "" {
			info.CronExpr = t.cronExpr
		}
		if !t.lastRunAt.IsZero() {
			lastRun := t.lastRunAt
			info.LastRunAt = &lastRun
		}
		infos = append(infos, info)
	}
	return infos
}

// Shutdown cancels every task and blocks until every non-Unref task's
// goroutine has exited, or ctx is done. Unref tasks are cancelled but not
// waited on.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	waitOn := make([]*task, 0, len(s.tasks))
	for id, t := range s.tasks {
		t.cancel()
		if !t.unref {
			waitOn = append(waitOn, t)
		}
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	s.cron.Stop()

	for _, t := range waitOn {
		select {
		case <-t.done:
		case <-ctx.Done():
			return fmt.Errorf("scheduler shutdown: %w waiting on task %s", ctx.Err(), t.id)
		}
	}
	return nil
}
