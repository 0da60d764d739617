package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCount(t *testing.T, counter *int32, want int32, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(counter) >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(counter), want, "task did not run the expected number of times")
}

func TestScheduleInterval_RunsRepeatedly(t *testing.T) {
	s := New(nil)
	defer s.Shutdown(context.Background())

	var count int32
	s.ScheduleInterval("tick", func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	}, 5*time.Millisecond, Options{})

	waitForCount(t, &count, 3, time.Second)
}

func TestScheduleInterval_ClearTaskStopsFurtherInvocation(t *testing.T) {
	s := New(nil)
	defer s.Shutdown(context.Background())

	var count int32
	s.ScheduleInterval("tick", func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	}, 5*time.Millisecond, Options{})

	waitForCount(t, &count, 2, time.Second)
	s.ClearTask("tick")
	observed := atomic.LoadInt32(&count)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, observed, atomic.LoadInt32(&count), "clearTask must stop further invocations of f")
}

func TestScheduleInterval_DuplicateIDReplacesTask(t *testing.T) {
	s := New(nil)
	defer s.Shutdown(context.Background())

	var firstCount, secondCount int32
	s.ScheduleInterval("dup", func(ctx context.Context) {
		atomic.AddInt32(&firstCount, 1)
	}, 5*time.Millisecond, Options{})
	waitForCount(t, &firstCount, 1, time.Second)

	s.ScheduleInterval("dup", func(ctx context.Context) {
		atomic.AddInt32(&secondCount, 1)
	}, 5*time.Millisecond, Options{})
	waitForCount(t, &secondCount, 1, time.Second)

	assert.Equal(t, 1, s.GetStatus().TotalTasks, "duplicate id must replace, not stack, the prior task")
}

func TestScheduleTimeout_RunsOnceThenRemovesItself(t *testing.T) {
	s := New(nil)
	defer s.Shutdown(context.Background())

	var count int32
	s.ScheduleTimeout("once", func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	}, 5*time.Millisecond, Options{})

	waitForCount(t, &count, 1, time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))

	st := s.GetStatus()
	assert.Equal(t, 0, st.TotalTasks)
}

func TestGetStatus_CountsByKind(t *testing.T) {
	s := New(nil)
	defer s.Shutdown(context.Background())

	s.ScheduleInterval("interval-1", func(ctx context.Context) {}, time.Hour, Options{})
	s.ScheduleTimeout("timeout-1", func(ctx context.Context) {}, time.Hour, Options{Unref: true})
	require.NoError(t, s.ScheduleCron("cron-1", func(ctx context.Context) {}, "0 3 * * *", Options{}))

	st := s.GetStatus()
	assert.Equal(t, 3, st.TotalTasks)
	assert.Equal(t, 1, st.IntervalTasks)
	assert.Equal(t, 1, st.TimeoutTasks)
	assert.Equal(t, 1, st.CronTasks)
	assert.Equal(t, 1, st.UnrefTasks)
}

func TestScheduleCron_InvalidExpressionReturnsError(t *testing.T) {
	s := New(nil)
	defer s.Shutdown(context.Background())

	err := s.ScheduleCron("bad-cron", func(ctx context.Context) {}, "not a cron expr", Options{})
	assert.Error(t, err)
	assert.Equal(t, 0, s.GetStatus().TotalTasks)
}

func TestShutdown_WaitsForNonUnrefTasksButNotUnrefOnes(t *testing.T) {
	s := New(nil)

	blocking := make(chan struct{})
	started := make(chan struct{})
	s.ScheduleTimeout("blocking", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(blocking)
	}, time.Millisecond, Options{})
	<-started

	s.ScheduleInterval("unref-forever", func(ctx context.Context) {}, time.Hour, Options{Unref: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case <-blocking:
	default:
		t.Fatal("expected blocking task to observe cancellation before Shutdown returned")
	}
}

func TestGetDetailedTasks_ReflectsRunCount(t *testing.T) {
	s := New(nil)
	defer s.Shutdown(context.Background())

	var count int32
	s.ScheduleInterval("counted", func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	}, 5*time.Millisecond, Options{})
	waitForCount(t, &count, 2, time.Second)

	details := s.GetDetailedTasks()
	require.Len(t, details, 1)
	assert.Equal(t, "counted", details[0].ID)
	assert.GreaterOrEqual(t, details[0].RunCount, 2)
	assert.NotNil(t, details[0].LastRunAt)
}
