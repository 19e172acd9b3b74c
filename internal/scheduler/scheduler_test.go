package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCronRejectsDuplicateName(t *testing.T) {
	f := New()
	require.NoError(t, f.AddCron("price-refresh", "*/5 * * * * *", func(ctx context.Context) {}))
	err := f.AddCron("price-refresh", "*/5 * * * * *", func(ctx context.Context) {})
	assert.Error(t, err)
}

func TestAddCronRejectsInvalidExpression(t *testing.T) {
	f := New()
	err := f.AddCron("bad", "not a cron expression", func(ctx context.Context) {})
	assert.Error(t, err)
}

func TestPauseSuppressesCronExecution(t *testing.T) {
	f := New()
	var calls int32
	require.NoError(t, f.AddCron("tick", "* * * * * *", func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
	}))
	require.NoError(t, f.Pause("tick"))
	f.Start()
	defer f.Stop(context.Background())

	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestCronTaskRunsUntilPaused(t *testing.T) {
	f := New()
	var calls int32
	require.NoError(t, f.AddCron("tick", "* * * * * *", func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
	}))
	f.Start()
	defer f.Stop(context.Background())

	time.Sleep(1200 * time.Millisecond)
	require.NoError(t, f.Pause("tick"))
	countAfterPause := atomic.LoadInt32(&calls)
	assert.GreaterOrEqual(t, countAfterPause, int32(1))

	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, countAfterPause, atomic.LoadInt32(&calls))
}

func TestAddIntervalRunsImmediately(t *testing.T) {
	f := New()
	done := make(chan struct{})
	err := f.AddInterval(context.Background(), "sweep", func(ctx context.Context) {
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interval task did not run")
	}
}

func TestPauseUnknownTaskReturnsError(t *testing.T) {
	f := New()
	assert.Error(t, f.Pause("missing"))
	assert.Error(t, f.Resume("missing"))
}
