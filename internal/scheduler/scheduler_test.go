package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int32
}

func (r *countingRunner) RunOnce(ctx context.Context) error {
	r.calls.Add(1)
	return nil
}

func TestScheduler_TicksAndStopsCleanly(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	sch := New(runner, 10*time.Millisecond)

	sch.Start(t.Context())
	require.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	sch.Stop()
	afterStop := runner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, afterStop, runner.calls.Load(), "no further ticks should fire after Stop")
}

func TestScheduler_StartTwiceIsNoOp(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	sch := New(runner, 10*time.Millisecond)

	sch.Start(t.Context())
	sch.Start(t.Context()) // second call must not spawn a second loop
	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	sch.Stop()
}

func TestScheduler_StopBeforeStartIsNoOp(t *testing.T) {
	t.Parallel()

	sch := New(&countingRunner{}, time.Second)
	sch.Stop() // must not panic or block
}
