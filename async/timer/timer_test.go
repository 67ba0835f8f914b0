package timer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arfoundation/async"
	"github.com/arfoundation/async/async/timer"
)

func TestTimer_FiresAfterInterval(t *testing.T) {
	mgr := timer.NewManager()
	tm := timer.NewWithManager(mgr, 20*time.Millisecond, "tick")
	tm.Start()
	defer tm.Stop()

	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	op := async.NewOperation(ctrl, async.NewCallbackNotifier(func(*async.Operation) {}))
	done := make(chan struct{})
	op2 := async.NewOperation(ctrl, async.NewCallbackNotifier(func(o *async.Operation) { close(done) }))
	_ = op
	tm.WaitAsync(op2)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire in time")
	}
	require.NoError(t, op2.Err)
}

// TestS2_CyclicTimerThreeWaits reproduces scenario S2: a 100ms cyclic
// timer, waited on three times back-to-back, returns each time and the
// total wall time is approximately 300ms.
func TestS2_CyclicTimerThreeWaits(t *testing.T) {
	mgr := timer.NewManager()
	tm := timer.NewWithManager(mgr, 100*time.Millisecond, "cyclic")
	tm.Start()
	defer tm.Stop()

	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		done := make(chan struct{})
		op := async.NewOperation(ctrl, async.NewCallbackNotifier(func(*async.Operation) { close(done) }))
		tm.WaitAsync(op)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("wait %d did not fire in time", i)
		}
		require.NoError(t, op.Err)
	}
	elapsed := time.Since(start)
	require.InDelta(t, 300*time.Millisecond, elapsed, float64(100*time.Millisecond))
}

func TestTimer_StopCancelsWaiters(t *testing.T) {
	mgr := timer.NewManager()
	tm := timer.NewWithManager(mgr, time.Hour, "slow")
	tm.Start()

	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	op := async.NewOperation(ctrl, ctrl.Notifier())
	tm.WaitAsync(op)
	require.False(t, op.IsDone())

	tm.Stop()
	require.True(t, op.IsDone())
	require.ErrorIs(t, op.Err, async.ErrCancelled)
}
