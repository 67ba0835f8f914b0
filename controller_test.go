package async_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arfoundation/async"
)

func TestController_WaitTimesOutWithNoWork(t *testing.T) {
	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	start := time.Now()
	op, err := ctrl.Wait(30 * time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, op)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestController_PostFromAnotherGoroutineWakesWait(t *testing.T) {
	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	op := async.NewOperation(ctrl, ctrl.Notifier())
	go func() {
		time.Sleep(10 * time.Millisecond)
		op.Complete(3, nil)
	}()

	got, err := ctrl.Wait(time.Second)
	require.NoError(t, err)
	require.Same(t, op, got)
	require.Equal(t, 3, got.N)
}

func TestController_RevertPostRemovesUnobservedCompletion(t *testing.T) {
	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	op := async.NewOperation(ctrl, ctrl.Notifier())
	op.Complete(1, nil)

	require.True(t, ctrl.RevertPost(op))
	// Second revert finds nothing left to remove.
	require.False(t, ctrl.RevertPost(op))

	got, err := ctrl.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOperation_CancelIsIdempotent(t *testing.T) {
	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	op := async.NewOperation(ctrl, ctrl.Notifier())
	op.Complete(0, nil)

	// Cancel after completion must be a no-op: it must not change the
	// already-observed result or flip IsCancelled.
	op.Cancel()
	op.Cancel()
	require.False(t, op.IsCancelled())
	require.NoError(t, op.Err)
}

func TestController_WaitSpecificIgnoresUnrelatedCompletions(t *testing.T) {
	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()
	notifier := ctrl.Notifier()

	other := async.NewOperation(ctrl, notifier)
	target := async.NewOperation(ctrl, notifier)

	go func() {
		time.Sleep(5 * time.Millisecond)
		other.Complete(1, nil)
		time.Sleep(5 * time.Millisecond)
		target.Complete(2, nil)
	}()

	err = ctrl.WaitSpecific(target, time.Second)
	require.NoError(t, err)
	require.True(t, target.IsDone())

	// other's completion must still be observable via a plain Wait.
	got, err := ctrl.Wait(time.Second)
	require.NoError(t, err)
	require.Same(t, other, got)
}
