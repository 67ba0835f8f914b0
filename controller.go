package async

import (
	"sync"
	"time"
)

// Controller is a per-thread event demultiplexer (spec.md §4.3). A
// producer thread hands Operations to a CommunicationObject, which
// registers interest with the Controller's platform backend; the
// owning thread drains completions with Wait. There is no reactor
// shared across Controllers: each owns its backend privately.
type Controller struct {
	mu        sync.Mutex
	completed []*Operation
	backend   *backend
	mode      modeState
	closed    bool
}

// NewController creates a Controller with its own platform backend.
func NewController() (*Controller, error) {
	b, err := newBackend()
	if err != nil {
		return nil, err
	}
	return &Controller{backend: b}, nil
}

// Notifier returns a Notifier that routes completions through this
// Controller's completed queue, for handing to Operations created
// against this Controller.
func (c *Controller) Notifier() Notifier {
	return &controllerNotifier{controller: c}
}

// Backend exposes the platform backend for CommunicationObjects that
// need to register descriptor interest (async/fdconn) directly.
func (c *Controller) Backend() *backend { return c.backend }

// Subscribe registers interest in fd becoming ready for events; cb runs
// on the owning thread during Wait when readiness is observed. The
// returned cancel function may be called from any thread and is
// idempotent. fd is a raw unix file descriptor or, on Windows, a
// windows.Handle value.
func (c *Controller) Subscribe(fd uintptr, events PollEvents, cb func(revents PollEvents)) (cancel func(), err error) {
	return c.backend.subscribe(fd, events, cb)
}

// postDirect appends a completed Operation to the queue and wakes the
// backend if it may currently be blocked. Called by controllerNotifier
// from either Notify or NotifyDirect; the distinction only matters to
// Notifier implementations that bypass the queue entirely.
func (c *Controller) postDirect(op *Operation) {
	c.mu.Lock()
	c.completed = append(c.completed, op)
	c.mu.Unlock()
	if c.mode.load() != NotWaiting {
		c.backend.wake()
	}
}

// RevertPost removes op from the completed queue if it is still
// present and has not yet been observed by Wait. This mirrors the
// source's Controller::revertPost: used when a cancel races with a
// completion that already posted, so the Operation can be re-attempted
// instead of being delivered twice.
func (c *Controller) RevertPost(op *Operation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.completed {
		if o == op {
			c.completed = append(c.completed[:i], c.completed[i+1:]...)
			return true
		}
	}
	return false
}

// Wait blocks until an Operation completes or timeout elapses (a
// negative timeout blocks indefinitely). It returns the first completed
// Operation in FIFO order, or (nil, nil) on timeout. Wait must only be
// called from the Controller's owning thread; it is not reentrant.
func (c *Controller) Wait(timeout time.Duration) (*Operation, error) {
	deadline := time.Time{}
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	remaining := timeout
	for {
		mode := WaitingForSemaphore
		if c.backend.hasSubscriptions() {
			mode = WaitingForDescriptor
		}
		c.mode.store(mode)

		if op, ok := c.popCompleted(); ok {
			c.mode.store(NotWaiting)
			return op, nil
		}

		woke, err := c.backend.wait(remaining)
		c.mode.store(NotWaiting)
		if err != nil {
			return nil, err
		}

		if op, ok := c.popCompleted(); ok {
			return op, nil
		}
		if !woke && timeout >= 0 && !time.Now().Before(deadline) {
			return nil, nil
		}
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, nil
			}
		}
	}
}

// WaitSpecific blocks until the given Operation completes, setting aside
// (and then re-queueing at the front) any other completions observed in the
// meantime in their original order, so a caller interested in a single
// Operation does not have to manually pump Wait.
func (c *Controller) WaitSpecific(op *Operation, timeout time.Duration) error {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	var sideEffects []*Operation
	defer func() {
		if len(sideEffects) == 0 {
			return
		}
		c.mu.Lock()
		c.completed = append(sideEffects, c.completed...)
		c.mu.Unlock()
	}()
	for {
		if op.IsDone() {
			return nil
		}
		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil
			}
		}
		completed, err := c.Wait(remaining)
		if err != nil {
			return err
		}
		if completed == nil {
			return nil
		}
		if completed == op {
			return nil
		}
		sideEffects = append(sideEffects, completed)
	}
}

func (c *Controller) popCompleted() (*Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.completed) == 0 {
		return nil, false
	}
	op := c.completed[0]
	c.completed = c.completed[1:]
	return op, true
}

// Close releases the Controller's backend resources (self-pipe fds or
// Windows event handles). It is not safe to call Wait concurrently with
// Close.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.backend.close()
}
