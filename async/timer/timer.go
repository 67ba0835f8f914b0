// Package timer implements a process-wide timer source: a single
// background manager goroutine tracks every live Timer and wakes
// waiters when a Timer's interval elapses, matching spec.md §4.7's
// single-thread timer manager design.
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/arfoundation/async"
)

// Timer fires repeatedly at a fixed interval once started. Callers
// register interest with WaitAsync; each call consumes one pending
// fire and must be re-issued for the next one, matching the source's
// one-shot-per-call Timer::waitAsync.
type Timer struct {
	manager   *Manager
	interval  time.Duration
	name      string
	heapIndex int

	mu             sync.Mutex
	lastCheck      time.Time
	nextCheck      time.Time
	waiters        []*async.Operation
	pendingSignals int
	started        bool
	stopped        bool
}

// New creates a Timer against the process-wide default Manager. Use
// NewWithManager to attach to an explicit Manager (mainly for tests
// that want isolated timer threads).
func New(interval time.Duration, name string) *Timer {
	return NewWithManager(Default(), interval, name)
}

// NewWithManager creates a Timer against an explicit Manager.
func NewWithManager(m *Manager, interval time.Duration, name string) *Timer {
	return &Timer{manager: m, interval: interval, name: name, heapIndex: -1}
}

func (t *Timer) Name() string { return t.name }

// Start arms the timer; it is a no-op if already started.
func (t *Timer) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.stopped = false
	t.lastCheck = t.manager.now()
	t.nextCheck = t.lastCheck.Add(t.interval)
	t.mu.Unlock()
	t.manager.register(t)
}

// Stop disarms the timer. Any Operations still waiting complete with
// async.ErrCancelled, matching a CommunicationObject's Cancel contract
// even though Timer itself is not a CommunicationObject.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.started = false
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()
	t.manager.unregister(t)
	for _, op := range waiters {
		op.Complete(0, async.ErrCancelled)
	}
}

// WaitAsync registers op to complete the next time this Timer fires.
// op completes with N=0 and Err=nil on a normal fire. A tick that
// elapsed while no waiter was registered is not lost: it is banked as
// a pending signal and handed to the next WaitAsync call directly,
// without waiting for another interval to elapse.
func (t *Timer) WaitAsync(op *async.Operation) {
	t.mu.Lock()
	if t.stopped || !t.started {
		t.mu.Unlock()
		op.Complete(0, &async.SystemError{Message: "timer not running"})
		return
	}
	if t.pendingSignals > 0 {
		t.pendingSignals--
		t.mu.Unlock()
		op.Complete(0, nil)
		return
	}
	t.waiters = append(t.waiters, op)
	t.mu.Unlock()
}

// CancelWait removes op from this Timer's waiter list if still
// present, completing it with async.ErrCancelled.
func (t *Timer) CancelWait(op *async.Operation) {
	t.mu.Lock()
	for i, o := range t.waiters {
		if o == op {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			t.mu.Unlock()
			op.Complete(0, async.ErrCancelled)
			return
		}
	}
	t.mu.Unlock()
}

// update runs on the Manager goroutine: it checks whether the timer is
// due, fires waiters if so, and returns the Timer's next check time.
//
// The throttle rule below is carried from the pre-distillation
// original's Timer::update exactly: a timer whose computed next check
// would be <= now (interval has already fully elapsed, or elapsed more
// than once between manager ticks) is rearmed one millisecond ahead of
// now rather than one full interval ahead, so a timer that falls behind
// catches up gradually instead of firing in a tight loop.
func (t *Timer) update(now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.stopped {
		return time.Time{}
	}
	if now.Before(t.nextCheck) {
		return t.nextCheck
	}
	// A fire notifies exactly one waiter, matching the source's
	// extractFront()/m_numSignals bookkeeping: with no waiter currently
	// registered, the tick is banked in pendingSignals for the next
	// WaitAsync to consume directly rather than being lost.
	var fired *async.Operation
	if len(t.waiters) > 0 {
		fired = t.waiters[0]
		t.waiters = t.waiters[1:]
	} else {
		t.pendingSignals++
	}
	t.lastCheck = t.lastCheck.Add(t.interval)
	t.nextCheck = t.lastCheck.Add(t.interval)
	if !t.nextCheck.After(now) {
		t.lastCheck = now.Add(-t.interval + time.Millisecond)
		t.nextCheck = now.Add(time.Millisecond)
	}
	next := t.nextCheck
	if fired != nil {
		go fired.Complete(0, nil)
	}
	return next
}

// timerHeap orders Timers by nextCheck for the Manager's wake
// scheduling, grounded on the teacher's own use of container/heap for
// its internal priority structures.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	return h[i].peekNextCheck().Before(h[j].peekNextCheck())
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	tm := x.(*Timer)
	tm.heapIndex = len(*h)
	*h = append(*h, tm)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	tm := old[n-1]
	old[n-1] = nil
	tm.heapIndex = -1
	*h = old[:n-1]
	return tm
}

func (t *Timer) peekNextCheck() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextCheck
}

// Manager is the single background goroutine multiplexing every live
// Timer. Most callers use the process-wide Default Manager; tests may
// construct their own to avoid cross-test interference.
type Manager struct {
	mu      sync.Mutex
	timers  timerHeap
	wake    chan struct{}
	started bool
	logger  async.Logger
}

// NewManager creates a Manager. Its goroutine is started lazily on the
// first Timer registration.
func NewManager() *Manager {
	return &Manager{wake: make(chan struct{}, 1)}
}

var defaultManager = NewManager()

// Default returns the process-wide Manager used by New.
func Default() *Manager { return defaultManager }

func (m *Manager) now() time.Time { return time.Now() }

func (m *Manager) register(t *Timer) {
	m.mu.Lock()
	heap.Push(&m.timers, t)
	started := m.started
	m.started = true
	m.mu.Unlock()
	if !started {
		go m.run()
	} else {
		m.poke()
	}
}

func (m *Manager) unregister(t *Timer) {
	m.mu.Lock()
	if t.heapIndex >= 0 && t.heapIndex < len(m.timers) {
		heap.Remove(&m.timers, t.heapIndex)
	}
	m.mu.Unlock()
	m.poke()
}

func (m *Manager) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// run is the Manager's sole goroutine: sleep until the earliest
// nextCheck, update every due timer, repeat. It never exits; a process
// with no live timers simply blocks on m.wake.
func (m *Manager) run() {
	for {
		m.mu.Lock()
		now := m.now()
		for i := range m.timers {
			m.timers[i].update(now)
		}
		heap.Init(&m.timers)
		var sleep time.Duration
		if len(m.timers) == 0 {
			sleep = time.Hour
		} else {
			sleep = m.timers[0].peekNextCheck().Sub(now)
			if sleep < 0 {
				sleep = 0
			}
		}
		m.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-m.wake:
			timer.Stop()
		}
	}
}
