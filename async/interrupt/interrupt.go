// Package interrupt implements the process-wide interrupt source from
// spec.md §4.8: a single dispatcher per process fans out Break/Hangup/
// Terminate notifications to every waiting InterruptOperation,
// regardless of which Controller created it.
package interrupt

import (
	"sync"

	"github.com/arfoundation/async"
)

// Source is the process-wide interrupt dispatcher. Use Default rather
// than constructing a Source directly; the platform signal/console
// handler is only installed once, against the Default instance.
type Source struct {
	mu      sync.Mutex
	waiting []*async.InterruptOperation
}

// NewSource creates a standalone Source with no platform delivery
// wired in; callers drive it purely via deliver-equivalent test hooks
// or compose it manually. Production code should use Default.
func NewSource() *Source { return &Source{} }

// Deliver injects kind as if the platform handler observed it. Exposed
// for tests exercising fan-out semantics without depending on the real
// OS signal/console-control path.
func (s *Source) Deliver(kind async.InterruptKind) { s.deliver(kind) }

var (
	defaultOnce   sync.Once
	defaultSource = &Source{}
)

// Default returns the process-wide Source, installing the platform
// delivery mechanism (POSIX signal handling or the Windows console
// control handler) on first use.
func Default() *Source {
	defaultOnce.Do(func() {
		installPlatformHandler(defaultSource)
	})
	return defaultSource
}

// WaitAsync registers op to complete the next time any kind in
// op.Kinds is delivered. Completion sets op.Triggered to whichever kind
// fired.
func (s *Source) WaitAsync(op *async.InterruptOperation) {
	s.mu.Lock()
	s.waiting = append(s.waiting, op)
	s.mu.Unlock()
}

// Cancel removes op from the waiting list if it has not already fired.
func (s *Source) Cancel(op *async.InterruptOperation) {
	s.mu.Lock()
	for i, o := range s.waiting {
		if o == op {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			s.mu.Unlock()
			op.Complete(0, async.ErrCancelled)
			return
		}
	}
	s.mu.Unlock()
}

// deliver is called by the platform handler when kind occurs. Every
// waiter whose Kinds includes kind completes; waiters interested only
// in other kinds are left registered. Delivery always happens off the
// signal-handling path itself (see interrupt_unix.go), so it is free to
// take s.mu and allocate.
func (s *Source) deliver(kind async.InterruptKind) {
	s.mu.Lock()
	var fired []*async.InterruptOperation
	kept := s.waiting[:0]
	for _, op := range s.waiting {
		if containsKind(op.Kinds, kind) {
			fired = append(fired, op)
		} else {
			kept = append(kept, op)
		}
	}
	s.waiting = kept
	s.mu.Unlock()

	for _, op := range fired {
		op.Triggered = kind
		op.Complete(0, nil)
	}
}

func containsKind(kinds []async.InterruptKind, k async.InterruptKind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}
