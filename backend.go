package async

import "sync"

// PollEvents is a bitmask of readiness conditions a descriptor
// subscription is interested in (spec.md §4.4: a fdconn send waits for
// writability, a receive for readability).
type PollEvents uint32

const (
	PollRead PollEvents = 1 << iota
	PollWrite
)

// subscription is one registered descriptor interest. The callback
// runs on the Controller's owning thread, synchronously, while the
// backend is draining ready descriptors inside wait — exactly like a
// CommunicationObject's handle_read_ready/handle_write_ready in the
// source. Callbacks must not block.
type subscription struct {
	fd        uintptr
	events    PollEvents
	callback  func(revents PollEvents)
	cancelled bool
}

// subscriptionSet is the platform-agnostic bookkeeping shared by every
// backend implementation: a mutex-guarded slice plus deferred removal.
//
// Cancellation during iteration follows the same pattern the source
// uses for Controller's subscriber list: a callback invoked while we
// are iterating subs may itself cancel a sibling subscription (e.g. one
// fdconn operation's completion callback cancels another pending
// operation on a paired socket). Mutating subs mid-iteration would
// invalidate the loop, so cancel only flips the cancelled flag; the
// actual removal happens in sweep, called once after the iteration
// completes.
type subscriptionSet struct {
	mu   sync.Mutex
	subs []*subscription
}

func (s *subscriptionSet) add(fd uintptr, events PollEvents, cb func(revents PollEvents)) *subscription {
	sub := &subscription{fd: fd, events: events, callback: cb}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub
}

// cancel marks sub for removal. Safe to call while snapshot's returned
// slice is being iterated by the caller.
func (s *subscriptionSet) cancel(sub *subscription) {
	s.mu.Lock()
	sub.cancelled = true
	s.mu.Unlock()
}

// sweep drops every cancelled subscription. Must be called after each
// round of callback dispatch, never during.
func (s *subscriptionSet) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if !sub.cancelled {
			kept = append(kept, sub)
		}
	}
	s.subs = kept
}

// snapshot returns the current live subscriptions for building a
// platform poll set. The returned slice must be treated as read-only
// and may contain entries cancelled concurrently with iteration; a
// cancelled entry's callback must still be tolerated (it will be a
// no-op or already-removed by the time sweep runs).
func (s *subscriptionSet) snapshot() []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *subscriptionSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
