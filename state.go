package async

import "sync/atomic"

// BackendMode describes what a Controller's platform backend is
// currently blocked on, per spec.md §4.3. It is stored as an atomic
// int32 so the Controller's postDirect (called from any thread) can
// observe it without taking the Controller's mutex.
type BackendMode int32

const (
	// NotWaiting: the backend is not inside Wait; a Post from another
	// thread only needs to append to the completed queue.
	NotWaiting BackendMode = iota
	// WaitingForSemaphore: the backend is blocked on its wake primitive
	// alone (poll on the self-pipe on POSIX, WaitForMultipleObjects on the
	// wake event on Windows) because it has no descriptors to multiplex, only posted
	// completions or a timeout to wait for.
	WaitingForSemaphore
	// WaitingForDescriptor: the backend is blocked inside the
	// multiplexing syscall (poll/WaitForMultipleObjects) with one or more
	// registered descriptors, and the wake primitive is included as an
	// extra descriptor in that same call.
	WaitingForDescriptor
)

func (m BackendMode) String() string {
	switch m {
	case NotWaiting:
		return "NotWaiting"
	case WaitingForSemaphore:
		return "WaitingForSemaphore"
	case WaitingForDescriptor:
		return "WaitingForDescriptor"
	default:
		return "BackendMode(?)"
	}
}

// modeState is the atomic holder for a BackendMode, grounded on the
// teacher's FastState atomic pattern (eventloop's internal loop/promise
// state machines). Controller.Wait stores the waiting mode before it
// checks the completed queue, so a concurrent post from another thread
// is either found by that check or observes the waiting mode and writes
// the wake primitive.
type modeState struct {
	v atomic.Int32
}

func (s *modeState) load() BackendMode {
	return BackendMode(s.v.Load())
}

func (s *modeState) store(m BackendMode) {
	s.v.Store(int32(m))
}

func (s *modeState) compareAndSwap(old, new BackendMode) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}
