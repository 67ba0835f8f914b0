package async

import "sync/atomic"

// Operation is a caller-owned handle for one in-flight asynchronous
// request. Per spec.md §3, an Operation's Controller and Notifier are
// set before it is handed to any async method; once handed off, only
// the owning CommunicationObject or Controller may mutate it until
// completion is observed by the caller (via Controller.Wait or a
// synchronous Notifier callback).
//
// Operation itself carries the fields common to every kind of request
// (the buffer being transferred, the byte count actually moved, the
// terminal error if any, and cancellation bookkeeping). Kind-specific
// operations (InterruptOperation, used by async/interrupt) embed
// Operation and add their own result fields.
type Operation struct {
	controller *Controller
	notifier   Notifier

	// Buffer is the caller-supplied byte slice a send reads from or a
	// receive writes into. Ownership rules mirror spec.md §4.4: the
	// caller must not touch Buffer's contents between handoff and
	// completion.
	Buffer []byte
	// N is the number of bytes actually transferred once Done is true.
	N int
	// Err is the terminal error, if completion was not a clean full
	// transfer. A partial transfer (0 < N < len(Buffer)) with Err set to
	// ErrCancelled or a NetworkError is valid and expected on cancel.
	Err error

	done      atomic.Bool
	cancelled atomic.Bool
}

// NewOperation constructs an Operation bound to controller and
// notifier. Both must be set before the Operation is passed to any
// CommunicationObject method, matching spec.md's handoff invariant.
func NewOperation(controller *Controller, notifier Notifier) *Operation {
	return &Operation{controller: controller, notifier: notifier}
}

// Controller returns the Controller this Operation was created against.
func (op *Operation) Controller() *Controller { return op.controller }

// IsCancelled reports whether Cancel has been called. A
// CommunicationObject's worker should check this before completing an
// Operation that may have raced with cancellation.
func (op *Operation) IsCancelled() bool { return op.cancelled.Load() }

// IsDone reports whether the Operation has been completed (successfully
// or with an error) and should no longer be touched by its owner.
func (op *Operation) IsDone() bool { return op.done.Load() }

// Cancel requests early termination of the Operation. It is safe to
// call from any thread and at most once takes effect: a second Cancel
// on an already-cancelled or already-done Operation is a no-op, per
// spec.md §4.2 ("Cancel is idempotent"). Cancel only flips the flag
// IsCancelled reports; actually tearing down in-flight work (removing
// a pending subscription, waking a blocked backend) is each
// CommunicationObject's own Cancel(op) method, not this one.
func (op *Operation) Cancel() {
	if op.done.Load() {
		return
	}
	op.cancelled.CompareAndSwap(false, true)
}

// complete marks the Operation done and routes completion through its
// Notifier. direct selects NotifyDirect (owner-thread-only fast path)
// over Notify (thread-safe, any-thread path); see notifier.go.
func (op *Operation) complete(n int, err error, direct bool) {
	op.N = n
	op.Err = err
	op.done.Store(true)
	if op.notifier == nil {
		return
	}
	if direct {
		op.notifier.NotifyDirect(op)
	} else {
		op.notifier.Notify(op)
	}
}

// CompleteDirect finishes the Operation from its owner thread. Used by
// CommunicationObjects (e.g. async/msgexchange) whose Send/Receive can
// resolve synchronously without ever going through a Controller wait.
func (op *Operation) CompleteDirect(n int, err error) {
	op.complete(n, err, true)
}

// Complete finishes the Operation from any thread. Used by goroutines
// that complete Operations off the owner thread (async/timer's manager,
// async/interrupt's dispatcher) and by async/fdconn's readiness
// callbacks.
func (op *Operation) Complete(n int, err error) {
	op.complete(n, err, false)
}

// InterruptKind names a category of asynchronous interrupt (spec.md
// §4.8): a process termination request, a user break, or a hangup/
// disconnect signal.
type InterruptKind int

const (
	InterruptBreak InterruptKind = iota
	InterruptHangup
	InterruptTerminate
)

func (k InterruptKind) String() string {
	switch k {
	case InterruptBreak:
		return "Break"
	case InterruptHangup:
		return "Hangup"
	case InterruptTerminate:
		return "Terminate"
	default:
		return "InterruptKind(?)"
	}
}

// InterruptOperation is handed to async/interrupt's Source.WaitAsync: it
// completes with Triggered set to whichever requested kind fired first.
type InterruptOperation struct {
	Operation
	Kinds     []InterruptKind
	Triggered InterruptKind
}

// NewInterruptOperation builds an InterruptOperation waiting on any of
// kinds.
func NewInterruptOperation(controller *Controller, notifier Notifier, kinds ...InterruptKind) *InterruptOperation {
	return &InterruptOperation{
		Operation: *NewOperation(controller, notifier),
		Kinds:     kinds,
	}
}
