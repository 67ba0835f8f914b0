// Package msgexchange implements an in-process rendezvous
// CommunicationObject: a sender and a receiver pair up directly,
// copying bytes with no kernel round trip, completing both sides
// synchronously the moment a match is found (spec.md §4.6).
package msgexchange

import (
	"sync"

	"github.com/arfoundation/async"
)

// Exchange is a rendezvous point. Multiple senders and
// receivers may call SendAsync/ReceiveAsync concurrently; pairing is
// strict FIFO on each side independently, matching the source's
// MessageExchange queue discipline.
type Exchange struct {
	name string

	mu        sync.Mutex
	senders   []*async.Operation
	receivers []*async.Operation
}

// New creates a named Exchange. name is used only in diagnostics.
func New(name string) *Exchange {
	return &Exchange{name: name}
}

func (e *Exchange) Name() string { return e.name }

// SendAsync implements async.CommunicationObject. It completes op
// directly (no Controller round trip) the instant a waiting receiver is
// found; otherwise op is queued until a receiver arrives or cancels it.
func (e *Exchange) SendAsync(op *async.Operation) {
	e.mu.Lock()
	if len(e.receivers) > 0 {
		recv := e.receivers[0]
		e.receivers = e.receivers[1:]
		e.mu.Unlock()
		e.pair(op, recv, false)
		return
	}
	e.senders = append(e.senders, op)
	e.mu.Unlock()
}

// ReceiveAsync implements async.CommunicationObject.
func (e *Exchange) ReceiveAsync(op *async.Operation) {
	e.mu.Lock()
	if len(e.senders) > 0 {
		send := e.senders[0]
		e.senders = e.senders[1:]
		e.mu.Unlock()
		e.pair(send, op, true)
		return
	}
	e.receivers = append(e.receivers, op)
	e.mu.Unlock()
}

// pair copies min(len(send.Buffer), len(recv.Buffer)) bytes from the
// sender's buffer to the receiver's and completes both Operations at
// once, since rendezvous has no I/O wait of its own. The caller's own
// Operation completes via CompleteDirect; the waiting peer, which may
// belong to another thread, completes via the thread-safe Complete.
func (e *Exchange) pair(send, recv *async.Operation, callerIsReceiver bool) {
	n := copy(recv.Buffer, send.Buffer)
	if callerIsReceiver {
		send.Complete(n, nil)
		recv.CompleteDirect(n, nil)
		return
	}
	send.CompleteDirect(n, nil)
	recv.Complete(n, nil)
}

// Cancel implements async.CommunicationObject: removes op from
// whichever queue it is waiting in, if it has not already been paired.
func (e *Exchange) Cancel(op *async.Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if removeOp(&e.senders, op) || removeOp(&e.receivers, op) {
		op.Complete(0, async.ErrCancelled)
	}
}

func removeOp(list *[]*async.Operation, op *async.Operation) bool {
	for i, o := range *list {
		if o == op {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
