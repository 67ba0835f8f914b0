// Package fdconn implements the CommunicationObject contract over file
// descriptors and sockets: the spec's non-blocking send/receive on an
// fd, driven by a Controller's platform backend rather than by
// per-connection goroutines.
//
// A Conn wraps anything exposing syscall.Conn (*net.TCPConn, *net.UnixConn,
// *os.File, and similar), extracting its raw descriptor via
// SyscallConn().Control the way the wider Go ecosystem does (see
// DESIGN.md), and registers read/write interest with a Controller on
// demand rather than up front, so an idle Conn contributes nothing to
// the Controller's poll set.
package fdconn

import (
	"io"
	"sync"
	"syscall"

	"github.com/arfoundation/async"
	"github.com/arfoundation/async/internal/errclass"
)

// RawConn is satisfied by any connection type exposing its underlying
// descriptor, matching the standard library's own escape hatch
// (net.TCPConn, net.UnixConn, os.File all implement this).
type RawConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// Conn adapts a RawConn into an async.CommunicationObject: SendAsync
// and ReceiveAsync perform one non-blocking syscall attempt, and if
// that returns EAGAIN, register with the Controller for the
// corresponding readiness event instead of blocking the calling
// goroutine.
type Conn struct {
	name       string
	controller *async.Controller
	raw        RawConn
	fd         uintptr

	mu      sync.Mutex
	pending map[*async.Operation]func()
}

// New wraps conn for use against controller. name is used only in log
// entries and error messages.
func New(controller *async.Controller, conn RawConn, name string) (*Conn, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return nil, &async.SystemError{Message: "SyscallConn", Cause: err}
	}
	var fd uintptr
	ctrlErr := rc.Control(func(f uintptr) { fd = f })
	if ctrlErr != nil {
		return nil, &async.SystemError{Message: "SyscallConn.Control", Cause: ctrlErr}
	}
	return &Conn{
		name:       name,
		controller: controller,
		raw:        conn,
		fd:         fd,
		pending:    make(map[*async.Operation]func()),
	}, nil
}

func (c *Conn) Name() string { return c.name }

// SendAsync implements async.CommunicationObject.
func (c *Conn) SendAsync(op *async.Operation) {
	c.attempt(op, async.PollWrite, func() (int, error) {
		return c.rawWrite(op.Buffer)
	})
}

// ReceiveAsync implements async.CommunicationObject.
func (c *Conn) ReceiveAsync(op *async.Operation) {
	c.attempt(op, async.PollRead, func() (int, error) {
		return c.rawRead(op.Buffer)
	})
}

func (c *Conn) attempt(op *async.Operation, want async.PollEvents, try func() (int, error)) {
	n, err := try()
	if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
		c.waitReady(op, want, try)
		return
	}
	if err != nil {
		op.Complete(n, c.classify(err))
		return
	}
	op.CompleteDirect(n, nil)
}

func (c *Conn) waitReady(op *async.Operation, want async.PollEvents, try func() (int, error)) {
	// cancel is assigned after Subscribe returns but must be reachable
	// from inside the callback it's passed to, so it's captured by
	// reference and filled in below.
	var cancel func()
	subscribeCancel, err := c.controller.Subscribe(c.fd, want, func(revents async.PollEvents) {
		n, err := try()
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return // spurious wake; stays subscribed
		}
		c.clearPending(op)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			op.Complete(n, c.classify(err))
			return
		}
		op.Complete(n, nil)
	})
	if err != nil {
		op.Complete(0, &async.SystemError{Message: "subscribe", Cause: err})
		return
	}
	cancel = subscribeCancel
	c.mu.Lock()
	c.pending[op] = cancel
	c.mu.Unlock()
}

func (c *Conn) clearPending(op *async.Operation) {
	c.mu.Lock()
	delete(c.pending, op)
	c.mu.Unlock()
}

// Cancel implements async.CommunicationObject.
func (c *Conn) Cancel(op *async.Operation) {
	c.mu.Lock()
	cancel, ok := c.pending[op]
	if ok {
		delete(c.pending, op)
	}
	c.mu.Unlock()
	if ok {
		cancel()
		op.Complete(op.N, async.ErrCancelled)
		if ctl := op.Controller(); ctl != nil {
			ctl.RevertPost(op)
		}
	}
}

// CloseSend half-closes the write side, the non-blocking analogue of
// the source's close_send used to signal EOF to a peer without tearing
// down the read side. A connection without CloseWrite is closed
// completely instead, read side included.
func (c *Conn) CloseSend() error {
	type halfCloser interface {
		CloseWrite() error
	}
	if hc, ok := c.raw.(halfCloser); ok {
		return hc.CloseWrite()
	}
	if closer, ok := c.raw.(io.Closer); ok {
		return closer.Close()
	}
	return &async.Unsupported{Feature: "half-close"}
}

func (c *Conn) classify(err error) error {
	if err == io.EOF {
		return &async.ConnectionLost{Op: c.name}
	}
	label := errclass.Classify(err)
	return &async.NetworkError{Op: c.name, Cause: err, Message: label}
}
