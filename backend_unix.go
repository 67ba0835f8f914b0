//go:build unix

package async

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// backend is the POSIX platform backend: a self-pipe for cross-thread
// wake plus unix.Poll for descriptor multiplexing. The source splits
// this into select- and poll-based variants per platform; this
// implementation standardizes on poll, which is available and
// sufficiently fast on every POSIX target this module supports (see
// DESIGN.md).
type backend struct {
	subs subscriptionSet

	wakeMu   sync.Mutex
	wakeR    int
	wakeW    int
	wakePend bool
}

func newBackend() (*backend, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, &SystemError{Message: "creating wake pipe", Cause: err}
	}
	return &backend{wakeR: p[0], wakeW: p[1]}, nil
}

func (b *backend) hasSubscriptions() bool { return b.subs.len() > 0 }

func (b *backend) subscribe(fd uintptr, events PollEvents, cb func(PollEvents)) (cancelFn func(), err error) {
	sub := b.subs.add(fd, events, cb)
	return func() { b.subs.cancel(sub) }, nil
}

// wake is safe to call from any goroutine. It takes wakeMu to coalesce
// repeated wakes, then issues a single write(2) to the wake pipe.
func (b *backend) wake() {
	b.wakeMu.Lock()
	if b.wakePend {
		b.wakeMu.Unlock()
		return
	}
	b.wakePend = true
	b.wakeMu.Unlock()
	var one [1]byte
	for {
		_, err := unix.Write(b.wakeW, one[:])
		if err == unix.EINTR {
			continue
		}
		break
	}
}

func (b *backend) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(b.wakeR, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
	b.wakeMu.Lock()
	b.wakePend = false
	b.wakeMu.Unlock()
}

// wait blocks until the wake pipe is signalled, a registered descriptor
// becomes ready, or timeout elapses (negative blocks indefinitely). It
// returns woke=true if the return was caused by an explicit wake rather
// than descriptor readiness or timeout; the Controller does not depend
// on it for correctness, since either path causes it to re-check the
// completed queue and its own deadline.
func (b *backend) wait(timeout time.Duration) (woke bool, err error) {
	subs := b.subs.snapshot()
	pollfds := make([]unix.PollFd, 0, len(subs)+1)
	pollfds = append(pollfds, unix.PollFd{Fd: int32(b.wakeR), Events: unix.POLLIN})
	for _, s := range subs {
		var ev int16
		if s.events&PollRead != 0 {
			ev |= unix.POLLIN
		}
		if s.events&PollWrite != 0 {
			ev |= unix.POLLOUT
		}
		pollfds = append(pollfds, unix.PollFd{Fd: int32(s.fd), Events: ev})
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
	}

	var n int
	for {
		n, err = unix.Poll(pollfds, ms)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return false, &SystemError{Message: "poll", Cause: err}
	}
	if n == 0 {
		return false, nil
	}

	woke = pollfds[0].Revents != 0
	if woke {
		b.drainWake()
	}
	for i, s := range subs {
		revents := pollfds[i+1].Revents
		if revents == 0 {
			continue
		}
		var got PollEvents
		if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			got |= PollRead
		}
		if revents&(unix.POLLOUT|unix.POLLERR) != 0 {
			got |= PollWrite
		}
		if got != 0 && s.callback != nil {
			safeCall("backend", func() { s.callback(got) })
		}
	}
	b.subs.sweep()
	return woke, nil
}

func (b *backend) close() error {
	unix.Close(b.wakeR)
	unix.Close(b.wakeW)
	return nil
}
