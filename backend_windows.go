//go:build windows

package async

import (
	"time"

	"golang.org/x/sys/windows"
)

// backend is the Windows platform backend: an auto-reset Event used as
// the wake primitive, combined with caller descriptors (themselves
// Windows HANDLEs, typically from WSAEventSelect-style socket events)
// in a single WaitForMultipleObjects call. The same call covers both the
// semaphore-only wait (wake event alone) and the handle-array wait.
type backend struct {
	subs     subscriptionSet
	wakeEvt  windows.Handle
}

func newBackend() (*backend, error) {
	h, err := windows.CreateEvent(nil, 0 /* auto-reset */, 0, nil)
	if err != nil {
		return nil, &SystemError{Message: "creating wake event", Cause: err}
	}
	return &backend{wakeEvt: h}, nil
}

func (b *backend) hasSubscriptions() bool { return b.subs.len() > 0 }

// subscribe registers a Windows event handle (fd here is a
// windows.Handle value) as a wait subscription.
func (b *backend) subscribe(fd uintptr, events PollEvents, cb func(PollEvents)) (cancelFn func(), err error) {
	sub := b.subs.add(fd, events, cb)
	return func() { b.subs.cancel(sub) }, nil
}

func (b *backend) wake() {
	windows.SetEvent(b.wakeEvt)
}

func (b *backend) wait(timeout time.Duration) (woke bool, err error) {
	subs := b.subs.snapshot()
	handles := make([]windows.Handle, 0, len(subs)+1)
	handles = append(handles, b.wakeEvt)
	for _, s := range subs {
		handles = append(handles, windows.Handle(s.fd))
	}

	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout / time.Millisecond)
	}

	evt, err := windows.WaitForMultipleObjects(handles, false, ms)
	if err == windows.WAIT_TIMEOUT {
		return false, nil
	}
	if err != nil {
		return false, &SystemError{Message: "WaitForMultipleObjects", Cause: err}
	}

	idx := int(evt - windows.WAIT_OBJECT_0)
	if idx < 0 || idx >= len(handles) {
		return false, &SystemError{Message: "WaitForMultipleObjects: index out of range"}
	}
	if idx == 0 {
		woke = true
	} else {
		s := subs[idx-1]
		if s.callback != nil {
			safeCall("backend", func() { s.callback(s.events) })
		}
	}
	b.subs.sweep()
	return woke, nil
}

func (b *backend) close() error {
	return windows.CloseHandle(b.wakeEvt)
}
