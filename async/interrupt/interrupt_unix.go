//go:build unix

package interrupt

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/arfoundation/async"
)

// installPlatformHandler wires POSIX signals to deliver. Raw
// async-signal-safe sigaction-level handling (writing one byte to a
// self-pipe from inside the handler, as the platform backend itself
// does for its wake primitive) is not reachable from pure Go; the
// runtime's os/signal package already performs the equivalent
// self-pipe-style dispatch internally; using it here keeps POSIX
// interrupt delivery off any Go code running in true signal-handler
// context while still riding the same "notify a channel, let a normal
// goroutine react" pattern the rest of this module uses.
func installPlatformHandler(s *Source) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	go func() {
		for sig := range ch {
			switch sig {
			case os.Interrupt:
				s.deliver(async.InterruptBreak)
			case syscall.SIGHUP:
				s.deliver(async.InterruptHangup)
			case syscall.SIGTERM:
				s.deliver(async.InterruptTerminate)
			}
		}
	}()
}
