//go:build windows

package interrupt

import (
	"github.com/arfoundation/async"
	"golang.org/x/sys/windows"
)

// installPlatformHandler wires a Windows console control handler:
// CTRL_C_EVENT and CTRL_BREAK_EVENT map to Break, CTRL_CLOSE_EVENT and
// CTRL_LOGOFF_EVENT map to Hangup, and CTRL_SHUTDOWN_EVENT maps to
// Terminate.
func installPlatformHandler(s *Source) {
	handler := func(ctrlType uint32) uintptr {
		switch ctrlType {
		case windows.CTRL_C_EVENT, windows.CTRL_BREAK_EVENT:
			s.deliver(async.InterruptBreak)
		case windows.CTRL_CLOSE_EVENT, windows.CTRL_LOGOFF_EVENT:
			s.deliver(async.InterruptHangup)
		case windows.CTRL_SHUTDOWN_EVENT:
			s.deliver(async.InterruptTerminate)
		default:
			return 0
		}
		return 1
	}
	windows.SetConsoleCtrlHandler(windows.NewCallback(handler), true)
}
