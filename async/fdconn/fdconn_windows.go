//go:build windows

package fdconn

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// toSyscallErrno mirrors fdconn_unix.go's conversion: golang.org/x/sys/windows
// returns its own Errno type from raw Read/Write calls, but the rest of
// this package compares against syscall.EAGAIN/syscall.EWOULDBLOCK.
func toSyscallErrno(err error) error {
	if errno, ok := err.(windows.Errno); ok {
		return syscall.Errno(errno)
	}
	return err
}

func (c *Conn) rawRead(buf []byte) (int, error) {
	n, err := windows.Read(windows.Handle(c.fd), buf)
	if n < 0 {
		n = 0
	}
	return n, toSyscallErrno(err)
}

func (c *Conn) rawWrite(buf []byte) (int, error) {
	n, err := windows.Write(windows.Handle(c.fd), buf)
	if n < 0 {
		n = 0
	}
	return n, toSyscallErrno(err)
}
