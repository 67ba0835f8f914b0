//go:build unix

package fdconn

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// toSyscallErrno converts a golang.org/x/sys/unix.Errno into the
// standard library's syscall.Errno with the same numeric value, so
// callers can compare against syscall.EAGAIN/syscall.EWOULDBLOCK
// (the vocabulary the rest of this package, and net.Conn's own error
// wrapping, already uses) regardless of which package a given syscall
// wrapper happened to return its error from.
func toSyscallErrno(err error) error {
	if errno, ok := err.(unix.Errno); ok {
		return syscall.Errno(errno)
	}
	return err
}

func (c *Conn) rawRead(buf []byte) (int, error) {
	n, err := unix.Read(int(c.fd), buf)
	if n < 0 {
		n = 0
	}
	return n, toSyscallErrno(err)
}

func (c *Conn) rawWrite(buf []byte) (int, error) {
	n, err := unix.Write(int(c.fd), buf)
	if n < 0 {
		n = 0
	}
	return n, toSyscallErrno(err)
}
