// Package errclass maps raw OS errors to short categorical labels, used
// by async/fdconn so its NetworkError messages carry the same
// vocabulary of network failure reasons regardless of platform.
package errclass

import (
	"errors"
	"net"
	"os"
)

// Classify returns a short, platform-independent label for err: "" if
// err is nil, "UNKNOWN" if it is not recognized. The per-platform errno constants
// live in unix.go / windows.go; this file only does the matching.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return "ETIMEDOUT"
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		err = netErr.Err
	}

	switch {
	case errors.Is(err, errEADDRNOTAVAIL):
		return "EADDRNOTAVAIL"
	case errors.Is(err, errEADDRINUSE):
		return "EADDRINUSE"
	case errors.Is(err, errECONNABORTED):
		return "ECONNABORTED"
	case errors.Is(err, errECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, errECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, errEHOSTUNREACH):
		return "EHOSTUNREACH"
	case errors.Is(err, errEINVAL):
		return "EINVAL"
	case errors.Is(err, errEINTR):
		return "EINTR"
	case errors.Is(err, errENETDOWN):
		return "ENETDOWN"
	case errors.Is(err, errENETUNREACH):
		return "ENETUNREACH"
	case errors.Is(err, errENOBUFS):
		return "ENOBUFS"
	case errors.Is(err, errENOTCONN):
		return "ENOTCONN"
	case errors.Is(err, errEPROTONOSUPPORT):
		return "EPROTONOSUPPORT"
	case errors.Is(err, errETIMEDOUT):
		return "ETIMEDOUT"
	default:
		return "UNKNOWN"
	}
}

// IsRetryable reports whether a classified error is generally worth a
// single immediate retry at the transport layer (interrupted syscalls
// and transient resource exhaustion, not a definite refusal or reset).
func IsRetryable(label string) bool {
	switch label {
	case "EINTR", "ENOBUFS":
		return true
	default:
		return false
	}
}
