package async

import "time"

// CommunicationObject is the contract every concrete transport in this
// module implements (spec.md §4.4/§4.5): async/fdconn's socket and pipe
// wrappers, async/msgexchange's in-process rendezvous, and anything
// else that wants to participate in a Controller's Wait loop.
//
// SendAsync and ReceiveAsync must return immediately, having arranged
// for op to eventually complete (possibly synchronously, via
// op.CompleteDirect, if the implementation can satisfy the request
// without blocking). Cancel requests early termination of a specific
// in-flight Operation; it is a no-op if the Operation already
// completed. Name returns a short diagnostic identifier used only in
// log entries and error messages.
type CommunicationObject interface {
	SendAsync(op *Operation)
	ReceiveAsync(op *Operation)
	Cancel(op *Operation)
	Name() string
}

// FullSend repeatedly issues SendAsync/Controller.WaitSpecific until
// every byte of data has been sent or an error occurs, matching the
// source's full_send helper: a convenience for callers that want
// blocking all-or-nothing semantics layered over the non-blocking
// primitive.
func FullSend(controller *Controller, obj CommunicationObject, data []byte, timeout time.Duration) (int, error) {
	notifier := controller.Notifier()
	total := 0
	deadline := time.Time{}
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for total < len(data) {
		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return total, &NetworkError{Op: obj.Name(), Message: "timed out"}
			}
		}
		op := NewOperation(controller, notifier)
		op.Buffer = data[total:]
		obj.SendAsync(op)
		if err := controller.WaitSpecific(op, remaining); err != nil {
			return total, err
		}
		if !op.IsDone() {
			obj.Cancel(op)
			return total, &NetworkError{Op: obj.Name(), Message: "timed out"}
		}
		total += op.N
		if op.Err != nil {
			return total, op.Err
		}
		if op.N == 0 {
			return total, &NetworkError{Op: obj.Name(), Message: "zero bytes transferred"}
		}
	}
	return total, nil
}

// FullReceive repeatedly issues ReceiveAsync/Controller.WaitSpecific
// until buf is completely filled or an error occurs, matching the
// source's full_receive helper.
func FullReceive(controller *Controller, obj CommunicationObject, buf []byte, timeout time.Duration) (int, error) {
	notifier := controller.Notifier()
	total := 0
	deadline := time.Time{}
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for total < len(buf) {
		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return total, &NetworkError{Op: obj.Name(), Message: "timed out"}
			}
		}
		op := NewOperation(controller, notifier)
		op.Buffer = buf[total:]
		obj.ReceiveAsync(op)
		if err := controller.WaitSpecific(op, remaining); err != nil {
			return total, err
		}
		if !op.IsDone() {
			obj.Cancel(op)
			return total, &NetworkError{Op: obj.Name(), Message: "timed out"}
		}
		total += op.N
		if op.Err != nil {
			return total, op.Err
		}
		if op.N == 0 {
			return total, &ConnectionLost{Op: obj.Name()}
		}
	}
	return total, nil
}
