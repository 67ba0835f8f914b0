// Package httpclient implements the asynchronous HTTP client worker
// loop from spec.md §4.10: a single goroutine drains a pending-request
// queue, a cancel-id queue, and a pool of ClientConnections, driven
// entirely by a Controller's Wait rather than one goroutine per
// connection.
package httpclient

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arfoundation/async"
)

// DefaultWaitInterval is the heartbeat period the worker loop uses when
// nothing else wakes it, carried from the pre-distillation original's
// WAIT_INTERVAL constant (5000 "ticks", i.e. 5 seconds).
const DefaultWaitInterval = 5 * time.Second

// FailureReason classifies why a Request did not complete normally.
type FailureReason int

const (
	ReasonCancelled FailureReason = iota
	ReasonConnectFailed
	ReasonNetworkError
	ReasonUnsupported
)

func (r FailureReason) String() string {
	switch r {
	case ReasonCancelled:
		return "cancelled"
	case ReasonConnectFailed:
		return "connect failed"
	case ReasonNetworkError:
		return "network error"
	case ReasonUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Request is one outstanding HTTP request handed to the Client. Target
// identifies which connection pool entry can serve it (scheme+name);
// ID is assigned by Client.AddRequest and is stable for the life of
// the request, used by CancelRequest.
type Request struct {
	ID     uint32
	Scheme string
	Name   string

	// DiagnosticID is a uuid-tagged correlation id distinct from ID,
	// attached to every log entry concerning this request so concurrent
	// requests remain distinguishable in logs without reusing the small
	// integer id as a correlation key.
	DiagnosticID string

	onFailure func(reason FailureReason, message string)
}

// HandleFailure invokes the caller-supplied failure callback exactly
// once. A Request that completes successfully never calls this; success
// delivery is entirely Connection-implementation-specific (typically a
// channel or callback the caller attached before calling AddRequest).
func (r *Request) HandleFailure(reason FailureReason, message string) {
	if r.onFailure != nil {
		r.onFailure(reason, message)
	}
}

// NewRequest builds a Request. onFailure is invoked at most once, if
// the request is cancelled or cannot be completed: from the Client's
// worker goroutine, or from the goroutine calling AddRequest,
// CancelRequest or CancelRequestsByTarget when that call fails it.
func NewRequest(scheme, name string, onFailure func(reason FailureReason, message string)) *Request {
	return &Request{Scheme: scheme, Name: name, DiagnosticID: uuid.NewString(), onFailure: onFailure}
}

// ConnectionEvent is the outcome of one Connection.HandleEvent call.
type ConnectionEvent int

const (
	// WaitForRequest: the connection is idle and can accept a new
	// Request via SetNewRequest.
	WaitForRequest ConnectionEvent = iota
	// Transferring: the connection is busy servicing its current
	// Request; leave it alone this round.
	Transferring
	// Shutdown: the connection is done (error or idle-timeout) and must
	// be removed from the pool; any still-attached Request should be
	// recovered via ExtractRequest and requeued.
	Shutdown
)

// Connection is one pooled HTTP connection. Implementations drive
// their socket I/O through async/fdconn and register interest with the
// Controller passed to HandleEvent.
type Connection interface {
	// HandleEvent advances the connection's internal state machine. op
	// is the Operation that just completed (nil if this call is purely
	// a heartbat/cancel sweep), and elapsed is, for idle-timeout
	// bookkeeping, the wall-clock time since the worker last reported an
	// elapsed time; it is zero on the calls made at the top of each loop
	// iteration and during cancel processing.
	HandleEvent(ctrl *async.Controller, op *async.Operation, elapsed time.Duration) ConnectionEvent
	// MatchRequest reports whether this connection (already connected to
	// a particular scheme+target) could serve req.
	MatchRequest(req *Request) bool
	// SetNewRequest assigns req to this now-idle connection.
	SetNewRequest(req *Request)
	// ExtractRequest detaches and returns the in-progress Request, if
	// any, so the Client can requeue it on another connection.
	ExtractRequest() *Request
	// Cancel aborts whatever the connection is doing unconditionally,
	// used when the Client itself is stopping.
	Cancel(ctrl *async.Controller)
	// CancelRequest aborts only the named request id, if this connection
	// happens to be serving it.
	CancelRequest(ctrl *async.Controller, id uint32)
}

// ConnectionProvider is notified when the pool has unsatisfied demand;
// implementations typically dial a new Connection and call
// Client.AddConnection.
type ConnectionProvider interface {
	RequestNewConnection(client *Client)
}

// semaphore is a minimal counting wake primitive: Post is safe from any
// thread, WaitAsync registers an Operation that completes on the next
// Post (or immediately, if a Post already arrived and was not yet
// consumed). It exists because the worker loop needs exactly the
// source's afl::sys::Semaphore::waitAsync behavior and nothing from
// CommunicationObject's send/receive vocabulary fits that shape.
type semaphore struct {
	mu      sync.Mutex
	pending bool
	waiter  *async.Operation
}

func (s *semaphore) post() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiter != nil {
		op := s.waiter
		s.waiter = nil
		op.Complete(0, nil)
		return
	}
	s.pending = true
}

func (s *semaphore) waitAsync(op *async.Operation) {
	s.mu.Lock()
	if s.pending {
		s.pending = false
		s.mu.Unlock()
		op.Complete(0, nil)
		return
	}
	s.waiter = op
	s.mu.Unlock()
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithWaitInterval overrides the heartbeat period.
func WithWaitInterval(d time.Duration) Option {
	return func(c *Client) { c.waitInterval = d }
}

// WithLogger attaches a structured logger for the worker loop.
func WithLogger(logger async.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithConnectionProvider installs the initial ConnectionProvider,
// equivalent to calling SetConnectionProvider immediately after New.
func WithConnectionProvider(p ConnectionProvider) Option {
	return func(c *Client) { c.provider = p }
}

// Client is the HTTP client worker: a connection pool, a pending
// request queue, and a cancel-id queue drained by a single goroutine
// started with Run.
type Client struct {
	mu                sync.Mutex
	provider          ConnectionProvider
	connections       []Connection
	requests          []*Request
	cancels           []uint32
	stop              bool
	needNewConnection bool
	requestIDCounter  uint32

	wake         semaphore
	waitInterval time.Duration
	logger       async.Logger

	stopped chan struct{}
}

// New constructs a Client. Call Run in its own goroutine to start the
// worker loop.
func New(opts ...Option) *Client {
	c := &Client{
		waitInterval: DefaultWaitInterval,
		logger:       async.NewNoOpLogger(),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddConnection adds a newly established Connection to the pool.
func (c *Client) AddConnection(conn Connection) {
	c.mu.Lock()
	c.connections = append(c.connections, conn)
	c.mu.Unlock()
	c.wake.post()
}

// AddRequest enqueues req and assigns it a stable request id. If the
// Client has already stopped, req fails immediately with
// ReasonCancelled; it still receives and returns a new id.
func (c *Client) AddRequest(req *Request) uint32 {
	c.mu.Lock()
	c.requestIDCounter++
	id := c.requestIDCounter
	req.ID = id
	if c.stop {
		c.mu.Unlock()
		req.HandleFailure(ReasonCancelled, "operation cancelled")
		return id
	}
	c.requests = append(c.requests, req)
	c.needNewConnection = true
	c.mu.Unlock()
	c.logger.Log(async.LogEntry{
		Level:    async.LevelDebug,
		Category: "httpclient",
		Message:  "request queued",
		Fields:   map[string]any{"request_id": id, "diagnostic_id": req.DiagnosticID, "target": req.Scheme + "://" + req.Name},
	})
	c.wake.post()
	return id
}

// CancelRequest aborts the request with the given id, whether it is
// still queued or already being served by a connection.
func (c *Client) CancelRequest(id uint32) {
	c.mu.Lock()
	for i, req := range c.requests {
		if req.ID == id {
			c.requests = append(c.requests[:i], c.requests[i+1:]...)
			c.mu.Unlock()
			req.HandleFailure(ReasonCancelled, "operation cancelled")
			return
		}
	}
	c.cancels = append(c.cancels, id)
	c.mu.Unlock()
	c.wake.post()
}

// SetConnectionProvider installs or replaces the ConnectionProvider.
func (c *Client) SetConnectionProvider(p ConnectionProvider) {
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
}

// CancelRequestsByTarget fails every still-queued request matching
// scheme+name with reason.
func (c *Client) CancelRequestsByTarget(scheme, name string, reason FailureReason, message string) {
	c.mu.Lock()
	kept := c.requests[:0]
	var failed []*Request
	for _, req := range c.requests {
		if req.Scheme == scheme && req.Name == name {
			failed = append(failed, req)
		} else {
			kept = append(kept, req)
		}
	}
	c.requests = kept
	c.mu.Unlock()
	for _, req := range failed {
		req.HandleFailure(reason, message)
	}
}

// GetUnsatisfiedTarget returns the scheme+name of the first queued
// request with no matching connection in the pool, or ok=false if every
// queued request already has a candidate connection.
func (c *Client) GetUnsatisfiedTarget() (scheme, name string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range c.requests {
		matched := false
		for _, conn := range c.connections {
			if conn.MatchRequest(req) {
				matched = true
				break
			}
		}
		if !matched {
			return req.Scheme, req.Name, true
		}
	}
	return "", "", false
}

// Stop requests the worker loop to exit after its current iteration.
// Pending requests and in-progress connections are cancelled as Run
// unwinds.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stop = true
	c.mu.Unlock()
	c.wake.post()
}

// Close stops the Client if still running and waits for Run to return,
// then releases the connection provider. The provider is torn down
// last and without the Client's mutex held, since a typical provider
// implementation calls back into the Client (e.g. AddConnection) while
// it is being shut down.
func (c *Client) Close() {
	c.Stop()
	<-c.stopped

	c.mu.Lock()
	provider := c.provider
	c.provider = nil
	c.mu.Unlock()

	if closer, ok := provider.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Run is the worker loop; it blocks until Stop is called and must be
// run from its own goroutine. A failing ctrl.Wait is logged and the
// loop continues. It
// is not safe to call Run more than once concurrently.
func (c *Client) Run(ctrl *async.Controller) {
	defer close(c.stopped)

	var wakeOp *async.Operation
	wakeActive := false
	lastTick := time.Now()

	for {
		c.requestNewConnection()

		if !wakeActive {
			wakeOp = async.NewOperation(ctrl, ctrl.Notifier())
			c.wake.waitAsync(wakeOp)
			wakeActive = true
		}

		c.processConnections(ctrl, nil, 0)

		op, err := ctrl.Wait(c.waitInterval)
		if err != nil {
			c.logger.Log(async.LogEntry{Level: async.LevelError, Category: "httpclient", Message: "controller wait failed", Err: err})
			continue
		}

		if op == wakeOp {
			wakeActive = false
			c.mu.Lock()
			stopping := c.stop
			c.mu.Unlock()
			if stopping {
				break
			}
			c.processCancels(ctrl)
		} else {
			now := time.Now()
			elapsed := now.Sub(lastTick)
			lastTick = now
			c.processConnections(ctrl, op, elapsed)
		}
	}

	c.mu.Lock()
	requests := c.requests
	c.requests = nil
	connections := c.connections
	c.mu.Unlock()

	for _, req := range requests {
		req.HandleFailure(ReasonCancelled, "operation cancelled")
	}
	for _, conn := range connections {
		conn.Cancel(ctrl)
	}
}

func (c *Client) requestNewConnection() {
	c.mu.Lock()
	need := c.needNewConnection
	provider := c.provider
	c.needNewConnection = false
	c.mu.Unlock()
	if need && provider != nil {
		provider.RequestNewConnection(c)
	}
}

// processConnections drives every pooled connection's state machine
// once, matching the source's Client::processConnections (the "i" loop
// variable there lets a single matching Operation be attributed to
// exactly one connection slot; here op is simply handed to every
// connection's HandleEvent and each implementation ignores it if it is
// not the Operation it is waiting on).
func (c *Client) processConnections(ctrl *async.Controller, op *async.Operation, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := 0
	for i < len(c.connections) {
		conn := c.connections[i]
		switch conn.HandleEvent(ctrl, op, elapsed) {
		case WaitForRequest:
			if req := c.extractMatchingRequestLocked(conn); req != nil {
				conn.SetNewRequest(req)
			} else {
				i++
			}
		case Transferring:
			i++
		case Shutdown:
			if req := conn.ExtractRequest(); req != nil {
				c.requests = append([]*Request{req}, c.requests...)
			}
			c.needNewConnection = true
			c.connections = append(c.connections[:i], c.connections[i+1:]...)
		}
	}
}

func (c *Client) extractMatchingRequestLocked(conn Connection) *Request {
	for i, req := range c.requests {
		if conn.MatchRequest(req) {
			c.requests = append(c.requests[:i], c.requests[i+1:]...)
			return req
		}
	}
	return nil
}

func (c *Client) processCancels(ctrl *async.Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cancels) == 0 {
		return
	}
	i := 0
	for i < len(c.connections) {
		conn := c.connections[i]
		for _, id := range c.cancels {
			conn.CancelRequest(ctrl, id)
		}
		if conn.HandleEvent(ctrl, nil, 0) == Shutdown {
			c.connections = append(c.connections[:i], c.connections[i+1:]...)
		} else {
			i++
		}
	}
	c.cancels = nil
}
