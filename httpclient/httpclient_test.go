package httpclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arfoundation/async"
	"github.com/arfoundation/async/httpclient"
)

// fakeConnection matches requests whose scheme and name equal its own,
// reports Transferring once it holds a request, and never shuts down on
// its own: only its shutdown field makes it report Shutdown. It records
// the ids passed to CancelRequest.
type fakeConnection struct {
	scheme, name string
	matched      *httpclient.Request
	shutdown     bool
	cancelled    []uint32
}

func (f *fakeConnection) HandleEvent(ctrl *async.Controller, op *async.Operation, elapsed time.Duration) httpclient.ConnectionEvent {
	if f.shutdown {
		return httpclient.Shutdown
	}
	if f.matched == nil {
		return httpclient.WaitForRequest
	}
	return httpclient.Transferring
}

func (f *fakeConnection) MatchRequest(req *httpclient.Request) bool {
	return req.Scheme == f.scheme && req.Name == f.name
}

func (f *fakeConnection) SetNewRequest(req *httpclient.Request) { f.matched = req }

func (f *fakeConnection) ExtractRequest() *httpclient.Request {
	r := f.matched
	f.matched = nil
	return r
}

func (f *fakeConnection) Cancel(ctrl *async.Controller) {}

func (f *fakeConnection) CancelRequest(ctrl *async.Controller, id uint32) {
	f.cancelled = append(f.cancelled, id)
}

type fakeProvider struct {
	requested chan struct{}
}

func (p *fakeProvider) RequestNewConnection(c *httpclient.Client) {
	select {
	case p.requested <- struct{}{}:
	default:
	}
}

func TestClient_RequestMatchesIdleConnection(t *testing.T) {
	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	client := httpclient.New(httpclient.WithWaitInterval(20 * time.Millisecond))
	go client.Run(ctrl)
	defer client.Close()

	conn := &fakeConnection{scheme: "http", name: "example.com:80"}
	client.AddConnection(conn)

	failed := make(chan string, 1)
	req := httpclient.NewRequest("http", "example.com:80", func(reason httpclient.FailureReason, msg string) {
		failed <- msg
	})
	client.AddRequest(req)

	require.Eventually(t, func() bool {
		return conn.matched == req
	}, time.Second, 5*time.Millisecond)
}

func TestClient_CancelQueuedRequest(t *testing.T) {
	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	client := httpclient.New()
	go client.Run(ctrl)
	defer client.Close()

	failed := make(chan httpclient.FailureReason, 1)
	req := httpclient.NewRequest("http", "nowhere", func(reason httpclient.FailureReason, msg string) {
		failed <- reason
	})
	id := client.AddRequest(req)
	client.CancelRequest(id)

	select {
	case reason := <-failed:
		require.Equal(t, httpclient.ReasonCancelled, reason)
	case <-time.After(time.Second):
		t.Fatal("request was not cancelled")
	}
}

// TestS5_CancelBeforeDispatch reproduces scenario S5: AddRequest
// returns id 1, CancelRequest(1) is called before any connection is
// available (the worker loop never even runs here, so it certainly
// never asked the provider for one). The failure callback must fire
// with ReasonCancelled and the provider must never be consulted.
func TestS5_CancelBeforeDispatch(t *testing.T) {
	provider := &fakeProvider{requested: make(chan struct{}, 1)}
	client := httpclient.New(httpclient.WithConnectionProvider(provider))

	failed := make(chan httpclient.FailureReason, 1)
	req := httpclient.NewRequest("http", "example.com:80", func(reason httpclient.FailureReason, msg string) {
		failed <- reason
	})

	id := client.AddRequest(req)
	require.EqualValues(t, 1, id)

	client.CancelRequest(id)

	select {
	case reason := <-failed:
		require.Equal(t, httpclient.ReasonCancelled, reason)
	case <-time.After(time.Second):
		t.Fatal("request was not cancelled")
	}

	select {
	case <-provider.requested:
		t.Fatal("connection provider was consulted before cancellation took effect")
	default:
	}
}

func TestClient_GetUnsatisfiedTarget(t *testing.T) {
	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	client := httpclient.New()
	go client.Run(ctrl)
	defer client.Close()

	req := httpclient.NewRequest("http", "unreachable.example", func(httpclient.FailureReason, string) {})
	client.AddRequest(req)

	require.Eventually(t, func() bool {
		_, _, ok := client.GetUnsatisfiedTarget()
		return ok
	}, time.Second, 5*time.Millisecond)

	scheme, name, ok := client.GetUnsatisfiedTarget()
	require.True(t, ok)
	require.Equal(t, "http", scheme)
	require.Equal(t, "unreachable.example", name)
}
