package fdconn_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arfoundation/async"
	"github.com/arfoundation/async/async/fdconn"
)

func pipePairTCP(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server := <-acceptCh
	require.NotNil(t, server)
	return client, server
}

func TestConn_SendReceiveRoundTrip(t *testing.T) {
	client, server := pipePairTCP(t)
	defer client.Close()
	defer server.Close()

	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	cc, err := fdconn.New(ctrl, client.(*net.TCPConn), "client")
	require.NoError(t, err)
	sc, err := fdconn.New(ctrl, server.(*net.TCPConn), "server")
	require.NoError(t, err)

	n, err := async.FullSend(ctrl, cc, []byte("hello"), time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = async.FullReceive(ctrl, sc, buf, time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
}

// TestS3_CancelRace reproduces scenario S3: a 10MiB send to a slow
// peer is cancelled after it has partially progressed. The cancelled
// Operation must never appear in a subsequent Wait, and the bytes sent
// before cancellation must be at least 1.
func TestS3_CancelRace(t *testing.T) {
	client, server := pipePairTCP(t)
	defer client.Close()
	defer server.Close()

	// Shrink socket buffers so a 10MiB write can't complete
	// synchronously, forcing the non-blocking path to EAGAIN quickly.
	client.(*net.TCPConn).SetWriteBuffer(4096)
	server.(*net.TCPConn).SetReadBuffer(4096)

	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	cc, err := fdconn.New(ctrl, client.(*net.TCPConn), "client")
	require.NoError(t, err)

	data := make([]byte, 10*1024*1024)
	for i := range data {
		data[i] = byte(i)
	}

	var (
		sent    int
		pending *async.Operation
	)
	notifier := ctrl.Notifier()
	for sent < len(data) {
		op := async.NewOperation(ctrl, notifier)
		op.Buffer = data[sent:]
		cc.SendAsync(op)
		if !op.IsDone() {
			pending = op
			break
		}
		require.NoError(t, op.Err)
		sent += op.N
	}

	require.NotNil(t, pending, "expected send to block on a full socket buffer")
	require.GreaterOrEqual(t, sent, 1)

	cc.Cancel(pending)
	require.True(t, pending.IsDone())
	require.ErrorIs(t, pending.Err, async.ErrCancelled)

	// The cancelled op must never surface from a subsequent Wait.
	for {
		got, err := ctrl.Wait(10 * time.Millisecond)
		require.NoError(t, err)
		if got == nil {
			break
		}
		require.NotSame(t, pending, got)
	}
}

func TestConn_CancelPendingReceive(t *testing.T) {
	client, server := pipePairTCP(t)
	defer client.Close()
	defer server.Close()

	ctrl, err := async.NewController()
	require.NoError(t, err)
	defer ctrl.Close()

	sc, err := fdconn.New(ctrl, server.(*net.TCPConn), "server")
	require.NoError(t, err)

	op := async.NewOperation(ctrl, ctrl.Notifier())
	op.Buffer = make([]byte, 4)
	sc.ReceiveAsync(op)
	require.False(t, op.IsDone())

	sc.Cancel(op)
	require.True(t, op.IsDone())
	require.ErrorIs(t, op.Err, async.ErrCancelled)
}
