package stream_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arfoundation/async/stream"
)

// memStream is a minimal in-memory stream.Seeker backed by a byte slice.
type memStream struct {
	buf []byte
	pos int64
}

func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos += int64(n)
	return n, nil
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.buf)) + offset
	}
	return m.pos, nil
}

func TestChild_IndependentPositions(t *testing.T) {
	backing := &memStream{buf: bytes.Repeat([]byte{0}, 20)}
	mux := stream.New(backing)
	a := mux.NewChild()
	b := mux.NewChild()

	_, err := a.Write([]byte("AAAA"))
	require.NoError(t, err)

	_, err = b.Seek(10, io.SeekStart)
	require.NoError(t, err)
	_, err = b.Write([]byte("BBBB"))
	require.NoError(t, err)

	posA, err := a.Pos()
	require.NoError(t, err)
	require.EqualValues(t, 4, posA)

	posB, err := b.Pos()
	require.NoError(t, err)
	require.EqualValues(t, 14, posB)

	require.Equal(t, []byte("AAAA"), backing.buf[0:4])
	require.Equal(t, []byte("BBBB"), backing.buf[10:14])
}

func TestChild_ZombieReturnsBenignZero(t *testing.T) {
	backing := &memStream{buf: make([]byte, 4)}
	mux := stream.New(backing)
	c := mux.NewChild()
	mux.Close()

	n, err := c.Write([]byte("x"))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = c.Read(make([]byte, 4))
	require.NoError(t, err)
	require.Zero(t, n)

	pos, err := c.Seek(1, io.SeekStart)
	require.NoError(t, err)
	require.Zero(t, pos)

	require.Equal(t, "<dead>", c.Name())
}

// TestS4_Multiplex reproduces scenario S4: two children over a 26-byte
// alphabet stream interleave reads/writes at independent positions.
func TestS4_Multiplex(t *testing.T) {
	backing := &memStream{buf: []byte("abcdefghijklmnopqrstuvwxyz")}
	mux := stream.New(backing)
	c1 := mux.NewChild()
	c2 := mux.NewChild()

	buf1 := make([]byte, 3)
	n, err := c1.Read(buf1)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "abc", string(buf1))

	buf2 := make([]byte, 5)
	n, err = c2.Read(buf2)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "abcde", string(buf2))

	n, err = c1.Write([]byte("XY"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte("abcXYfghij"), backing.buf[0:10])

	buf2 = make([]byte, 2)
	n, err = c2.Read(buf2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "fg", string(buf2))

	pos1, err := c1.Pos()
	require.NoError(t, err)
	require.EqualValues(t, 5, pos1)

	pos2, err := c2.Pos()
	require.NoError(t, err)
	require.EqualValues(t, 7, pos2)
}
