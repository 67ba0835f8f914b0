// Package stream implements a shared-cursor stream wrapper: many
// io.ReadWriteSeeker "children" multiplex reads/writes/seeks onto one
// underlying stream, each child behaving as if it had its own
// independent position, at the cost of the underlying stream only
// truly holding one position at a time (spec.md §4.9).
package stream

import (
	"errors"
	"io"
	"sync"
)

// Seeker is the minimal surface a multiplexable backing stream needs:
// reposition plus read/write at the current position. Most callers
// wrap an *os.File.
type Seeker interface {
	io.Reader
	io.Writer
	Seek(offset int64, whence int) (int64, error)
}

// controlNode is the shared state behind every Child created from the
// same Multiplexer: exactly one child is ever "active" (its logical
// position matches the backing stream's actual position) at a time.
type controlNode struct {
	mu          sync.Mutex
	parent      Seeker
	activeChild *Child
}

// Multiplexer owns one backing Seeker and hands out Children that each
// present an independent io.ReadWriteSeeker view over it.
type Multiplexer struct {
	node *controlNode
}

// New wraps backing for multiplexed access. The Multiplexer itself is
// not used for I/O directly; call NewChild to obtain views.
func New(backing Seeker) *Multiplexer {
	return &Multiplexer{node: &controlNode{parent: backing}}
}

// NewChild returns a new independently-positioned view over the
// backing stream, starting at offset 0.
func (m *Multiplexer) NewChild() *Child {
	return &Child{node: m.node}
}

// Close detaches the Multiplexer from its backing stream. Every Child
// of a closed Multiplexer is a zombie: its Read/Write return (0, nil),
// its Seek returns (0, nil), and its Name reports "<dead>", matching
// the source's "parent is gone" behavior, which returns benign zero
// values rather than raising an exception.
func (m *Multiplexer) Close() {
	m.node.mu.Lock()
	defer m.node.mu.Unlock()
	m.node.parent = nil
	m.node.activeChild = nil
}

// Child is one multiplexed view over a Multiplexer's backing stream.
type Child struct {
	node         *controlNode
	posIfInactive int64
}

// errZombie is returned internally by activate when the Multiplexer
// has been closed; it never escapes to a caller. Child operations
// translate it into the documented benign zero result instead of a
// real error, matching the source's "parent is gone" return-0 behavior.
var errZombie = errors.New("stream: zombie")

// activate performs the save-outgoing-then-seek-incoming dance from
// the source's ControlNode::activateChild: if some other child is
// currently active, its logical position is captured from the backing
// stream's actual position *before* the backing stream is repositioned
// for ch. The new active child is only recorded after the Seek call
// succeeds, so a failed Seek leaves the previous child's bookkeeping
// intact instead of silently losing its position.
//
// Must be called with node.mu held.
func (node *controlNode) activate(ch *Child) (Seeker, error) {
	if node.parent == nil {
		return nil, errZombie
	}
	if node.activeChild == ch {
		return node.parent, nil
	}
	if prev := node.activeChild; prev != nil {
		pos, err := prev.currentPos(node.parent)
		if err != nil {
			return nil, err
		}
		prev.posIfInactive = pos
		node.activeChild = nil
	}
	if ch != nil {
		if _, err := node.parent.Seek(ch.posIfInactive, io.SeekStart); err != nil {
			return nil, err
		}
	}
	// Recorded last, in case the Seek above fails.
	node.activeChild = ch
	return node.parent, nil
}

func (c *Child) currentPos(s Seeker) (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// Read implements io.Reader. On a zombie child (parent destroyed) it
// returns (0, nil): a benign empty read, not an error.
func (c *Child) Read(p []byte) (int, error) {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	s, err := c.node.activate(c)
	if err == errZombie {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.Read(p)
}

// Write implements io.Writer. On a zombie child (parent destroyed) it
// returns (0, nil): a benign no-op, not an error.
func (c *Child) Write(p []byte) (int, error) {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	s, err := c.node.activate(c)
	if err == errZombie {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.Write(p)
}

// Seek implements io.Seeker, against this child's independent logical
// position. On a zombie child it returns (0, nil).
func (c *Child) Seek(offset int64, whence int) (int64, error) {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	s, err := c.node.activate(c)
	if err == errZombie {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.Seek(offset, whence)
}

// Pos returns this child's current logical position without disturbing
// which child is active, when it is not itself active. A zombie child
// reports position 0.
func (c *Child) Pos() (int64, error) {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	if c.node.parent == nil {
		return 0, nil
	}
	if c.node.activeChild == c {
		return c.currentPos(c.node.parent)
	}
	return c.posIfInactive, nil
}

// Name reports "<dead>" once this child's Multiplexer has been closed;
// otherwise it reports the backing stream's name, if the backing
// Seeker exposes one.
func (c *Child) Name() string {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	if c.node.parent == nil {
		return "<dead>"
	}
	if named, ok := c.node.parent.(interface{ Name() string }); ok {
		return named.Name()
	}
	return ""
}

// Close releases this child's hold on the backing stream: if it is the
// active child it stops being active, without its position being
// saved. The child is not otherwise invalidated; a later Read, Write or
// Seek activates it again at its last saved position.
func (c *Child) Close() error {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	if c.node.activeChild == c {
		c.node.activeChild = nil
	}
	return nil
}

// CreateChild mirrors the source's Child::createChild: a child of a
// child is just another child of the same control node.
func (c *Child) CreateChild() *Child {
	return &Child{node: c.node}
}
