package session

import (
	"errors"
	"sync"
	"time"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/frame"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// stubConn is an in-memory PacketConn. respond is called for every write with
// the 1-based send count and returns the datagrams to deliver.
type stubConn struct {
	mu       sync.Mutex
	deadline time.Time
	sends    [][]byte
	closed   bool
	respond  func(send int, packet []byte) [][]byte

	inbox chan []byte
	wake  chan struct{}
}

func newStubConn(respond func(send int, packet []byte) [][]byte) *stubConn {
	return &stubConn{
		respond: respond,
		inbox:   make(chan []byte, 64),
		wake:    make(chan struct{}, 1),
	}
}

func (c *stubConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errors.New("stub: closed")
	}
	c.sends = append(c.sends, append([]byte{}, b...))
	n := len(c.sends)
	respond := c.respond
	c.mu.Unlock()
	if respond != nil {
		for _, d := range respond(n, b) {
			c.inbox <- d
		}
	}
	return len(b), nil
}

func (c *stubConn) Read(b []byte) (int, error) {
	for {
		c.mu.Lock()
		deadline, closed := c.deadline, c.closed
		c.mu.Unlock()
		if closed {
			return 0, errors.New("stub: closed")
		}
		var expire <-chan time.Time
		var timer *time.Timer
		if !deadline.IsZero() {
			wait := time.Until(deadline)
			if wait <= 0 {
				return 0, timeoutError{}
			}
			timer = time.NewTimer(wait)
			expire = timer.C
		}
		select {
		case d := <-c.inbox:
			stopTimer(timer)
			return copy(b, d), nil
		case <-expire:
			return 0, timeoutError{}
		case <-c.wake:
			stopTimer(timer)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (c *stubConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	c.poke()
	return nil
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.poke()
	return nil
}

func (c *stubConn) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *stubConn) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

// ackFor builds a minimal ack datagram (no indicators) for seq.
func ackFor(seq protocol.Sequence) []byte {
	pro := frame.Prologue{Header: frame.Header{Type: protocol.PacketTypeCommand, Ack: true, Sequence: seq}, StreamID: 1}
	b := frame.AppendPrologue(nil, pro)
	b = protocol.AppendU32(b, 1<<19) // execution ack
	b = protocol.AppendU32(b, 0)
	_ = frame.SetSize(b)
	return b
}

// controlFor builds a datagram that looks like a control packet for seq.
func controlFor(seq protocol.Sequence) []byte {
	pro := frame.Prologue{Header: frame.Header{Type: protocol.PacketTypeCommand, Sequence: seq}}
	b := frame.AppendPrologue(nil, pro)
	_ = frame.SetSize(b)
	return b
}

func testConfig(maxRetries int) Config {
	return Config{
		AckTimeout:    40 * time.Millisecond,
		MaxRetries:    maxRetries,
		ReceiveBuffer: 1024,
		Backoff:       BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1},
	}
}
