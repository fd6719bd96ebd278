package session

import (
	"sync/atomic"

	"github.com/danmuck/vrtctl/internal/protocol"
)

// SequenceCounter hands out packet sequence values, wrapping 15 to 0. Next is
// safe for concurrent callers.
type SequenceCounter struct {
	cur atomic.Uint32
}

func NewSequenceCounter(start protocol.Sequence) *SequenceCounter {
	c := &SequenceCounter{}
	c.cur.Store(uint32(start % protocol.SequenceModulus))
	return c
}

// Next returns the current value and advances the counter.
func (c *SequenceCounter) Next() protocol.Sequence {
	for {
		cur := c.cur.Load()
		next := protocol.Sequence(cur).Next()
		if c.cur.CompareAndSwap(cur, uint32(next)) {
			return protocol.Sequence(cur)
		}
	}
}

// Peek returns the value the next call to Next will hand out.
func (c *SequenceCounter) Peek() protocol.Sequence {
	return protocol.Sequence(c.cur.Load())
}
