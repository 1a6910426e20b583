package buffer

import (
	"fmt"

	"firestige.xyz/gtpstamp/internal/core"
)

// Chain is a scatter/gather buffer made of non-contiguous segments, as
// delivered by capture paths that split a packet across pages.
type Chain struct {
	segs   [][]byte
	size   int
	maxLen int
}

// NewChain builds a Chain from segments. Empty segments are dropped.
// maxLen is the largest contiguous region the owner can materialise; a
// chain longer than that cannot be linearized.
func NewChain(maxLen int, segs ...[]byte) *Chain {
	c := &Chain{maxLen: maxLen}
	for _, s := range segs {
		if len(s) == 0 {
			continue
		}
		c.segs = append(c.segs, s)
		c.size += len(s)
	}
	return c
}

func (c *Chain) Len() int { return c.size }

func (c *Chain) Head() []byte {
	if len(c.segs) == 0 {
		return nil
	}
	return c.segs[0]
}

func (c *Chain) Linear() bool { return len(c.segs) <= 1 }

// Linearize merges all segments into one. Room for a trailer entry is
// reserved so that a following Extend does not reallocate.
func (c *Chain) Linearize() error {
	if c.Linear() {
		return nil
	}
	if c.size > c.maxLen {
		return fmt.Errorf("linearize %d bytes over limit %d: %w", c.size, c.maxLen, core.ErrBuffer)
	}
	room := c.size + core.TrailerEntryLen
	if room > c.maxLen {
		room = c.maxLen
	}
	merged := make([]byte, 0, room)
	for _, s := range c.segs {
		merged = append(merged, s...)
	}
	c.segs = [][]byte{merged}
	return nil
}

// Bytes returns the single segment. It returns nil while the chain is
// still scattered.
func (c *Chain) Bytes() []byte {
	if !c.Linear() {
		return nil
	}
	return c.Head()
}

// Extend grows the last segment. The chain must be linear.
func (c *Chain) Extend(n int) error {
	if !c.Linear() {
		return fmt.Errorf("extend scattered buffer: %w", core.ErrBuffer)
	}
	if n < 0 || c.size+n > c.maxLen {
		return fmt.Errorf("extend %d by %d exceeds limit %d: %w", c.size, n, c.maxLen, core.ErrBuffer)
	}
	lin := NewLinear(c.Head(), c.maxLen)
	if err := lin.Extend(n); err != nil {
		return err
	}
	c.segs = [][]byte{lin.Bytes()}
	c.size += n
	return nil
}
