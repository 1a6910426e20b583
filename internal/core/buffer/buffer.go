// Package buffer implements the packet buffer owners handed to the stamper.
//
// A Buffer is borrowed exclusively for one Process call. Its content and
// logical length may change during the call, nothing else does, and the
// stamper keeps no reference to it afterwards.
package buffer

import (
	"fmt"

	"firestige.xyz/gtpstamp/internal/core"
)

// Buffer is a mutable packet with a logical length and a capacity limit.
type Buffer interface {
	// Len returns the logical length.
	Len() int
	// Head returns the contiguous leading bytes. For a linear buffer that is
	// the whole packet; for a scattered one it is the first segment.
	Head() []byte
	// Linear reports whether Bytes may be used for random-offset access.
	Linear() bool
	// Linearize makes the buffer contiguous without changing its content.
	Linearize() error
	// Bytes returns the logical contents. Only valid when Linear is true.
	Bytes() []byte
	// Extend grows the logical length by n zero bytes at the end.
	Extend(n int) error
}

// Linear is a single contiguous byte slice bounded by MaxLen.
type Linear struct {
	data   []byte
	maxLen int
}

// NewLinear wraps data. maxLen bounds growth; values below len(data) are
// raised to len(data).
func NewLinear(data []byte, maxLen int) *Linear {
	if maxLen < len(data) {
		maxLen = len(data)
	}
	return &Linear{data: data, maxLen: maxLen}
}

func (b *Linear) Len() int         { return len(b.data) }
func (b *Linear) Head() []byte     { return b.data }
func (b *Linear) Linear() bool     { return true }
func (b *Linear) Linearize() error { return nil }
func (b *Linear) Bytes() []byte    { return b.data }

// MaxLen returns the growth limit.
func (b *Linear) MaxLen() int { return b.maxLen }

// Extend grows the buffer in place when capacity allows and reallocates
// otherwise.
func (b *Linear) Extend(n int) error {
	if n < 0 {
		return fmt.Errorf("extend by %d: %w", n, core.ErrBuffer)
	}
	newLen := len(b.data) + n
	if newLen > b.maxLen {
		return fmt.Errorf("extend %d by %d exceeds limit %d: %w", len(b.data), n, b.maxLen, core.ErrBuffer)
	}
	if newLen <= cap(b.data) {
		b.data = b.data[:newLen]
		clear(b.data[newLen-n:])
		return nil
	}
	grown := make([]byte, newLen, newLen+core.TrailerEntryLen)
	copy(grown, b.data)
	b.data = grown
	return nil
}
