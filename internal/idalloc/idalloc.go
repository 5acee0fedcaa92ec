// Package idalloc provides a monotonic 64-bit counter used both for inode
// numbers and for multipart part numbers.
package idalloc

import "sync/atomic"

// Allocator hands out strictly increasing uint64 values starting at the
// value passed to New. It is safe for concurrent use; callers receive
// distinct values but no ordering is guaranteed between them beyond
// strict monotonicity of the sequence as a whole.
//
// Example:
//
//	ids := idalloc.New(10)
//	first := ids.Next()  // 10
//	second := ids.Next() // 11
type Allocator struct {
	next atomic.Uint64
}

// New creates an Allocator whose first Next() call returns start.
func New(start uint64) *Allocator {
	a := &Allocator{}
	a.next.Store(start)
	return a
}

// Next returns the current value and post-increments the counter.
func (a *Allocator) Next() uint64 {
	return a.next.Add(1) - 1
}
