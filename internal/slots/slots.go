// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package slots implements a free-list of contiguous index ranges, used to
// carve per-table runs out of a fixed-size descriptor heap.
package slots

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// span is a free range [off, off+n).
type span struct {
	off, n int
}

// List hands out contiguous runs of a fixed index space.
// Allocation is first-fit; freed runs are coalesced with their neighbours.
//
// List is safe for concurrent use.
type List struct {
	mu   sync.Mutex
	cap  int
	used int
	free []span // sorted by off, never adjacent
}

// New returns a List managing indices [0, n).
func New(n int) *List {
	l := &List{cap: n}
	if n > 0 {
		l.free = []span{{0, n}}
	}
	return l
}

// Cap returns the size of the index space.
func (l *List) Cap() int { return l.cap }

// Used returns the number of allocated indices.
func (l *List) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

// Alloc reserves n contiguous indices and returns the first one.
// It reports false if no free run is large enough.
// Alloc(0) always succeeds and returns 0.
func (l *List) Alloc(n int) (int, bool) {
	if n < 0 {
		panic(errors.AssertionFailedf("slots: negative allocation %d", n))
	}
	if n == 0 {
		return 0, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.free {
		s := &l.free[i]
		if s.n < n {
			continue
		}
		off := s.off
		s.off += n
		s.n -= n
		if s.n == 0 {
			l.free = append(l.free[:i], l.free[i+1:]...)
		}
		l.used += n
		return off, true
	}
	return 0, false
}

// Free returns the run [off, off+n) to the list.
// Freeing indices that are not allocated panics.
func (l *List) Free(off, n int) {
	if n == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if off < 0 || n < 0 || off+n > l.cap {
		panic(errors.AssertionFailedf("slots: free [%d,%d) out of range %d", off, off+n, l.cap))
	}
	i := sort.Search(len(l.free), func(i int) bool { return l.free[i].off >= off })
	if i < len(l.free) && off+n > l.free[i].off {
		panic(errors.AssertionFailedf("slots: double free of [%d,%d)", off, off+n))
	}
	if i > 0 && l.free[i-1].off+l.free[i-1].n > off {
		panic(errors.AssertionFailedf("slots: double free of [%d,%d)", off, off+n))
	}
	l.used -= n

	mergePrev := i > 0 && l.free[i-1].off+l.free[i-1].n == off
	mergeNext := i < len(l.free) && off+n == l.free[i].off
	switch {
	case mergePrev && mergeNext:
		l.free[i-1].n += n + l.free[i].n
		l.free = append(l.free[:i], l.free[i+1:]...)
	case mergePrev:
		l.free[i-1].n += n
	case mergeNext:
		l.free[i].off = off
		l.free[i].n += n
	default:
		l.free = append(l.free, span{})
		copy(l.free[i+1:], l.free[i:])
		l.free[i] = span{off, n}
	}
}
