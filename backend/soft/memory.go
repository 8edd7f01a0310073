// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default device memory budget (256 MB).
	DefaultMaxMemoryMB = 256

	// MinMemoryMB is the smallest budget accepted (1 MB).
	MinMemoryMB = 1
)

// MemoryStats contains device memory usage statistics.
type MemoryStats struct {
	// TotalBytes is the memory budget in bytes.
	TotalBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// Allocations is the number of live buffers and textures.
	Allocations int

	// Failures counts allocations rejected for lack of memory.
	Failures uint64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	var util float64
	if s.TotalBytes > 0 {
		util = float64(s.UsedBytes) / float64(s.TotalBytes)
	}
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d KB, %d allocations, %d failures]",
		util*100, s.UsedBytes/1024, s.TotalBytes/1024, s.Allocations, s.Failures)
}

// memoryBudget tracks device memory and rejects allocations that would
// exceed the budget. It stands in for the native allocator's heap limits.
//
// memoryBudget is safe for concurrent use.
type memoryBudget struct {
	mu          sync.Mutex
	budgetBytes uint64
	usedBytes   uint64
	allocs      int
	failures    uint64
}

func newMemoryBudget(maxBytes int64) *memoryBudget {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMemoryMB << 20
	}
	if maxBytes < MinMemoryMB<<20 {
		maxBytes = MinMemoryMB << 20
	}
	return &memoryBudget{budgetBytes: uint64(maxBytes)}
}

// reserve accounts for n bytes or fails with driver.ErrNoDeviceMemory.
func (m *memoryBudget) reserve(n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || m.usedBytes+uint64(n) > m.budgetBytes {
		m.failures++
		return errors.Wrapf(driver.ErrNoDeviceMemory, "soft: %d bytes requested, %d of %d in use",
			n, m.usedBytes, m.budgetBytes)
	}
	m.usedBytes += uint64(n)
	m.allocs++
	return nil
}

func (m *memoryBudget) release(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usedBytes -= uint64(n)
	m.allocs--
}

func (m *memoryBudget) stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryStats{
		TotalBytes:  m.budgetBytes,
		UsedBytes:   m.usedBytes,
		Allocations: m.allocs,
		Failures:    m.failures,
	}
}
