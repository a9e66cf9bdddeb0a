package cache

import (
	"github.com/sarchlab/o3sim/emu"
)

// MemoryBacking adapts emu.Memory as the terminal Level of a hierarchy.
// It is a quiescent store: accesses always succeed in range, report no
// latency of their own, and invalidation is a no-op.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking creates a MemoryBacking over memory.
func NewMemoryBacking(memory *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// Memory returns the wrapped memory.
func (m *MemoryBacking) Memory() *emu.Memory {
	return m.memory
}

// Read implements Level.
func (m *MemoryBacking) Read(addr uint64, length int) (AccessResult, error) {
	data, err := m.memory.Read(addr, length)
	if err != nil {
		return AccessResult{}, err
	}
	return AccessResult{Hit: true, Data: data}, nil
}

// Write implements Level.
func (m *MemoryBacking) Write(addr uint64, data []byte) (AccessResult, error) {
	if err := m.memory.Write(addr, data); err != nil {
		return AccessResult{}, err
	}
	return AccessResult{Hit: true}, nil
}

// Invalidate implements Level. Memory holds no cached copies.
func (m *MemoryBacking) Invalidate(uint64) {}

// Capacity implements Level.
func (m *MemoryBacking) Capacity() uint64 {
	return m.memory.Size()
}

// LineSize implements Level. Memory imposes no line granularity, so it
// reports its full capacity and never constrains a cache above it.
func (m *MemoryBacking) LineSize() int {
	return int(m.memory.Size())
}
