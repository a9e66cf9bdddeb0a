package cache

import (
	"fmt"

	"github.com/sarchlab/o3sim/emu"
)

// NewInstructionCache creates a read-only cache sitting directly on memory.
// Instructions are never written speculatively, so the hit and miss write
// policies in config are ignored and Write fails.
func NewInstructionCache(config Config, memory *emu.Memory) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	backing := NewMemoryBacking(memory)
	if uint64(config.LineSize) > backing.Capacity() {
		return nil, fmt.Errorf(
			"line size %d exceeds memory size %d",
			config.LineSize, backing.Capacity())
	}

	return newCache(config, backing, true), nil
}
