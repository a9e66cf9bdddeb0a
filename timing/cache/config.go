package cache

import (
	"fmt"
	"math/bits"
	"strings"
)

// HitPolicy selects what a data cache does on a write hit.
type HitPolicy int

// Write-hit policies.
const (
	// WriteBack defers propagation: the line is marked dirty and reaches
	// the next level only when it is evicted.
	WriteBack HitPolicy = iota
	// WriteThrough propagates every write hit to the next level
	// immediately.
	WriteThrough
)

func (p HitPolicy) String() string {
	switch p {
	case WriteBack:
		return "WriteBack"
	case WriteThrough:
		return "WriteThrough"
	default:
		return "UnknownHitPolicy"
	}
}

// ParseHitPolicy maps a policy name to a HitPolicy, case-insensitively.
func ParseHitPolicy(name string) (HitPolicy, error) {
	switch strings.ToLower(name) {
	case "writeback":
		return WriteBack, nil
	case "writethrough":
		return WriteThrough, nil
	}
	return 0, fmt.Errorf("unknown write-hit policy %q", name)
}

// MissPolicy selects what a data cache does on a write miss.
type MissPolicy int

// Write-miss policies.
const (
	// WriteAllocate pulls the written line into the cache after the write
	// reaches the next level.
	WriteAllocate MissPolicy = iota
	// WriteAround leaves the written line uncached.
	WriteAround
)

func (p MissPolicy) String() string {
	switch p {
	case WriteAllocate:
		return "WriteAllocate"
	case WriteAround:
		return "WriteAround"
	default:
		return "UnknownMissPolicy"
	}
}

// ParseMissPolicy maps a policy name to a MissPolicy, case-insensitively.
// "allocate" and "around" are accepted as short forms.
func ParseMissPolicy(name string) (MissPolicy, error) {
	switch strings.ToLower(name) {
	case "writeallocate", "allocate":
		return WriteAllocate, nil
	case "writearound", "around":
		return WriteAround, nil
	}
	return 0, fmt.Errorf("unknown write-miss policy %q", name)
}

// Config holds the construction parameters of one cache level.
type Config struct {
	// LineSize in bytes. Must be a power of two, at least 2.
	LineSize int `json:"line_size"`
	// NumLines is the total number of lines. Must be at least 2.
	NumLines int `json:"num_lines"`
	// Associativity is the number of ways per set. Must divide NumLines
	// and must not exceed it.
	Associativity int `json:"associativity"`
	// AccessTime is the latency of one access at this level, in cycles.
	AccessTime uint64 `json:"access_time"`
	// OnHit is the write-hit policy. Data caches only.
	OnHit HitPolicy `json:"on_hit"`
	// OnMiss is the write-miss policy. Data caches only.
	OnMiss MissPolicy `json:"on_miss"`
}

// Validate checks the geometry. It returns a configuration error before any
// cache state is built.
func (c Config) Validate() error {
	if c.LineSize < 2 || bits.OnesCount(uint(c.LineSize)) != 1 {
		return fmt.Errorf("line size %d is not a power of two >= 2", c.LineSize)
	}
	if c.NumLines < 2 {
		return fmt.Errorf("number of lines %d must be at least 2", c.NumLines)
	}
	if c.Associativity < 1 || c.Associativity > c.NumLines {
		return fmt.Errorf(
			"associativity %d outside [1, %d]", c.Associativity, c.NumLines)
	}
	if c.NumLines%c.Associativity != 0 {
		return fmt.Errorf(
			"associativity %d does not divide %d lines",
			c.Associativity, c.NumLines)
	}
	return nil
}

// NumSets returns the number of sets implied by the geometry.
func (c Config) NumSets() int {
	return c.NumLines / c.Associativity
}

// Capacity returns the total data capacity in bytes.
func (c Config) Capacity() uint64 {
	return uint64(c.NumLines) * uint64(c.LineSize)
}
