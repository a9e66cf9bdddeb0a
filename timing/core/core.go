// Package core wires the performance model together: flat memory, the
// instruction cache, the data-cache chain, the committed trace, and the
// scheduler.
//
// The functional executor drives a System in two phases. During execution
// it fetches through the instruction cache, reads and writes through the
// data hierarchy, and appends one trace record per executed instruction.
// Once execution completes, RunSchedule reconstructs the out-of-order
// timeline of the whole trace in one pass.
package core

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/o3sim/emu"
	"github.com/sarchlab/o3sim/insts"
	"github.com/sarchlab/o3sim/timing/cache"
	"github.com/sarchlab/o3sim/timing/sched"
)

// Config assembles a whole machine.
type Config struct {
	// MemorySize is the flat memory size in bytes (power of two).
	MemorySize uint64 `json:"memory_size"`

	// ICache configures the instruction cache. Its write policies are
	// ignored; instructions are never written back.
	ICache cache.Config `json:"icache"`

	// DCaches configures the data-cache chain, closest level first. It
	// may be empty, in which case data accesses go straight to memory.
	DCaches []cache.Config `json:"dcaches"`

	// Scheduler configures the out-of-order scheduler.
	Scheduler sched.Config `json:"scheduler"`
}

// Stats aggregates the model's counters for the presentation layer.
type Stats struct {
	ICache  cache.Statistics
	DCaches []cache.Statistics

	TotalCycles          uint64
	InstructionsExecuted int
	IPC                  float64
	Mispredictions       int
}

// System owns one configured machine instance.
type System struct {
	memory    *emu.Memory
	icache    *cache.Cache
	dcaches   []*cache.Cache
	dataLevel cache.Level
	trace     *insts.Trace
	scheduler *sched.Scheduler
	schedule  *sched.Schedule
}

// NewSystem builds a System from config, failing on any invalid piece
// before any state is assembled.
func NewSystem(config Config) (*System, error) {
	memory, err := emu.NewMemory(config.MemorySize)
	if err != nil {
		return nil, err
	}

	icache, err := cache.NewInstructionCache(config.ICache, memory)
	if err != nil {
		return nil, fmt.Errorf("icache: %w", err)
	}

	// The chain is built from memory up so each level can validate its
	// geometry against the level below it.
	var level cache.Level = cache.NewMemoryBacking(memory)
	dcaches := make([]*cache.Cache, len(config.DCaches))
	for i := len(config.DCaches) - 1; i >= 0; i-- {
		c, err := cache.NewDataCache(config.DCaches[i], level)
		if err != nil {
			return nil, fmt.Errorf("dcache L%d: %w", i+1, err)
		}
		dcaches[i] = c
		level = c
	}

	scheduler, err := sched.NewScheduler(config.Scheduler)
	if err != nil {
		return nil, err
	}

	return &System{
		memory:    memory,
		icache:    icache,
		dcaches:   dcaches,
		dataLevel: level,
		trace:     insts.NewTrace(),
		scheduler: scheduler,
	}, nil
}

// Memory returns the flat backing memory.
func (s *System) Memory() *emu.Memory {
	return s.memory
}

// ICache returns the instruction cache.
func (s *System) ICache() *cache.Cache {
	return s.icache
}

// DCache returns data-cache level i, with level 0 closest to the CPU.
func (s *System) DCache(i int) *cache.Cache {
	return s.dcaches[i]
}

// NumDCacheLevels returns the depth of the data-cache chain.
func (s *System) NumDCacheLevels() int {
	return len(s.dcaches)
}

// Trace returns the committed trace.
func (s *System) Trace() *insts.Trace {
	return s.trace
}

// FetchInstruction reads one encoded instruction word through the
// instruction cache, returning the word and the access latency.
func (s *System) FetchInstruction(addr uint64) (uint16, uint64, error) {
	res, err := s.icache.Read(addr, insts.InstructionWidth)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint16(res.Data), res.Latency, nil
}

// ReadData reads through the data hierarchy.
func (s *System) ReadData(addr uint64, length int) (cache.AccessResult, error) {
	return s.dataLevel.Read(addr, length)
}

// WriteData writes through the data hierarchy.
func (s *System) WriteData(addr uint64, data []byte) (cache.AccessResult, error) {
	return s.dataLevel.Write(addr, data)
}

// Record appends one executed instruction to the trace. The executor
// sets the returned record's ExecutionTime for loads and stores once the
// access latency is known.
func (s *System) Record(
	address uint64,
	operation string,
	operands []insts.Operand,
	function insts.FunctionType,
	destination int,
	effectiveAddress uint64,
) *insts.Instruction {
	return s.trace.Record(
		address, operation, operands, function, destination, effectiveAddress)
}

// RunSchedule reconstructs the out-of-order timeline of the recorded
// trace. It may be re-run; the result only changes when the trace does.
func (s *System) RunSchedule() *sched.Schedule {
	s.schedule = s.scheduler.Schedule(s.trace.Instructions())
	return s.schedule
}

// Schedule returns the last computed schedule, or nil before RunSchedule.
func (s *System) Schedule() *sched.Schedule {
	return s.schedule
}

// Stats aggregates the cache counters and, after RunSchedule, the
// schedule summary.
func (s *System) Stats() Stats {
	stats := Stats{
		ICache:  s.icache.Stats(),
		DCaches: make([]cache.Statistics, len(s.dcaches)),
	}
	for i, c := range s.dcaches {
		stats.DCaches[i] = c.Stats()
	}

	if s.schedule != nil {
		stats.TotalCycles = s.schedule.TotalCycles
		stats.InstructionsExecuted = s.schedule.InstructionsExecuted
		stats.IPC = s.schedule.IPC
		stats.Mispredictions = s.schedule.Mispredictions
	}

	return stats
}

// Reset clears every cache, zeroes memory, and discards the trace and
// any computed schedule.
func (s *System) Reset() {
	s.icache.Clear()
	for _, c := range s.dcaches {
		c.Clear()
	}
	s.memory.Clear()
	s.trace.Reset()
	s.schedule = nil
}
