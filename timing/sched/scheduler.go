// Package sched reconstructs the out-of-order execution timeline of a
// committed instruction trace.
//
// The scheduler is a post-hoc timing analysis, not an online simulation:
// the functional executor has already run the program and produced a
// linear trace, and the scheduler makes a single forward pass over it,
// assigning each instruction the issue, execute-complete, write-back, and
// commit cycles a Tomasulo-style machine would have produced. Each entry
// depends only on already-finalized earlier entries, so the pass is
// deterministic: the same trace and configuration always yield the same
// schedule.
package sched

import (
	"github.com/sarchlab/o3sim/insts"
)

// Timeline is the four cycle numbers assigned to one instruction.
type Timeline struct {
	// Issue is the cycle the instruction enters the ROB and a station.
	Issue uint64
	// ExecuteComplete is the cycle its execution finishes.
	ExecuteComplete uint64
	// WriteBack is the cycle it broadcasts its result on the CDB.
	WriteBack uint64
	// Commit is the cycle it retires, in program order.
	Commit uint64
}

// Schedule is the scheduler's output for one trace.
type Schedule struct {
	// Timelines holds one entry per trace instruction, in program order.
	Timelines []Timeline
	// TotalCycles is the last instruction's commit cycle.
	TotalCycles uint64
	// InstructionsExecuted is the trace length.
	InstructionsExecuted int
	// IPC is InstructionsExecuted / TotalCycles, 0 for an empty trace.
	IPC float64
	// Mispredictions counts branches whose static prediction missed.
	Mispredictions int
}

// Scheduler assigns cycle numbers to committed traces.
//
// Traces are a precondition, not validated: an instruction referencing a
// register no prior instruction produced is an upstream executor bug, and
// simply schedules without a dependency.
type Scheduler struct {
	config Config
}

// NewScheduler creates a Scheduler, rejecting an invalid configuration
// before any trace is scheduled.
func NewScheduler(config Config) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{config: config}, nil
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config {
	return s.config
}

// Schedule computes the timeline of every instruction in the trace. It
// also resolves each instruction's ExecutionTime from the configuration
// (loads and stores keep the latency the memory hierarchy reported).
func (s *Scheduler) Schedule(trace []*insts.Instruction) *Schedule {
	schedule := &Schedule{
		Timelines:            make([]Timeline, len(trace)),
		InstructionsExecuted: len(trace),
	}
	if len(trace) == 0 {
		return schedule
	}

	flush := false
	for i, inst := range trace {
		restart := flush
		flush = false

		tl := &schedule.Timelines[i]
		tl.Issue = s.issueCycle(schedule, trace, i, restart)

		dep := dependencyIndex(trace, i)
		ready := tl.Issue
		if dep >= 0 && schedule.Timelines[dep].WriteBack > ready {
			ready = schedule.Timelines[dep].WriteBack
		}

		execTime := s.config.executionTime(inst)
		inst.ExecutionTime = execTime
		tl.ExecuteComplete = ready + execTime

		tl.WriteBack = s.writeBackCycle(schedule, i, tl.ExecuteComplete+1)

		if i == 0 {
			tl.Commit = tl.WriteBack + 1
		} else {
			tl.Commit = maxUint64(schedule.Timelines[i-1].Commit, tl.WriteBack) + 1
		}

		if inst.Function == insts.FunctionBranch &&
			inst.PredictedTaken() != inst.Taken() {
			schedule.Mispredictions++
			flush = true
		}
	}

	schedule.TotalCycles = schedule.Timelines[len(trace)-1].Commit
	schedule.IPC = float64(len(trace)) / float64(schedule.TotalCycles)

	return schedule
}

// issueCycle finds the earliest cycle instruction i can issue. After a
// misprediction the pipeline restarts: the instruction issues right after
// the mispredicted branch commits, regardless of resource pressure.
func (s *Scheduler) issueCycle(
	schedule *Schedule,
	trace []*insts.Instruction,
	i int,
	restart bool,
) uint64 {
	if i == 0 {
		return 1
	}
	if restart {
		return schedule.Timelines[i-1].Commit + 1
	}

	candidate := schedule.Timelines[i-1].Issue + 1

	byROB := s.delayUntilFree(schedule, trace, i, candidate,
		s.config.ROBCapacity, insts.FunctionType(-1))

	byStations := candidate
	if stations := s.config.StationCapacity(trace[i].Function); stations > 0 {
		byStations = s.delayUntilFree(schedule, trace, i, candidate,
			stations, trace[i].Function)
	}

	return maxUint64(byROB, byStations)
}

// delayUntilFree pushes the candidate issue cycle forward until fewer than
// capacity earlier instructions are in flight at it. A negative filter
// counts every instruction (ROB); otherwise only the matching category
// counts (reservation stations). An instruction is in flight at cycle c
// when it issued at or before c and commits at or after c.
func (s *Scheduler) delayUntilFree(
	schedule *Schedule,
	trace []*insts.Instruction,
	i int,
	candidate uint64,
	capacity int,
	filter insts.FunctionType,
) uint64 {
	for {
		inFlight := 0
		earliestCommit := uint64(0)

		for j := 0; j < i; j++ {
			if filter >= 0 && trace[j].Function != filter {
				continue
			}

			tl := schedule.Timelines[j]
			if tl.Issue <= candidate && tl.Commit >= candidate {
				inFlight++
				if earliestCommit == 0 || tl.Commit < earliestCommit {
					earliestCommit = tl.Commit
				}
			}
		}

		if inFlight < capacity {
			return candidate
		}

		// Full: retry right after the oldest blocking instruction
		// retires.
		candidate = earliestCommit + 1
	}
}

// writeBackCycle resolves common-data-bus contention: only one
// instruction may broadcast per cycle, so the candidate slides past every
// cycle an earlier instruction already claimed.
func (s *Scheduler) writeBackCycle(
	schedule *Schedule,
	i int,
	candidate uint64,
) uint64 {
	for {
		taken := false
		for j := 0; j < i; j++ {
			if schedule.Timelines[j].WriteBack == candidate {
				taken = true
				break
			}
		}
		if !taken {
			return candidate
		}
		candidate++
	}
}

// dependencyIndex finds the nearest prior instruction i waits on, or -1.
//
//   - loads wait on the nearest prior store to the same effective address;
//   - stores and jumps wait on the nearest prior producer of their first
//     register operand;
//   - branches wait on the nearest prior producer of either compared
//     register;
//   - everything register-writing waits on the nearest prior producer of
//     either source register.
func dependencyIndex(trace []*insts.Instruction, i int) int {
	inst := trace[i]

	switch inst.Function {
	case insts.FunctionLoad:
		for j := i - 1; j >= 0; j-- {
			if trace[j].Function == insts.FunctionStore &&
				trace[j].EffectiveAddress == inst.EffectiveAddress {
				return j
			}
		}
		return -1

	case insts.FunctionStore, insts.FunctionJump:
		reg := inst.FirstRegisterOperand()
		if reg == insts.NoRegister {
			return -1
		}
		return lastProducer(trace, i, []int{reg})

	case insts.FunctionBranch:
		return lastProducer(trace, i, inst.ComparedRegisters())

	default:
		return lastProducer(trace, i, inst.SourceRegisters())
	}
}

// lastProducer scans backward for the nearest register-writing
// instruction whose destination is one of regs.
func lastProducer(trace []*insts.Instruction, i int, regs []int) int {
	if len(regs) == 0 {
		return -1
	}

	for j := i - 1; j >= 0; j-- {
		if !trace[j].Function.WritesRegister() {
			continue
		}
		for _, reg := range regs {
			if trace[j].DestinationRegister == reg {
				return j
			}
		}
	}

	return -1
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
