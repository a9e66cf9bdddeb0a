package sched_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/o3sim/insts"
	"github.com/sarchlab/o3sim/timing/sched"
)

// wideConfig removes resource pressure so only dependencies and the CDB
// shape the schedule.
func wideConfig() sched.Config {
	config := sched.DefaultConfig()
	config.ROBCapacity = 64
	for i := range config.Units {
		config.Units[i].UnitCount = 4
		config.Units[i].StationsPerUnit = 4
	}
	return config
}

func mustScheduler(config sched.Config) *sched.Scheduler {
	s, err := sched.NewScheduler(config)
	Expect(err).ToNot(HaveOccurred())
	return s
}

func add(dest, src1, src2 int) *insts.Instruction {
	return &insts.Instruction{
		Operation:           "add",
		Function:            insts.FunctionAdd,
		Operands:            []insts.Operand{insts.Reg(dest), insts.Reg(src1), insts.Reg(src2)},
		DestinationRegister: dest,
	}
}

func load(dest int, addr uint64, latency uint64) *insts.Instruction {
	return &insts.Instruction{
		Operation:           "lw",
		Function:            insts.FunctionLoad,
		Operands:            []insts.Operand{insts.Reg(dest), insts.Reg(0), insts.Imm(int(addr))},
		DestinationRegister: dest,
		EffectiveAddress:    addr,
		ExecutionTime:       latency,
	}
}

func store(src int, addr uint64, latency uint64) *insts.Instruction {
	return &insts.Instruction{
		Operation:           "sw",
		Function:            insts.FunctionStore,
		Operands:            []insts.Operand{insts.Reg(src), insts.Reg(0), insts.Imm(int(addr))},
		DestinationRegister: insts.NoRegister,
		EffectiveAddress:    addr,
		ExecutionTime:       latency,
	}
}

// branch compares r1 and r2 at address pc with the given offset; next is
// the address execution actually continued at.
func branch(pc uint64, r1, r2, offset int, next uint64) *insts.Instruction {
	return &insts.Instruction{
		Address:             pc,
		Operation:           "beq",
		Function:            insts.FunctionBranch,
		Operands:            []insts.Operand{insts.Reg(r1), insts.Reg(r2), insts.Imm(offset)},
		DestinationRegister: insts.NoRegister,
		EffectiveAddress:    next,
	}
}

var _ = Describe("Scheduler", func() {
	It("should reject an invalid configuration", func() {
		config := sched.DefaultConfig()
		config.ROBCapacity = 0
		_, err := sched.NewScheduler(config)
		Expect(err).To(HaveOccurred())
	})

	It("should schedule an empty trace to zero", func() {
		s := mustScheduler(wideConfig())

		schedule := s.Schedule(nil)

		Expect(schedule.TotalCycles).To(Equal(uint64(0)))
		Expect(schedule.InstructionsExecuted).To(Equal(0))
		Expect(schedule.IPC).To(Equal(0.0))
	})

	It("should walk a single instruction through all four stages", func() {
		s := mustScheduler(wideConfig())

		schedule := s.Schedule([]*insts.Instruction{add(1, 2, 3)})

		Expect(schedule.Timelines[0]).To(Equal(sched.Timeline{
			Issue:           1,
			ExecuteComplete: 2,
			WriteBack:       3,
			Commit:          4,
		}))
		Expect(schedule.TotalCycles).To(Equal(uint64(4)))
		Expect(schedule.IPC).To(Equal(0.25))
	})

	It("should overlap independent instructions", func() {
		s := mustScheduler(wideConfig())

		schedule := s.Schedule([]*insts.Instruction{
			add(1, 10, 11),
			add(2, 12, 13),
			add(3, 14, 15),
		})

		for i, tl := range schedule.Timelines {
			Expect(tl.Issue).To(Equal(uint64(i + 1)))
		}
		Expect(schedule.TotalCycles).To(Equal(uint64(6)))
		Expect(schedule.IPC).To(Equal(0.5))
	})

	It("should stall a consumer until its producer writes back", func() {
		s := mustScheduler(wideConfig())

		schedule := s.Schedule([]*insts.Instruction{
			add(1, 2, 3),
			add(4, 1, 2),
		})

		// The consumer issues back to back but cannot begin executing
		// before cycle 3, the producer's write-back.
		Expect(schedule.Timelines[1].Issue).To(Equal(uint64(2)))
		Expect(schedule.Timelines[1].ExecuteComplete).To(Equal(uint64(4)))
	})

	It("should serialize write-backs on the common data bus", func() {
		config := wideConfig()
		config.Units[insts.FunctionALU].ExecutionCycles = 2

		alu := &insts.Instruction{
			Operation:           "xor",
			Function:            insts.FunctionALU,
			Operands:            []insts.Operand{insts.Reg(1), insts.Reg(2), insts.Reg(3)},
			DestinationRegister: 1,
		}

		s := mustScheduler(config)
		schedule := s.Schedule([]*insts.Instruction{alu, add(4, 5, 6)})

		// Both finish executing at cycle 3; only one may broadcast at 4.
		Expect(schedule.Timelines[0].WriteBack).To(Equal(uint64(4)))
		Expect(schedule.Timelines[1].WriteBack).To(Equal(uint64(5)))
	})

	It("should serialize issue entirely with a one-entry ROB", func() {
		config := wideConfig()
		config.ROBCapacity = 1
		s := mustScheduler(config)

		schedule := s.Schedule([]*insts.Instruction{
			add(1, 10, 11),
			add(2, 12, 13),
			add(3, 14, 15),
		})

		for i := 1; i < len(schedule.Timelines); i++ {
			Expect(schedule.Timelines[i].Issue).
				To(Equal(schedule.Timelines[i-1].Commit+1), "instruction %d", i)
		}
	})

	It("should hold issue until a reservation station frees", func() {
		config := wideConfig()
		config.ROBCapacity = 2
		config.Units[insts.FunctionAdd] = sched.UnitConfig{
			UnitCount:       1,
			StationsPerUnit: 1,
			ExecutionCycles: 1,
		}
		s := mustScheduler(config)

		schedule := s.Schedule([]*insts.Instruction{
			add(1, 10, 11),
			add(2, 12, 13),
			add(3, 14, 15),
		})

		// One station: each instruction waits for its predecessor to
		// commit, so issue cycles 1, 2, 3 are impossible.
		Expect(schedule.Timelines[0].Issue).To(Equal(uint64(1)))
		Expect(schedule.Timelines[1].Issue).
			To(Equal(schedule.Timelines[0].Commit + 1))
		Expect(schedule.Timelines[2].Issue).
			To(Equal(schedule.Timelines[1].Commit + 1))
	})

	It("should forward a store to a later load at the same address", func() {
		s := mustScheduler(wideConfig())

		schedule := s.Schedule([]*insts.Instruction{
			store(1, 16, 2),
			load(2, 16, 2),
			load(3, 32, 2),
		})

		// The aliasing load waits for the store's write-back at cycle 4.
		Expect(schedule.Timelines[0].WriteBack).To(Equal(uint64(4)))
		Expect(schedule.Timelines[1].ExecuteComplete).To(Equal(uint64(6)))

		// The load to a different address is unaffected.
		Expect(schedule.Timelines[2].ExecuteComplete).To(Equal(uint64(5)))
	})

	It("should make a store wait for the register it consumes", func() {
		s := mustScheduler(wideConfig())

		schedule := s.Schedule([]*insts.Instruction{
			add(1, 2, 3),
			store(1, 16, 1),
		})

		Expect(schedule.Timelines[1].ExecuteComplete).
			To(Equal(schedule.Timelines[0].WriteBack + 1))
	})

	It("should make a jump wait for the register it consumes", func() {
		s := mustScheduler(wideConfig())

		jump := &insts.Instruction{
			Address:             2,
			Operation:           "jr",
			Function:            insts.FunctionJump,
			Operands:            []insts.Operand{insts.Reg(1)},
			DestinationRegister: insts.NoRegister,
			EffectiveAddress:    16,
		}

		schedule := s.Schedule([]*insts.Instruction{
			add(1, 2, 3),
			jump,
		})

		Expect(schedule.Timelines[1].ExecuteComplete).
			To(Equal(schedule.Timelines[0].WriteBack + 1))
	})

	It("should default an unresolved memory latency to one cycle", func() {
		s := mustScheduler(wideConfig())

		schedule := s.Schedule([]*insts.Instruction{load(1, 8, 0)})

		Expect(schedule.Timelines[0].ExecuteComplete).To(Equal(uint64(2)))
	})

	It("should use the configured latency per category", func() {
		s := mustScheduler(wideConfig())

		mul := &insts.Instruction{
			Operation:           "mul",
			Function:            insts.FunctionMultiply,
			Operands:            []insts.Operand{insts.Reg(1), insts.Reg(2), insts.Reg(3)},
			DestinationRegister: 1,
		}

		schedule := s.Schedule([]*insts.Instruction{mul})

		Expect(schedule.Timelines[0].ExecuteComplete).To(Equal(uint64(4)))
	})

	Describe("branch handling", func() {
		It("should restart issue after a mispredicted branch", func() {
			s := mustScheduler(wideConfig())

			// Backward branch predicted taken, but execution fell through.
			schedule := s.Schedule([]*insts.Instruction{
				add(1, 2, 3),
				branch(10, 1, 4, -2, 12),
				add(5, 6, 7),
			})

			Expect(schedule.Mispredictions).To(Equal(1))
			Expect(schedule.Timelines[2].Issue).
				To(Equal(schedule.Timelines[1].Commit + 1))
		})

		It("should not restart after a correct prediction", func() {
			s := mustScheduler(wideConfig())

			// Backward branch predicted taken and actually taken.
			schedule := s.Schedule([]*insts.Instruction{
				add(1, 2, 3),
				branch(10, 1, 4, -2, 8),
				add(5, 6, 7),
			})

			Expect(schedule.Mispredictions).To(Equal(0))
			Expect(schedule.Timelines[2].Issue).To(Equal(uint64(3)))
		})

		It("should make a branch wait for its compared registers", func() {
			s := mustScheduler(wideConfig())

			schedule := s.Schedule([]*insts.Instruction{
				add(1, 2, 3),
				branch(10, 4, 1, 2, 12),
			})

			Expect(schedule.Timelines[1].ExecuteComplete).
				To(Equal(schedule.Timelines[0].WriteBack + 1))
		})
	})

	Describe("schedule invariants", func() {
		var schedule *sched.Schedule

		BeforeEach(func() {
			config := sched.DefaultConfig()
			config.ROBCapacity = 3
			s := mustScheduler(config)

			schedule = s.Schedule([]*insts.Instruction{
				add(1, 2, 3),
				load(4, 16, 3),
				add(5, 1, 4),
				store(5, 16, 2),
				branch(8, 5, 0, -4, 4),
				load(6, 16, 3),
				add(7, 6, 6),
			})
		})

		It("should commit in program order", func() {
			for i := 1; i < len(schedule.Timelines); i++ {
				Expect(schedule.Timelines[i].Commit).
					To(BeNumerically(">", schedule.Timelines[i-1].Commit))
			}
		})

		It("should never share a write-back cycle", func() {
			seen := map[uint64]bool{}
			for _, tl := range schedule.Timelines {
				Expect(seen[tl.WriteBack]).To(BeFalse())
				seen[tl.WriteBack] = true
			}
		})

		It("should order each instruction's stages", func() {
			for _, tl := range schedule.Timelines {
				Expect(tl.Issue).To(BeNumerically(">=", 1))
				Expect(tl.ExecuteComplete).To(BeNumerically(">", tl.Issue))
				Expect(tl.WriteBack).To(BeNumerically(">", tl.ExecuteComplete))
				Expect(tl.Commit).To(BeNumerically(">", tl.WriteBack))
			}
		})

		It("should end at the last commit", func() {
			last := schedule.Timelines[len(schedule.Timelines)-1]
			Expect(schedule.TotalCycles).To(Equal(last.Commit))
			Expect(schedule.IPC).To(BeNumerically(">", 0))
		})

		It("should be deterministic", func() {
			config := sched.DefaultConfig()
			config.ROBCapacity = 3
			s := mustScheduler(config)

			again := s.Schedule([]*insts.Instruction{
				add(1, 2, 3),
				load(4, 16, 3),
				add(5, 1, 4),
				store(5, 16, 2),
				branch(8, 5, 0, -4, 4),
				load(6, 16, 3),
				add(7, 6, 6),
			})

			Expect(again.Timelines).To(Equal(schedule.Timelines))
		})
	})
})
