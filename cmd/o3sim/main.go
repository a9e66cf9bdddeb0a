// Package main provides the entry point for O3Sim.
// O3Sim is a trace-driven out-of-order CPU performance model.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/o3sim/insts"
	"github.com/sarchlab/o3sim/recording"
	"github.com/sarchlab/o3sim/timing/cache"
	"github.com/sarchlab/o3sim/timing/core"
	"github.com/sarchlab/o3sim/timing/sched"
)

var (
	configPath = flag.String("config", "", "Path to scheduler configuration JSON file")
	dbPath     = flag.String("db", "", "Record results to a SQLite database at this path")
	verbose    = flag.Bool("v", false, "Verbose output")

	memSize = flag.Uint64("mem", 65536, "Memory size in bytes (power of two)")

	icacheLines      = flag.Int("icache-lines", 64, "Instruction cache line count")
	icacheLineSize   = flag.Int("icache-line-size", 8, "Instruction cache line size in bytes")
	icacheAssoc      = flag.Int("icache-assoc", 2, "Instruction cache associativity")
	icacheAccessTime = flag.Uint64("icache-access-time", 1, "Instruction cache access latency")

	l1Lines      = flag.Int("l1-lines", 64, "L1 data cache line count")
	l1LineSize   = flag.Int("l1-line-size", 8, "L1 data cache line size in bytes")
	l1Assoc      = flag.Int("l1-assoc", 2, "L1 data cache associativity")
	l1AccessTime = flag.Uint64("l1-access-time", 1, "L1 data cache access latency")
	l1Hit        = flag.String("l1-hit", "writeback", "L1 write-hit policy (writeback|writethrough)")
	l1Miss       = flag.String("l1-miss", "allocate", "L1 write-miss policy (allocate|around)")

	l2Lines      = flag.Int("l2-lines", 0, "L2 data cache line count (0 disables the L2)")
	l2LineSize   = flag.Int("l2-line-size", 16, "L2 data cache line size in bytes")
	l2Assoc      = flag.Int("l2-assoc", 4, "L2 data cache associativity")
	l2AccessTime = flag.Uint64("l2-access-time", 4, "L2 data cache access latency")
	l2Hit        = flag.String("l2-hit", "writeback", "L2 write-hit policy (writeback|writethrough)")
	l2Miss       = flag.String("l2-miss", "allocate", "L2 write-miss policy (allocate|around)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: o3sim [options] <trace.json>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	tracePath := flag.Arg(0)

	sys, err := buildSystem()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building system: %v\n", err)
		os.Exit(1)
	}

	records, err := loadTrace(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", tracePath)
		fmt.Printf("Trace records: %d\n", len(records))
	}

	if err := replay(sys, records); err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying trace: %v\n", err)
		os.Exit(1)
	}

	schedule := sys.RunSchedule()
	report(sys, schedule)

	if *dbPath != "" {
		if err := record(sys, schedule); err != nil {
			fmt.Fprintf(os.Stderr, "Error recording results: %v\n", err)
			os.Exit(1)
		}
	}
}

// buildSystem assembles the machine from the command-line flags.
func buildSystem() (*core.System, error) {
	config := core.Config{
		MemorySize: *memSize,
		ICache: cache.Config{
			LineSize:      *icacheLineSize,
			NumLines:      *icacheLines,
			Associativity: *icacheAssoc,
			AccessTime:    *icacheAccessTime,
		},
	}

	l1, err := dataCacheConfig(
		*l1Lines, *l1LineSize, *l1Assoc, *l1AccessTime, *l1Hit, *l1Miss)
	if err != nil {
		return nil, fmt.Errorf("l1: %w", err)
	}
	config.DCaches = append(config.DCaches, l1)

	if *l2Lines > 0 {
		l2, err := dataCacheConfig(
			*l2Lines, *l2LineSize, *l2Assoc, *l2AccessTime, *l2Hit, *l2Miss)
		if err != nil {
			return nil, fmt.Errorf("l2: %w", err)
		}
		config.DCaches = append(config.DCaches, l2)
	}

	if *configPath != "" {
		config.Scheduler, err = sched.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
	} else {
		config.Scheduler = sched.DefaultConfig()
	}

	return core.NewSystem(config)
}

func dataCacheConfig(
	lines, lineSize, assoc int,
	accessTime uint64,
	hit, miss string,
) (cache.Config, error) {
	onHit, err := cache.ParseHitPolicy(hit)
	if err != nil {
		return cache.Config{}, err
	}

	onMiss, err := cache.ParseMissPolicy(miss)
	if err != nil {
		return cache.Config{}, err
	}

	return cache.Config{
		LineSize:      lineSize,
		NumLines:      lines,
		Associativity: assoc,
		AccessTime:    accessTime,
		OnHit:         onHit,
		OnMiss:        onMiss,
	}, nil
}

// traceOperand is one operand in the trace file: exactly one of the two
// fields is set.
type traceOperand struct {
	Register  *int `json:"register,omitempty"`
	Immediate *int `json:"immediate,omitempty"`
}

// traceRecord is one executed instruction in the trace file.
type traceRecord struct {
	Address          uint64         `json:"address"`
	Operation        string         `json:"operation"`
	Function         string         `json:"function"`
	Operands         []traceOperand `json:"operands"`
	Destination      *int           `json:"destination,omitempty"`
	EffectiveAddress uint64         `json:"effective_address"`
	Length           int            `json:"length,omitempty"`
}

type traceFile struct {
	Instructions []traceRecord `json:"instructions"`
}

func loadTrace(path string) ([]traceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	var file traceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse trace file: %w", err)
	}

	return file.Instructions, nil
}

// replay drives every trace record through the system: each instruction
// is fetched through the instruction cache, loads and stores touch the
// data hierarchy, and one trace entry is appended per record.
func replay(sys *core.System, records []traceRecord) error {
	for i, rec := range records {
		function, err := insts.ParseFunction(rec.Function)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}

		operands := make([]insts.Operand, 0, len(rec.Operands))
		for j, op := range rec.Operands {
			switch {
			case op.Register != nil:
				operands = append(operands, insts.Reg(*op.Register))
			case op.Immediate != nil:
				operands = append(operands, insts.Imm(*op.Immediate))
			default:
				return fmt.Errorf(
					"record %d operand %d: neither register nor immediate", i, j)
			}
		}

		destination := insts.NoRegister
		if rec.Destination != nil {
			destination = *rec.Destination
		} else if function.WritesRegister() && len(operands) > 0 &&
			operands[0].Kind == insts.OperandRegister {
			destination = operands[0].Value
		}

		if _, _, err := sys.FetchInstruction(rec.Address); err != nil {
			return fmt.Errorf("record %d fetch: %w", i, err)
		}

		inst := sys.Record(rec.Address, rec.Operation, operands,
			function, destination, rec.EffectiveAddress)

		length := rec.Length
		if length == 0 {
			length = insts.InstructionWidth
		}

		switch function {
		case insts.FunctionLoad:
			res, err := sys.ReadData(rec.EffectiveAddress, length)
			if err != nil {
				return fmt.Errorf("record %d load: %w", i, err)
			}
			inst.ExecutionTime = res.Latency
		case insts.FunctionStore:
			res, err := sys.WriteData(rec.EffectiveAddress, make([]byte, length))
			if err != nil {
				return fmt.Errorf("record %d store: %w", i, err)
			}
			inst.ExecutionTime = res.Latency
		}
	}

	return nil
}

func report(sys *core.System, schedule *sched.Schedule) {
	fmt.Printf("\n")
	fmt.Printf("Instructions: %d\n", schedule.InstructionsExecuted)
	fmt.Printf("Total cycles: %d\n", schedule.TotalCycles)
	fmt.Printf("IPC: %.3f\n", schedule.IPC)
	fmt.Printf("Mispredictions: %d\n", schedule.Mispredictions)

	fmt.Printf("\nCache statistics:\n")
	printCacheStats("icache", sys.ICache().Stats())
	for i := 0; i < sys.NumDCacheLevels(); i++ {
		printCacheStats(fmt.Sprintf("dcache L%d", i+1), sys.DCache(i).Stats())
	}

	if *verbose {
		fmt.Printf("\nTimeline:\n")
		fmt.Printf("  %-4s %-18s %-8s %-8s %-10s %-8s\n",
			"#", "operation", "issue", "exec", "writeback", "commit")
		for i, tl := range schedule.Timelines {
			inst := sys.Trace().Instructions()[i]
			fmt.Printf("  %-4d %-18s %-8d %-8d %-10d %-8d\n",
				i, inst.Operation, tl.Issue, tl.ExecuteComplete,
				tl.WriteBack, tl.Commit)
		}

		for i := 0; i < sys.NumDCacheLevels(); i++ {
			fmt.Printf("\ndcache L%d contents:\n%s", i+1, sys.DCache(i).DumpString())
		}
	}
}

func printCacheStats(name string, stats cache.Statistics) {
	hitRate := 0.0
	if stats.Accesses > 0 {
		hitRate = 100.0 * float64(stats.Hits) / float64(stats.Accesses)
	}
	fmt.Printf("  %-10s accesses=%-8d hits=%-8d misses=%-8d hit%%=%5.1f evictions=%d writebacks=%d\n",
		name, stats.Accesses, stats.Hits, stats.Misses, hitRate,
		stats.Evictions, stats.Writebacks)
}

func record(sys *core.System, schedule *sched.Schedule) error {
	recorder, err := recording.NewRecorder(*dbPath)
	if err != nil {
		return err
	}

	err = recorder.RecordSchedule(sys.Trace().Instructions(), schedule)
	if err != nil {
		return err
	}

	err = recorder.RecordCacheStats("icache", sys.ICache().Stats())
	if err != nil {
		return err
	}
	for i := 0; i < sys.NumDCacheLevels(); i++ {
		name := fmt.Sprintf("dcache_l%d", i+1)
		if err := recorder.RecordCacheStats(name, sys.DCache(i).Stats()); err != nil {
			return err
		}
	}

	if *verbose {
		fmt.Printf("\nResults recorded to %s\n", recorder.Path())
	}

	return recorder.Close()
}
