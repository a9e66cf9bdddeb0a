package sched

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/o3sim/insts"
)

// UnitConfig describes the execution resources of one function category.
type UnitConfig struct {
	// UnitCount is the number of execution units for the category.
	UnitCount int `json:"unit_count"`

	// StationsPerUnit is the number of reservation stations per unit. A
	// category can have UnitCount*StationsPerUnit instructions in flight.
	StationsPerUnit int `json:"stations_per_unit"`

	// ExecutionCycles is the fixed execution latency. Only the ALU,
	// ADD, MULTIPLY, and DIVIDE categories carry one; load and store
	// latency is dynamic, reported by the memory hierarchy.
	ExecutionCycles uint64 `json:"execution_cycles,omitempty"`
}

// Config holds the scheduler configuration. Units is indexed by
// insts.FunctionType for the first insts.NumStationConstrained categories;
// categories past STORE have no stations and issue unconstrained.
type Config struct {
	// ROBCapacity bounds how many issued-but-uncommitted instructions may
	// be in flight at once.
	ROBCapacity int `json:"rob_capacity"`

	// Units configures the six station-constrained categories, in
	// FunctionType order: ALU, ADD, MULTIPLY, DIVIDE, LOAD, STORE.
	Units [insts.NumStationConstrained]UnitConfig `json:"units"`
}

// DefaultConfig returns a small out-of-order machine: an 8-entry ROB,
// one unit with two stations per category, and classic integer latencies.
func DefaultConfig() Config {
	return Config{
		ROBCapacity: 8,
		Units: [insts.NumStationConstrained]UnitConfig{
			insts.FunctionALU:      {UnitCount: 1, StationsPerUnit: 2, ExecutionCycles: 1},
			insts.FunctionAdd:      {UnitCount: 1, StationsPerUnit: 2, ExecutionCycles: 1},
			insts.FunctionMultiply: {UnitCount: 1, StationsPerUnit: 2, ExecutionCycles: 3},
			insts.FunctionDivide:   {UnitCount: 1, StationsPerUnit: 2, ExecutionCycles: 10},
			insts.FunctionLoad:     {UnitCount: 1, StationsPerUnit: 2},
			insts.FunctionStore:    {UnitCount: 1, StationsPerUnit: 2},
		},
	}
}

// LoadConfig loads a Config from a JSON file, starting from the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read scheduler config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse scheduler config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize scheduler config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write scheduler config file: %w", err)
	}

	return nil
}

// Validate checks that every configured field is at least 1. It runs
// before any trace is scheduled.
func (c Config) Validate() error {
	if c.ROBCapacity < 1 {
		return fmt.Errorf("rob_capacity must be >= 1, got %d", c.ROBCapacity)
	}

	for i, unit := range c.Units {
		f := insts.FunctionType(i)
		if unit.UnitCount < 1 {
			return fmt.Errorf("%s unit_count must be >= 1, got %d", f, unit.UnitCount)
		}
		if unit.StationsPerUnit < 1 {
			return fmt.Errorf(
				"%s stations_per_unit must be >= 1, got %d", f, unit.StationsPerUnit)
		}
		if i < insts.NumFixedLatency && unit.ExecutionCycles < 1 {
			return fmt.Errorf(
				"%s execution_cycles must be >= 1, got %d", f, unit.ExecutionCycles)
		}
	}

	return nil
}

// StationCapacity returns how many category-f instructions may be in
// flight at once, or 0 when the category is unconstrained.
func (c Config) StationCapacity(f insts.FunctionType) int {
	if !f.StationConstrained() {
		return 0
	}
	return c.Units[f].UnitCount * c.Units[f].StationsPerUnit
}

// executionTime resolves an instruction's execution latency: the
// configured fixed latency for ALU through DIVIDE, the memory hierarchy's
// reported latency for loads and stores, and 1 cycle for control flow.
func (c Config) executionTime(inst *insts.Instruction) uint64 {
	switch {
	case int(inst.Function) < insts.NumFixedLatency:
		return c.Units[inst.Function].ExecutionCycles
	case inst.Function.IsMemory():
		if inst.ExecutionTime > 0 {
			return inst.ExecutionTime
		}
		return 1
	default:
		return 1
	}
}
