// Package insts provides the instruction trace model for O3Sim.
//
// The functional executor runs the program once and appends one Instruction
// record per dynamically executed instruction, in program order. The timing
// layers never re-execute anything: they only read these records. Each record
// carries the instruction's function category, its destination register (or
// NoRegister), the resolved effective address for memory and control-flow
// operations, and the raw operand list.
//
// Operand convention (fixed, used by every consumer):
//   - ALU-class and load instructions: Operands[0] is the destination
//     register, Operands[1..2] are the source registers.
//   - Store and jump instructions: Operands[0] is the register consumed.
//   - Branch instructions: Operands[0..1] are the compared registers,
//     Operands[2] is the signed offset immediate.
package insts

import "fmt"

// InstructionWidth is the size of one encoded instruction in bytes.
const InstructionWidth = 2

// NoRegister marks an instruction that writes no destination register.
const NoRegister = -1

// FunctionType is the closed set of instruction categories. The order is
// significant: the first NumStationConstrained categories index the
// scheduler's per-category reservation-station configuration.
type FunctionType int

// Function categories in configuration-table order.
const (
	FunctionALU FunctionType = iota
	FunctionAdd
	FunctionMultiply
	FunctionDivide
	FunctionLoad
	FunctionStore
	FunctionBranch
	FunctionJump
	FunctionJumpAndLink

	// NumFunctionTypes is the number of function categories.
	NumFunctionTypes = int(FunctionJumpAndLink) + 1

	// NumStationConstrained is the number of leading categories that are
	// bounded by reservation stations (FunctionALU through FunctionStore).
	NumStationConstrained = int(FunctionStore) + 1

	// NumFixedLatency is the number of leading categories with a configured
	// fixed execution latency (FunctionALU through FunctionDivide).
	NumFixedLatency = int(FunctionDivide) + 1
)

var functionNames = [NumFunctionTypes]string{
	"ALU", "ADD", "MULTIPLY", "DIVIDE", "LOAD", "STORE",
	"BRANCH", "JUMP", "JUMP_AND_LINK",
}

func (f FunctionType) String() string {
	if f < 0 || int(f) >= NumFunctionTypes {
		return "UNKNOWN"
	}
	return functionNames[f]
}

// ParseFunction maps a category name, as produced by String, back to its
// FunctionType.
func ParseFunction(name string) (FunctionType, error) {
	for i, n := range functionNames {
		if n == name {
			return FunctionType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown function category %q", name)
}

// IsMemory returns true for categories that access data memory.
func (f FunctionType) IsMemory() bool {
	return f == FunctionLoad || f == FunctionStore
}

// IsControlFlow returns true for branch and jump categories.
func (f FunctionType) IsControlFlow() bool {
	return f == FunctionBranch || f == FunctionJump || f == FunctionJumpAndLink
}

// WritesRegister returns true for categories that produce a register result.
// Stores, branches, and plain jumps do not; jump-and-link writes the link
// register.
func (f FunctionType) WritesRegister() bool {
	return f != FunctionStore && f != FunctionBranch && f != FunctionJump
}

// StationConstrained returns true for categories bounded by reservation
// stations in the scheduler configuration.
func (f FunctionType) StationConstrained() bool {
	return int(f) < NumStationConstrained
}

// OperandKind distinguishes register operands from immediates.
type OperandKind int

// Operand kinds.
const (
	OperandRegister OperandKind = iota
	OperandImmediate
)

// Operand is one entry of an instruction's raw operand list.
type Operand struct {
	Kind  OperandKind
	Value int
}

// Reg builds a register operand.
func Reg(n int) Operand {
	return Operand{Kind: OperandRegister, Value: n}
}

// Imm builds an immediate operand.
func Imm(v int) Operand {
	return Operand{Kind: OperandImmediate, Value: v}
}

// Instruction is one entry of the committed execution trace. Records are
// immutable once appended, except ExecutionTime, which is resolved lazily:
// the functional executor fills it for loads and stores (from the memory
// hierarchy's reported latency) and the scheduler resolves the rest from its
// configuration.
type Instruction struct {
	// Address is the instruction's location in memory.
	Address uint64

	// Operation is the assembly mnemonic, kept for presentation only.
	Operation string

	// Operands is the raw operand list, in the package-level convention.
	Operands []Operand

	// Function is the instruction's category.
	Function FunctionType

	// DestinationRegister is the register written, or NoRegister.
	DestinationRegister int

	// EffectiveAddress is the resolved data address for loads and stores,
	// and the resolved next program counter for branches and jumps.
	EffectiveAddress uint64

	// ExecutionTime is the execution latency in cycles. Zero means not yet
	// resolved.
	ExecutionTime uint64
}

// SourceRegisters returns the source registers of an ALU-class or load
// instruction (Operands[1..2], register entries only).
func (i *Instruction) SourceRegisters() []int {
	var srcs []int
	for n := 1; n <= 2 && n < len(i.Operands); n++ {
		if i.Operands[n].Kind == OperandRegister {
			srcs = append(srcs, i.Operands[n].Value)
		}
	}
	return srcs
}

// FirstRegisterOperand returns Operands[0] when it is a register, or
// NoRegister. Stores and jumps consume this register.
func (i *Instruction) FirstRegisterOperand() int {
	if len(i.Operands) > 0 && i.Operands[0].Kind == OperandRegister {
		return i.Operands[0].Value
	}
	return NoRegister
}

// ComparedRegisters returns the two registers a branch compares
// (Operands[0..1], register entries only).
func (i *Instruction) ComparedRegisters() []int {
	var regs []int
	for n := 0; n <= 1 && n < len(i.Operands); n++ {
		if i.Operands[n].Kind == OperandRegister {
			regs = append(regs, i.Operands[n].Value)
		}
	}
	return regs
}

// BranchOffset returns a branch's signed offset immediate (Operands[2]),
// or zero when absent.
func (i *Instruction) BranchOffset() int {
	if len(i.Operands) > 2 && i.Operands[2].Kind == OperandImmediate {
		return i.Operands[2].Value
	}
	return 0
}

// Taken reports whether a control-flow instruction left the sequential
// path: the recorded next address differs from Address+InstructionWidth.
func (i *Instruction) Taken() bool {
	return i.EffectiveAddress != i.Address+InstructionWidth
}

// PredictedTaken is the static prediction for a branch: taken iff the
// offset is negative (backward branches predict taken).
func (i *Instruction) PredictedTaken() bool {
	return i.BranchOffset() < 0
}
