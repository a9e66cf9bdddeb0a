package insts

// Trace is the committed execution trace: one record per dynamically
// executed instruction, in program order, including repeated entries for
// loop iterations. The functional executor appends; the scheduler reads.
type Trace struct {
	records []*Instruction
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	return &Trace{}
}

// Record appends one executed instruction and returns the record, so the
// executor can resolve its ExecutionTime once the memory access latency is
// known.
func (t *Trace) Record(
	address uint64,
	operation string,
	operands []Operand,
	function FunctionType,
	destination int,
	effectiveAddress uint64,
) *Instruction {
	inst := &Instruction{
		Address:             address,
		Operation:           operation,
		Operands:            operands,
		Function:            function,
		DestinationRegister: destination,
		EffectiveAddress:    effectiveAddress,
	}
	t.records = append(t.records, inst)
	return inst
}

// Instructions returns the trace in program order. The slice is shared;
// callers must not reorder it.
func (t *Trace) Instructions() []*Instruction {
	return t.records
}

// Len returns the number of recorded instructions.
func (t *Trace) Len() int {
	return len(t.records)
}

// Reset discards all records.
func (t *Trace) Reset() {
	t.records = nil
}
