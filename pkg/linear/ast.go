// Package linear defines the Linear form of an allocated function: blocks
// laid out in sequence with explicit labels and branches (no CFG).
// Fallthrough between consecutive instructions is implicit.
package linear

import "github.com/raymyers/ralph-bt/pkg/vir"

// Label represents a branch target in linearized code.
// Labels are positive integers, with 0 indicating no label.
type Label int

// Valid returns true if this is a valid label (positive)
func (l Label) Valid() bool {
	return l > 0
}

// --- Linear Instructions ---

// Instruction is the interface for Linear instructions
type Instruction interface {
	implLinearInstruction()
}

// Lop is one allocated instruction, spill and reload included.
type Lop struct {
	Instr vir.Instruction
}

// Llabel marks a branch target
type Llabel struct {
	Lbl Label
}

// Lgoto is an unconditional jump
type Lgoto struct {
	Target Label
}

// Lcond jumps to IfSo when Cond is nonzero, or when it is zero if Invert
// is set. Otherwise control falls through.
type Lcond struct {
	Cond   vir.Operand
	Invert bool
	IfSo   Label
}

// Lreturn returns from the function; Value is nil for a void return.
type Lreturn struct {
	Value vir.Operand
}

// Marker methods for Instruction interface
func (Lop) implLinearInstruction()     {}
func (Llabel) implLinearInstruction()  {}
func (Lgoto) implLinearInstruction()   {}
func (Lcond) implLinearInstruction()   {}
func (Lreturn) implLinearInstruction() {}

// Function represents a Linear function
type Function struct {
	Name string
	Code []Instruction
}

// NewFunction creates a new Linear function
func NewFunction(name string) *Function {
	return &Function{
		Name: name,
		Code: make([]Instruction, 0),
	}
}

// Append adds an instruction to the function's code
func (f *Function) Append(inst Instruction) {
	f.Code = append(f.Code, inst)
}

// Labels returns all labels defined in the code
func (f *Function) Labels() []Label {
	seen := make(map[Label]bool)
	var labels []Label
	for _, inst := range f.Code {
		if i, ok := inst.(Llabel); ok && !seen[i.Lbl] {
			seen[i.Lbl] = true
			labels = append(labels, i.Lbl)
		}
	}
	return labels
}

// ReferencedLabels returns all labels that are targets of jumps
func (f *Function) ReferencedLabels() []Label {
	seen := make(map[Label]bool)
	var labels []Label
	add := func(l Label) {
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	for _, inst := range f.Code {
		switch i := inst.(type) {
		case Lgoto:
			add(i.Target)
		case Lcond:
			add(i.IfSo)
		}
	}
	return labels
}

// Slots returns the number of spill slots the code addresses: one more
// than the highest slot index it mentions.
func (f *Function) Slots() int {
	n := 0
	note := func(op vir.Operand) {
		if s, ok := op.(vir.Slot); ok && int(s)+1 > n {
			n = int(s) + 1
		}
	}
	for _, inst := range f.Code {
		if i, ok := inst.(Lop); ok {
			note(i.Instr.Dest)
			for _, a := range i.Instr.Args {
				note(a)
			}
		}
	}
	return n
}
