// Package vir defines the virtual-register instruction IR consumed by the backend.
// Instructions are three-address operations over an unbounded supply of virtual
// registers. A compilation unit is a flat statement stream in which labels and
// control-transfer statements delimit the future basic blocks.
package vir

import "fmt"

// VReg is a virtual register (positive integer, unbounded supply)
type VReg int

// PReg is a physical register, an index into the target register file
type PReg int

// Slot is a spill slot in the frame of the function being allocated
type Slot int

// Label names a position in a statement stream
type Label string

// Operand is anything an instruction can read or write.
type Operand interface {
	implOperand()
	String() string
}

// Imm is an immediate constant
type Imm struct {
	Value int64
}

func (Imm) implOperand()  {}
func (VReg) implOperand() {}
func (PReg) implOperand() {}
func (Slot) implOperand() {}

func (i Imm) String() string  { return fmt.Sprintf("%d", i.Value) }
func (r VReg) String() string { return fmt.Sprintf("v%d", int(r)) }
func (r PReg) String() string { return fmt.Sprintf("r%d", int(r)) }
func (s Slot) String() string { return fmt.Sprintf("s%d", int(s)) }

// Instruction is a single operation with at most one destination.
// Every VReg in Args is a use; a VReg in Dest is the definition.
type Instruction struct {
	Op   Opcode
	Dest Operand // nil when the opcode produces no value
	Args []Operand
}

// Def returns the virtual register defined by the instruction, if any.
func (i Instruction) Def() (VReg, bool) {
	r, ok := i.Dest.(VReg)
	return r, ok
}

// Uses returns the virtual registers read by the instruction, in operand order.
// A register read twice appears twice.
func (i Instruction) Uses() []VReg {
	var uses []VReg
	for _, a := range i.Args {
		if r, ok := a.(VReg); ok {
			uses = append(uses, r)
		}
	}
	return uses
}

// Rewrite returns a copy of the instruction with every operand passed through f.
// Dest is rewritten too; f receives isDef=true for it.
func (i Instruction) Rewrite(f func(op Operand, isDef bool) Operand) Instruction {
	out := Instruction{Op: i.Op}
	if i.Dest != nil {
		out.Dest = f(i.Dest, true)
	}
	if len(i.Args) > 0 {
		out.Args = make([]Operand, len(i.Args))
		for k, a := range i.Args {
			out.Args[k] = f(a, false)
		}
	}
	return out
}

// Stmt is an element of a unit's statement stream
type Stmt interface {
	implStmt()
}

// Labeled marks the start of a block reachable by name
type Labeled struct {
	Name Label
}

// Jump transfers control unconditionally
type Jump struct {
	Target Label
}

// Branch transfers control to IfSo when Cond is non-zero, IfNot otherwise
type Branch struct {
	Cond  Operand
	IfSo  Label
	IfNot Label
}

// Return leaves the unit; Value is nil for a bare return
type Return struct {
	Value Operand
}

func (Instruction) implStmt() {}
func (Labeled) implStmt()     {}
func (Jump) implStmt()        {}
func (Branch) implStmt()      {}
func (Return) implStmt()      {}

// Unit is one independently compiled guest function
type Unit struct {
	Name  string
	Stmts []Stmt
}

// Convenience constructors used by hand-built streams and tests.

// Op builds an instruction with a destination.
func Op(op Opcode, dest VReg, args ...Operand) Instruction {
	return Instruction{Op: op, Dest: dest, Args: args}
}

// Effect builds an instruction without a destination.
func Effect(op Opcode, args ...Operand) Instruction {
	return Instruction{Op: op, Args: args}
}

// Const builds "dest = const value".
func Const(dest VReg, value int64) Instruction {
	return Instruction{Op: OpConst, Dest: dest, Args: []Operand{Imm{Value: value}}}
}
