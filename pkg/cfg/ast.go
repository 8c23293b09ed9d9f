// Package cfg defines the resolved control-flow graph. Every terminator
// target is a block index; labels survive only as block annotations.
// The same representation carries virtual-register code before allocation
// and physical-register code after it.
package cfg

import (
	"github.com/raymyers/ralph-bt/pkg/lcfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Re-exported from lcfg
type (
	Label      = lcfg.Label
	BlockIndex = lcfg.BlockIndex
)

// Terminator ends a resolved block
type Terminator interface {
	implResolved()
	// Succs lists the successor indices in edge order.
	Succs() []BlockIndex
}

// Jump to a block
type Jump struct {
	Target BlockIndex
}

// Branch on Cond != 0
type Branch struct {
	Cond  vir.Operand
	IfSo  BlockIndex
	IfNot BlockIndex
}

// Return from the function
type Return struct {
	Value vir.Operand // nil for a bare return
}

// Fallthrough into the block that follows in index order
type Fallthrough struct {
	Next BlockIndex
}

func (Jump) implResolved()        {}
func (Branch) implResolved()      {}
func (Return) implResolved()      {}
func (Fallthrough) implResolved() {}

func (t Jump) Succs() []BlockIndex        { return []BlockIndex{t.Target} }
func (t Branch) Succs() []BlockIndex      { return []BlockIndex{t.IfSo, t.IfNot} }
func (Return) Succs() []BlockIndex        { return nil }
func (t Fallthrough) Succs() []BlockIndex { return []BlockIndex{t.Next} }

// Block is a basic block with a resolved terminator
type Block struct {
	Index  BlockIndex
	Label  Label
	Instrs []vir.Instruction
	Term   Terminator
}

// Graph is a resolved function body
type Graph struct {
	Name   string
	Blocks []Block
	Entry  BlockIndex
}

// Edge is one terminator target. Kind is "T"/"F" for branch arms, "" otherwise.
type Edge struct {
	From BlockIndex
	To   BlockIndex
	Kind string
}

// TermUses returns the virtual registers read by a terminator.
func TermUses(t Terminator) []vir.VReg {
	var op vir.Operand
	switch t := t.(type) {
	case Branch:
		op = t.Cond
	case Return:
		op = t.Value
	}
	if r, ok := op.(vir.VReg); ok {
		return []vir.VReg{r}
	}
	return nil
}
