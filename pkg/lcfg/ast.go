// Package lcfg defines the labelled control-flow graph: the unresolved form
// produced by block building. Terminators name their targets symbolically, so
// a graph may refer to labels that are defined later or not at all.
package lcfg

import "github.com/raymyers/ralph-bt/pkg/vir"

// Label re-exported from vir
type Label = vir.Label

// BlockIndex is a position in the graph's block list
type BlockIndex int

// Terminator ends a block
type Terminator interface {
	implTerminator()
	// Targets lists the symbolic successors, in edge order.
	Targets() []Label
}

// Jump to a label
type Jump struct {
	Target Label
}

// Branch on Cond != 0
type Branch struct {
	Cond  vir.Operand
	IfSo  Label
	IfNot Label
}

// Return from the unit
type Return struct {
	Value vir.Operand // nil for a bare return
}

// Fallthrough into the next block in stream order
type Fallthrough struct{}

func (Jump) implTerminator()        {}
func (Branch) implTerminator()      {}
func (Return) implTerminator()      {}
func (Fallthrough) implTerminator() {}

func (t Jump) Targets() []Label      { return []Label{t.Target} }
func (t Branch) Targets() []Label    { return []Label{t.IfSo, t.IfNot} }
func (Return) Targets() []Label      { return nil }
func (Fallthrough) Targets() []Label { return nil }

// Block is a maximal straight-line run of instructions
type Block struct {
	Index  BlockIndex
	Label  Label // empty when the block was not started by a label
	Instrs []vir.Instruction
	Term   Terminator
}

// Graph is an unresolved function body. Blocks are append-only; a block's
// index is its position and never changes.
type Graph struct {
	Name   string
	Blocks []Block
	Entry  BlockIndex
}

// LabelMap records where each label was defined. A label defined more than
// once keeps its first definition and is listed by Duplicates.
type LabelMap struct {
	index map[Label]BlockIndex
	dups  []Label
}

// NewLabelMap creates an empty label map
func NewLabelMap() *LabelMap {
	return &LabelMap{index: make(map[Label]BlockIndex)}
}

// Define binds l to block b. It reports false if l was already bound.
func (m *LabelMap) Define(l Label, b BlockIndex) bool {
	if _, ok := m.index[l]; ok {
		m.dups = append(m.dups, l)
		return false
	}
	m.index[l] = b
	return true
}

// Lookup returns the block a label was bound to
func (m *LabelMap) Lookup(l Label) (BlockIndex, bool) {
	b, ok := m.index[l]
	return b, ok
}

// Duplicates returns the labels that were defined more than once, in the
// order their extra definitions occurred.
func (m *LabelMap) Duplicates() []Label {
	return m.dups
}

// Len returns the number of distinct labels
func (m *LabelMap) Len() int {
	return len(m.index)
}
