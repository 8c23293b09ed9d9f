// Package cfggen splits an instruction stream into basic blocks.
// The builder accepts labels before or after the branches that name them;
// targets stay symbolic until the resolver runs.
package cfggen

import (
	"github.com/raymyers/ralph-bt/pkg/lcfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Builder constructs an unresolved control-flow graph one statement at a time.
// A block starts at the first statement of the stream, at a label, or at the
// first statement after a terminator; it is created lazily so that a label
// directly following a terminator yields a single block.
type Builder struct {
	graph  *lcfg.Graph
	labels *lcfg.LabelMap
	open   bool // the last block in graph.Blocks still accepts instructions
}

// NewBuilder creates a builder for the named function
func NewBuilder(name string) *Builder {
	return &Builder{
		graph:  &lcfg.Graph{Name: name},
		labels: lcfg.NewLabelMap(),
	}
}

// startBlock appends a fresh block and makes it current.
func (b *Builder) startBlock(label lcfg.Label) *lcfg.Block {
	idx := lcfg.BlockIndex(len(b.graph.Blocks))
	b.graph.Blocks = append(b.graph.Blocks, lcfg.Block{Index: idx, Label: label})
	b.open = true
	return &b.graph.Blocks[idx]
}

// current returns the open block, starting an unlabelled one if needed.
func (b *Builder) current() *lcfg.Block {
	if !b.open {
		return b.startBlock("")
	}
	return &b.graph.Blocks[len(b.graph.Blocks)-1]
}

// close ends the current block with t.
func (b *Builder) close(t lcfg.Terminator) {
	b.current().Term = t
	b.open = false
}

// Label starts a new block named l; an open block falls through into it.
func (b *Builder) Label(l lcfg.Label) {
	if b.open {
		b.close(lcfg.Fallthrough{})
	}
	blk := b.startBlock(l)
	b.labels.Define(l, blk.Index)
}

// Emit appends an instruction to the current block.
func (b *Builder) Emit(instr vir.Instruction) {
	cur := b.current()
	cur.Instrs = append(cur.Instrs, instr)
}

// Jump ends the current block with an unconditional transfer.
func (b *Builder) Jump(target lcfg.Label) {
	b.close(lcfg.Jump{Target: target})
}

// Branch ends the current block with a two-way transfer.
func (b *Builder) Branch(cond vir.Operand, ifso, ifnot lcfg.Label) {
	b.close(lcfg.Branch{Cond: cond, IfSo: ifso, IfNot: ifnot})
}

// Return ends the current block by leaving the function.
func (b *Builder) Return(value vir.Operand) {
	b.close(lcfg.Return{Value: value})
}

// Finish closes any open block with an implicit return and hands over the
// graph. An empty stream produces one empty entry block that returns.
// The builder must not be used afterwards.
func (b *Builder) Finish() (*lcfg.Graph, *lcfg.LabelMap) {
	if b.open || len(b.graph.Blocks) == 0 {
		b.close(lcfg.Return{})
	}
	g, labels := b.graph, b.labels
	b.graph, b.labels = nil, nil
	return g, labels
}

// BuildUnit runs a builder over a unit's statement stream.
func BuildUnit(u *vir.Unit) (*lcfg.Graph, *lcfg.LabelMap) {
	b := NewBuilder(u.Name)
	for _, s := range u.Stmts {
		switch s := s.(type) {
		case vir.Instruction:
			b.Emit(s)
		case vir.Labeled:
			b.Label(s.Name)
		case vir.Jump:
			b.Jump(s.Target)
		case vir.Branch:
			b.Branch(s.Cond, s.IfSo, s.IfNot)
		case vir.Return:
			b.Return(s.Value)
		}
	}
	return b.Finish()
}
