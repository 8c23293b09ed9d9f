package cfg

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Successors returns the successor indices of block i in edge order.
func (g *Graph) Successors(i BlockIndex) []BlockIndex {
	return g.Blocks[i].Term.Succs()
}

// Predecessors returns, for every block, the blocks that branch to it.
// Each predecessor appears once per edge and lists are in block order.
func (g *Graph) Predecessors() [][]BlockIndex {
	preds := make([][]BlockIndex, len(g.Blocks))
	for i := range g.Blocks {
		for _, s := range g.Successors(BlockIndex(i)) {
			preds[s] = append(preds[s], BlockIndex(i))
		}
	}
	return preds
}

// Edges lists every terminator target in block order.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for i, b := range g.Blocks {
		from := BlockIndex(i)
		switch t := b.Term.(type) {
		case Jump:
			edges = append(edges, Edge{From: from, To: t.Target})
		case Branch:
			edges = append(edges, Edge{From: from, To: t.IfSo, Kind: "T"}, Edge{From: from, To: t.IfNot, Kind: "F"})
		case Fallthrough:
			edges = append(edges, Edge{From: from, To: t.Next})
		}
	}
	return edges
}

// Reachable marks the blocks reachable from the entry.
func (g *Graph) Reachable() []bool {
	seen := make([]bool, len(g.Blocks))
	if len(g.Blocks) == 0 {
		return seen
	}
	stack := []BlockIndex{g.Entry}
	seen[g.Entry] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.Successors(b) {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// NumInstrs counts instructions over all blocks, terminators excluded.
func (g *Graph) NumInstrs() int {
	n := 0
	for _, b := range g.Blocks {
		n += len(b.Instrs)
	}
	return n
}

// Validate checks that every index in the graph is in range and that
// fallthrough terminators name the next block.
func (g *Graph) Validate() error {
	var errs []error
	bad := func(block int, format string, args ...any) {
		errs = append(errs, &vir.StructuralError{Func: g.Name, Block: block, Index: -1, Msg: fmt.Sprintf(format, args...)})
	}
	n := BlockIndex(len(g.Blocks))
	if n == 0 {
		bad(-1, "graph has no blocks")
		return errors.Join(errs...)
	}
	if g.Entry < 0 || g.Entry >= n {
		bad(-1, "entry block %d out of range", g.Entry)
	}
	for i, b := range g.Blocks {
		if b.Index != BlockIndex(i) {
			bad(i, "block records index %d", b.Index)
		}
		if b.Term == nil {
			bad(i, "missing terminator")
			continue
		}
		for _, s := range b.Term.Succs() {
			if s < 0 || s >= n {
				bad(i, "successor %d out of range", s)
			}
		}
		if ft, ok := b.Term.(Fallthrough); ok && ft.Next != BlockIndex(i+1) {
			bad(i, "fallthrough to %d is not the next block", ft.Next)
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of the graph's block list and instructions.
func (g *Graph) Clone() *Graph {
	out := &Graph{Name: g.Name, Entry: g.Entry, Blocks: make([]Block, len(g.Blocks))}
	for i, b := range g.Blocks {
		nb := b
		nb.Instrs = make([]vir.Instruction, len(b.Instrs))
		for k, in := range b.Instrs {
			nb.Instrs[k] = in.Rewrite(func(op vir.Operand, _ bool) vir.Operand { return op })
		}
		out.Blocks[i] = nb
	}
	return out
}
