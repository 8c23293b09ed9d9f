// Package linearize lays out an allocated graph as Linear code.
// This involves ordering blocks and inserting explicit labels and branches.
// Also includes branch tunneling and label cleanup optimizations.
package linearize

import (
	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/linear"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Transform linearizes g and then runs tunneling and label cleanup.
func Transform(g *cfg.Graph) *linear.Function {
	fn := Linearize(g)
	Tunnel(fn)
	CleanupLabels(fn)
	return fn
}

// Linearize transforms a graph to Linear code.
// It orders blocks via reverse postorder from the entry, with unreachable
// blocks after all reachable ones, and adds explicit branches where needed.
func Linearize(g *cfg.Graph) *linear.Function {
	l := &linearizer{
		g:          g,
		blockToLbl: make(map[cfg.BlockIndex]linear.Label),
	}
	return l.linearize()
}

// linearizer holds state during linearization
type linearizer struct {
	g          *cfg.Graph
	order      []cfg.BlockIndex
	blockToLbl map[cfg.BlockIndex]linear.Label
}

func (l *linearizer) linearize() *linear.Function {
	result := linear.NewFunction(l.g.Name)
	if len(l.g.Blocks) == 0 {
		return result
	}

	l.computeOrder()
	l.assignLabels()
	for i, b := range l.order {
		l.emitBlock(result, b, i)
	}
	return result
}

// computeOrder computes the block layout: reverse postorder of the blocks
// reachable from the entry, then the rest in index order.
func (l *linearizer) computeOrder() {
	visited := make([]bool, len(l.g.Blocks))
	var postorder []cfg.BlockIndex

	var dfs func(b cfg.BlockIndex)
	dfs = func(b cfg.BlockIndex) {
		if visited[b] {
			return
		}
		visited[b] = true
		// Visit successors first
		for _, succ := range l.g.Successors(b) {
			dfs(succ)
		}
		postorder = append(postorder, b)
	}
	dfs(l.g.Entry)

	l.order = make([]cfg.BlockIndex, 0, len(l.g.Blocks))
	for i := len(postorder) - 1; i >= 0; i-- {
		l.order = append(l.order, postorder[i])
	}
	for i := range l.g.Blocks {
		if !visited[i] {
			l.order = append(l.order, cfg.BlockIndex(i))
		}
	}
}

// assignLabels numbers blocks in layout order, starting at 1
func (l *linearizer) assignLabels() {
	for i, b := range l.order {
		l.blockToLbl[b] = linear.Label(i + 1)
	}
}

func (l *linearizer) emitBlock(result *linear.Function, b cfg.BlockIndex, orderIdx int) {
	block := &l.g.Blocks[b]
	result.Append(linear.Llabel{Lbl: l.blockToLbl[b]})
	for _, in := range block.Instrs {
		if in.Op == vir.OpNop {
			continue
		}
		result.Append(linear.Lop{Instr: in})
	}
	l.emitTerminator(result, block.Term, orderIdx)
}

// emitTerminator emits code for a block terminator, optimizing fall-through
func (l *linearizer) emitTerminator(result *linear.Function, term cfg.Terminator, orderIdx int) {
	next := cfg.BlockIndex(-1)
	if orderIdx+1 < len(l.order) {
		next = l.order[orderIdx+1]
	}
	jumpTo := func(target cfg.BlockIndex) {
		if target != next {
			result.Append(linear.Lgoto{Target: l.blockToLbl[target]})
		}
	}

	switch t := term.(type) {
	case cfg.Jump:
		jumpTo(t.Target)
	case cfg.Fallthrough:
		jumpTo(t.Next)
	case cfg.Branch:
		switch {
		case t.IfNot == next:
			result.Append(linear.Lcond{Cond: t.Cond, IfSo: l.blockToLbl[t.IfSo]})
		case t.IfSo == next:
			// Negate so the taken arm falls through
			result.Append(linear.Lcond{Cond: t.Cond, Invert: true, IfSo: l.blockToLbl[t.IfNot]})
		default:
			result.Append(linear.Lcond{Cond: t.Cond, IfSo: l.blockToLbl[t.IfSo]})
			result.Append(linear.Lgoto{Target: l.blockToLbl[t.IfNot]})
		}
	case cfg.Return:
		result.Append(linear.Lreturn{Value: t.Value})
	}
}
