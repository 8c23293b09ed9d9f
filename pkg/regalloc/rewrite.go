package regalloc

import (
	"strconv"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

func spillInstr(slot vir.Slot, r vir.PReg) vir.Instruction {
	return vir.Instruction{Op: vir.OpSpill, Dest: slot, Args: []vir.Operand{r}}
}

func reloadInstr(r vir.PReg, slot vir.Slot) vir.Instruction {
	return vir.Instruction{Op: vir.OpReload, Dest: r, Args: []vir.Operand{slot}}
}

// rewriter produces the physical-register graph from a finished scan.
type rewriter struct {
	s       *scanner
	out     *cfg.Graph
	split   map[edgeKey]cfg.BlockIndex
	stores  int
	reloads int
}

// rewrite replaces every virtual register by its location. Original blocks
// keep their indices; blocks that split branch edges are appended after them.
func rewrite(s *scanner) (*cfg.Graph, int, int) {
	w := &rewriter{
		s:     s,
		out:   &cfg.Graph{Name: s.g.Name, Entry: s.g.Entry},
		split: make(map[edgeKey]cfg.BlockIndex),
	}
	w.out.Blocks = make([]cfg.Block, len(s.g.Blocks))
	for bi := range s.g.Blocks {
		w.rewriteBlock(bi)
	}
	return w.out, w.stores, w.reloads
}

// location maps a virtual operand at position p to its physical register.
func (w *rewriter) location(p int, op vir.Operand, isDef bool) vir.Operand {
	r, ok := op.(vir.VReg)
	if !ok {
		return op
	}
	if isDef {
		if t, ok := w.s.defTemps[p]; ok {
			return t
		}
	} else if t, ok := w.s.useTemps[p][r]; ok {
		return t
	}
	return w.s.assign[r].reg
}

// reloadUses emits the reloads feeding the momentary registers at p, in
// operand order.
func (w *rewriter) reloadUses(p int, uses []vir.VReg, into []vir.Instruction) []vir.Instruction {
	for _, r := range distinct(uses) {
		if t, ok := w.s.useTemps[p][r]; ok {
			into = append(into, reloadInstr(t, w.s.assign[r].slot))
			w.reloads++
		}
	}
	return into
}

func (w *rewriter) edgeReloads(from, to cfg.BlockIndex, into []vir.Instruction) []vir.Instruction {
	for _, e := range w.s.edges[edgeKey{from, to}] {
		into = append(into, reloadInstr(e.reg, e.slot))
		w.reloads++
	}
	return into
}

func (w *rewriter) rewriteBlock(bi int) {
	b := &w.s.g.Blocks[bi]
	from := cfg.BlockIndex(bi)
	var instrs []vir.Instruction
	for k, in := range b.Instrs {
		p := w.s.num.first[bi] + k
		instrs = w.reloadUses(p, in.Uses(), instrs)
		instrs = append(instrs, in.Rewrite(func(op vir.Operand, isDef bool) vir.Operand {
			return w.location(p, op, isDef)
		}))
		if d, ok := in.Def(); ok {
			if a := w.s.assign[d]; a.spilled {
				instrs = append(instrs, spillInstr(a.slot, w.location(p, d, true).(vir.PReg)))
				w.stores++
			}
		}
	}

	p := w.s.num.term[bi]
	instrs = w.reloadUses(p, cfg.TermUses(b.Term), instrs)
	operand := func(op vir.Operand) vir.Operand {
		if op == nil {
			return nil
		}
		return w.location(p, op, false)
	}

	var term cfg.Terminator
	switch t := b.Term.(type) {
	case cfg.Jump:
		instrs = w.edgeReloads(from, t.Target, instrs)
		term = t
	case cfg.Branch:
		term = cfg.Branch{
			Cond:  operand(t.Cond),
			IfSo:  w.splitEdge(from, t.IfSo),
			IfNot: w.splitEdge(from, t.IfNot),
		}
	case cfg.Return:
		term = cfg.Return{Value: operand(t.Value)}
	default:
		term = t
	}
	w.out.Blocks[bi] = cfg.Block{Index: from, Label: b.Label, Instrs: instrs, Term: term}
}

// splitEdge returns the block a branch arm should target: to itself, or a
// new block holding the edge's reloads followed by a jump to it. Both arms
// of a branch to the same block share one split block.
func (w *rewriter) splitEdge(from, to cfg.BlockIndex) cfg.BlockIndex {
	k := edgeKey{from, to}
	if len(w.s.edges[k]) == 0 {
		return to
	}
	if idx, ok := w.split[k]; ok {
		return idx
	}
	idx := cfg.BlockIndex(len(w.out.Blocks))
	w.out.Blocks = append(w.out.Blocks, cfg.Block{
		Index:  idx,
		Label:  cfg.Label("edge." + strconv.Itoa(int(from)) + "." + strconv.Itoa(int(to))),
		Instrs: w.edgeReloads(from, to, nil),
		Term:   cfg.Jump{Target: to},
	})
	w.split[k] = idx
	return idx
}
