// Package regalloc maps the virtual registers of a resolved graph onto a
// bounded physical register file, spilling to frame slots when the budget
// is exceeded.
package regalloc

import (
	"sort"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// RegSet is a set of virtual registers
type RegSet map[vir.VReg]bool

// NewRegSet creates an empty register set
func NewRegSet() RegSet {
	return make(RegSet)
}

// Add inserts r
func (s RegSet) Add(r vir.VReg) {
	s[r] = true
}

// Remove deletes r
func (s RegSet) Remove(r vir.VReg) {
	delete(s, r)
}

// Contains reports whether r is in the set
func (s RegSet) Contains(r vir.VReg) bool {
	return s[r]
}

// Union returns s ∪ other
func (s RegSet) Union(other RegSet) RegSet {
	out := s.Copy()
	for r := range other {
		out[r] = true
	}
	return out
}

// Minus returns s \ other
func (s RegSet) Minus(other RegSet) RegSet {
	out := NewRegSet()
	for r := range s {
		if !other[r] {
			out[r] = true
		}
	}
	return out
}

// Equal reports whether both sets hold the same registers
func (s RegSet) Equal(other RegSet) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if !other[r] {
			return false
		}
	}
	return true
}

// Copy returns an independent copy
func (s RegSet) Copy() RegSet {
	out := make(RegSet, len(s))
	for r := range s {
		out[r] = true
	}
	return out
}

// Slice returns the registers in ascending order
func (s RegSet) Slice() []vir.VReg {
	out := make([]vir.VReg, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LivenessInfo holds per-block dataflow facts, indexed by block.
// Use is the set of registers read before any write in the block;
// Def is the set written in the block.
type LivenessInfo struct {
	Def     []RegSet
	Use     []RegSet
	LiveIn  []RegSet
	LiveOut []RegSet
}

// ComputeDefUse computes the upward-exposed uses and the definitions of
// every block. Terminator operands count as uses at the end of the block.
func ComputeDefUse(g *cfg.Graph) (def, use []RegSet) {
	def = make([]RegSet, len(g.Blocks))
	use = make([]RegSet, len(g.Blocks))
	for i, b := range g.Blocks {
		d, u := NewRegSet(), NewRegSet()
		for _, in := range b.Instrs {
			for _, r := range in.Uses() {
				if !d.Contains(r) {
					u.Add(r)
				}
			}
			if r, ok := in.Def(); ok {
				d.Add(r)
			}
		}
		for _, r := range cfg.TermUses(b.Term) {
			if !d.Contains(r) {
				u.Add(r)
			}
		}
		def[i], use[i] = d, u
	}
	return def, use
}

// AnalyzeLiveness solves
//
//	LiveOut[b] = ∪ LiveIn[s] for s in succ(b)
//	LiveIn[b]  = Use[b] ∪ (LiveOut[b] \ Def[b])
//
// by iterating to a fixed point over the whole graph. Blocks are visited
// in reverse index order, which converges quickly for forward-laid code.
func AnalyzeLiveness(g *cfg.Graph) *LivenessInfo {
	def, use := ComputeDefUse(g)
	n := len(g.Blocks)
	info := &LivenessInfo{
		Def:     def,
		Use:     use,
		LiveIn:  make([]RegSet, n),
		LiveOut: make([]RegSet, n),
	}
	for i := 0; i < n; i++ {
		info.LiveIn[i] = NewRegSet()
		info.LiveOut[i] = NewRegSet()
	}

	changed := true
	for changed {
		changed = false
		for i := n - 1; i >= 0; i-- {
			out := NewRegSet()
			for _, s := range g.Successors(cfg.BlockIndex(i)) {
				for r := range info.LiveIn[s] {
					out.Add(r)
				}
			}
			in := use[i].Union(out.Minus(def[i]))
			if !in.Equal(info.LiveIn[i]) || !out.Equal(info.LiveOut[i]) {
				info.LiveIn[i] = in
				info.LiveOut[i] = out
				changed = true
			}
		}
	}
	return info
}
