package regalloc

import (
	"math"
	"sort"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Program points. Instructions and terminators are numbered in block-index
// order; position p reads its operands at subpoint 2p and writes its
// result at 2p+1, so a register read by an instruction can share a
// physical register with that instruction's result.
func useAt(p int) int { return 2 * p }
func defAt(p int) int { return 2*p + 1 }

// numbering maps blocks to positions.
type numbering struct {
	first []int // position of each block's first instruction (its terminator when empty)
	term  []int // position of each block's terminator
	total int
}

func numberGraph(g *cfg.Graph) *numbering {
	n := &numbering{first: make([]int, len(g.Blocks)), term: make([]int, len(g.Blocks))}
	p := 0
	for i, b := range g.Blocks {
		n.first[i] = p
		p += len(b.Instrs)
		n.term[i] = p
		p++
	}
	n.total = p
	return n
}

func (n *numbering) blockStart(b int) int { return useAt(n.first[b]) }
func (n *numbering) blockEnd(b int) int   { return defAt(n.term[b]) }

// LiveRange is the lifetime of one virtual register as a single interval of
// subpoints. Gaps are not tracked; the interval covers every point where
// the register may be live.
type LiveRange struct {
	Reg   vir.VReg
	Start int
	End   int
	Def   int   // subpoint of the single definition
	Uses  []int // ascending use subpoints, one per reading position
}

// NextUse returns the first use at or after q, or math.MaxInt when the
// register is not read again in layout order.
func (r *LiveRange) NextUse(q int) int {
	i := sort.SearchInts(r.Uses, q)
	if i < len(r.Uses) {
		return r.Uses[i]
	}
	return math.MaxInt
}

// Covers reports whether q lies inside the range.
func (r *LiveRange) Covers(q int) bool {
	return r.Start <= q && q <= r.End
}

// buildRanges computes one range per defined register, ordered by start
// and then register number.
func buildRanges(g *cfg.Graph, live *LivenessInfo, num *numbering) []*LiveRange {
	byReg := make(map[vir.VReg]*LiveRange)
	get := func(r vir.VReg) *LiveRange {
		lr, ok := byReg[r]
		if !ok {
			lr = &LiveRange{Reg: r, Start: math.MaxInt, End: -1}
			byReg[r] = lr
		}
		return lr
	}
	extend := func(lr *LiveRange, q int) {
		if q < lr.Start {
			lr.Start = q
		}
		if q > lr.End {
			lr.End = q
		}
	}
	addUse := func(r vir.VReg, q int) {
		lr := get(r)
		if n := len(lr.Uses); n == 0 || lr.Uses[n-1] != q {
			lr.Uses = append(lr.Uses, q)
		}
		extend(lr, q)
	}

	for bi, b := range g.Blocks {
		for k, in := range b.Instrs {
			p := num.first[bi] + k
			for _, r := range in.Uses() {
				addUse(r, useAt(p))
			}
			if r, ok := in.Def(); ok {
				lr := get(r)
				lr.Def = defAt(p)
				extend(lr, defAt(p))
			}
		}
		for _, r := range cfg.TermUses(b.Term) {
			addUse(r, useAt(num.term[bi]))
		}
		for r := range live.LiveIn[bi] {
			extend(get(r), num.blockStart(bi))
		}
		for r := range live.LiveOut[bi] {
			extend(get(r), num.blockEnd(bi))
		}
	}

	ranges := make([]*LiveRange, 0, len(byReg))
	for _, lr := range byReg {
		sort.Ints(lr.Uses)
		ranges = append(ranges, lr)
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].Reg < ranges[j].Reg
	})
	return ranges
}
