package regalloc

import (
	"math"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// assignment is the allocator's decision for one range. A range holds reg
// from its start until spillAt; from spillAt on, its value lives in slot
// and every read goes through a momentary register.
type assignment struct {
	lr      *LiveRange
	reg     vir.PReg
	hasReg  bool
	spillAt int // math.MaxInt when never displaced
	spilled bool
	slot    vir.Slot
}

// inRegAt reports whether the value is register-resident at subpoint q.
func (a *assignment) inRegAt(q int) bool {
	return a.hasReg && q < a.spillAt
}

// edgeReload restores a displaced value on a backward edge.
type edgeReload struct {
	reg  vir.PReg
	slot vir.Slot
}

type edgeKey struct {
	from, to cfg.BlockIndex
}

// scanner runs linear scan over the ranges of one graph.
type scanner struct {
	g      *cfg.Graph
	live   *LivenessInfo
	num    *numbering
	ranges []*LiveRange
	policy Policy

	assign map[vir.VReg]*assignment
	free   []vir.PReg    // LIFO: the most recently vacated register is reused first
	active []*assignment // register-resident ranges in activation order
	temps  []vir.PReg    // momentary registers held at the current subpoint

	useTemps map[int]map[vir.VReg]vir.PReg // position -> register -> momentary register
	defTemps map[int]vir.PReg              // position -> momentary register for the result
	edges    map[edgeKey][]edgeReload

	nextSlot    int
	maxPressure int
}

func newScanner(g *cfg.Graph, live *LivenessInfo, num *numbering, ranges []*LiveRange, budget int, policy Policy) *scanner {
	s := &scanner{
		g:        g,
		live:     live,
		num:      num,
		ranges:   ranges,
		policy:   policy,
		assign:   make(map[vir.VReg]*assignment, len(ranges)),
		useTemps: make(map[int]map[vir.VReg]vir.PReg),
		defTemps: make(map[int]vir.PReg),
		edges:    make(map[edgeKey][]edgeReload),
	}
	for _, lr := range ranges {
		s.assign[lr.Reg] = &assignment{lr: lr, spillAt: math.MaxInt}
	}
	for r := budget - 1; r >= 0; r-- {
		s.free = append(s.free, vir.PReg(r))
	}
	return s
}

// positionUses returns the distinct registers read at position p, in
// operand order, along with the register written there, if any.
func (s *scanner) positionUses(p int) (uses []vir.VReg, def vir.VReg, hasDef bool) {
	bi, k := s.locate(p)
	b := &s.g.Blocks[bi]
	var raw []vir.VReg
	if k < len(b.Instrs) {
		raw = b.Instrs[k].Uses()
		def, hasDef = b.Instrs[k].Def()
	} else {
		raw = cfg.TermUses(b.Term)
	}
	return distinct(raw), def, hasDef
}

// locate maps a position back to (block, instruction index); the index
// equals len(Instrs) for the terminator.
func (s *scanner) locate(p int) (int, int) {
	lo, hi := 0, len(s.num.first)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.num.first[mid] <= p {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, p - s.num.first[lo]
}

func distinct(rs []vir.VReg) []vir.VReg {
	var out []vir.VReg
	for _, r := range rs {
		dup := false
		for _, o := range out {
			if o == r {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}

// run walks every subpoint once, in layout order.
func (s *scanner) run() {
	next := 0
	for p := 0; p < s.num.total; p++ {
		uses, def, hasDef := s.positionUses(p)

		// Read subpoint: values live into a block start here, then operands.
		q := useAt(p)
		s.releaseTemps()
		s.expire(q)
		pinned := make(map[vir.VReg]bool, len(uses))
		for _, r := range uses {
			pinned[r] = true
		}
		for next < len(s.ranges) && s.ranges[next].Start == q {
			s.allocate(s.assign[s.ranges[next].Reg], q, pinned, true)
			next++
		}
		for _, r := range uses {
			a := s.assign[r]
			if a.inRegAt(q) {
				continue
			}
			t := s.takeRegister(q, pinned)
			if s.useTemps[p] == nil {
				s.useTemps[p] = make(map[vir.VReg]vir.PReg)
			}
			s.useTemps[p][r] = t
			s.temps = append(s.temps, t)
		}
		s.notePressure()

		// Write subpoint: operands that die here have already been released.
		q = defAt(p)
		s.releaseTemps()
		s.expire(q)
		for next < len(s.ranges) && s.ranges[next].Start == q {
			s.allocate(s.assign[s.ranges[next].Reg], q, nil, false)
			next++
		}
		if hasDef {
			if a := s.assign[def]; !a.inRegAt(q) {
				t := s.takeRegister(q, nil)
				s.defTemps[p] = t
				s.temps = append(s.temps, t)
			}
		}
		s.notePressure()
	}
	s.releaseTemps()
	s.placeEdgeReloads()
}

func (s *scanner) notePressure() {
	if n := len(s.active) + len(s.temps); n > s.maxPressure {
		s.maxPressure = n
	}
}

func (s *scanner) releaseTemps() {
	s.free = append(s.free, s.temps...)
	s.temps = s.temps[:0]
}

// expire frees the registers of ranges that ended before q.
func (s *scanner) expire(q int) {
	kept := s.active[:0]
	for _, a := range s.active {
		if a.lr.End < q {
			s.free = append(s.free, a.reg)
		} else {
			kept = append(kept, a)
		}
	}
	s.active = kept
}

// candidates lists the active ranges that may be displaced at q.
func (s *scanner) candidates(q int, pinned map[vir.VReg]bool) ([]Candidate, []*assignment) {
	var cs []Candidate
	var as []*assignment
	for _, a := range s.active {
		if pinned[a.lr.Reg] {
			continue
		}
		cs = append(cs, Candidate{Reg: a.lr.Reg, NextUse: a.lr.NextUse(q), Start: a.lr.Start, End: a.lr.End})
		as = append(as, a)
	}
	return cs, as
}

// allocate gives a starting range a register, displacing another range if
// none is free. With allowSelf the starting range may itself be chosen, in
// which case it begins life in its slot.
func (s *scanner) allocate(a *assignment, q int, pinned map[vir.VReg]bool, allowSelf bool) {
	if len(s.free) > 0 {
		s.grant(a, s.pop())
		return
	}
	cs, as := s.candidates(q, pinned)
	if allowSelf {
		cs = append(cs, Candidate{Reg: a.lr.Reg, NextUse: a.lr.NextUse(q), Start: a.lr.Start, End: a.lr.End})
		as = append(as, a)
	}
	victim := as[s.policy.Victim(q, cs)]
	if victim == a {
		a.spillAt = q
		s.markSpilled(a)
		return
	}
	s.grant(a, s.evict(victim, q))
}

// takeRegister finds a momentary register for subpoint q.
func (s *scanner) takeRegister(q int, pinned map[vir.VReg]bool) vir.PReg {
	if len(s.free) > 0 {
		return s.pop()
	}
	cs, as := s.candidates(q, pinned)
	return s.evict(as[s.policy.Victim(q, cs)], q)
}

func (s *scanner) pop() vir.PReg {
	r := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	return r
}

func (s *scanner) grant(a *assignment, r vir.PReg) {
	a.reg = r
	a.hasReg = true
	s.active = append(s.active, a)
}

// evict moves a range to its slot from q on and returns its register.
func (s *scanner) evict(a *assignment, q int) vir.PReg {
	a.spillAt = q
	s.markSpilled(a)
	for i, o := range s.active {
		if o == a {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}
	return a.reg
}

func (s *scanner) markSpilled(a *assignment) {
	if !a.spilled {
		a.spilled = true
		a.slot = vir.Slot(s.nextSlot)
		s.nextSlot++
	}
}

// placeEdgeReloads handles backward edges into a block that expects a value
// in its register when the value was displaced before the edge's source.
// Forward edges never need this: a range is register-resident on a prefix
// of the layout.
func (s *scanner) placeEdgeReloads() {
	for bi := range s.g.Blocks {
		from := cfg.BlockIndex(bi)
		end := s.num.blockEnd(bi)
		seen := make(map[cfg.BlockIndex]bool)
		for _, to := range s.g.Successors(from) {
			if seen[to] {
				continue
			}
			seen[to] = true
			start := s.num.blockStart(int(to))
			if start > end {
				continue
			}
			for _, r := range s.live.LiveIn[to].Slice() {
				a := s.assign[r]
				if a.inRegAt(start) && !a.inRegAt(end) {
					k := edgeKey{from, to}
					s.edges[k] = append(s.edges[k], edgeReload{reg: a.reg, slot: a.slot})
				}
			}
		}
	}
}
