package regalloc

import (
	"fmt"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/target"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Result holds an allocated function and the decisions behind it
type Result struct {
	// Graph is the input graph with every virtual register replaced by a
	// physical one, plus spill and reload instructions and edge blocks.
	Graph *cfg.Graph
	// Locations maps each virtual register to its home: a vir.PReg, or the
	// vir.Slot it was spilled to.
	Locations map[vir.VReg]vir.Operand
	// Spilled is the set of registers that were displaced at some point
	Spilled RegSet
	Ranges  []*LiveRange

	Target      *target.Target
	Policy      string
	NumSlots    int
	Stores      int
	Reloads     int
	MaxPressure int // most registers in use at any subpoint
}

// Option configures Allocate
type Option func(*options)

type options struct {
	policy Policy
}

// WithPolicy replaces the default furthest-next-use victim choice.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		if p != nil {
			o.policy = p
		}
	}
}

// Allocate assigns every virtual register of g to one of t's registers or
// to a spill slot. The input is not modified. Malformed input fails with
// *vir.StructuralError values; a budget the function cannot fit fails with
// *target.ConfigError.
func Allocate(g *cfg.Graph, t *target.Target, opts ...Option) (*Result, error) {
	o := options{policy: FurthestNextUse{}}
	for _, opt := range opts {
		opt(&o)
	}
	if err := t.CheckBudget(); err != nil {
		return nil, err
	}
	live, err := checkInput(g)
	if err != nil {
		return nil, err
	}
	num := numberGraph(g)
	if err := checkDemand(g, t); err != nil {
		return nil, err
	}

	ranges := buildRanges(g, live, num)
	s := newScanner(g, live, num, ranges, t.Budget(), o.policy)
	s.run()
	if err := t.CheckSlots(s.nextSlot); err != nil {
		return nil, err
	}

	out, stores, reloads := rewrite(s)
	res := &Result{
		Graph:       out,
		Locations:   make(map[vir.VReg]vir.Operand, len(ranges)),
		Spilled:     NewRegSet(),
		Ranges:      ranges,
		Target:      t,
		Policy:      o.policy.Name(),
		NumSlots:    s.nextSlot,
		Stores:      stores,
		Reloads:     reloads,
		MaxPressure: s.maxPressure,
	}
	for r, a := range s.assign {
		if a.spilled {
			res.Locations[r] = a.slot
			res.Spilled.Add(r)
		} else {
			res.Locations[r] = a.reg
		}
	}
	if err := Verify(res); err != nil {
		return nil, fmt.Errorf("regalloc: internal error: %w", err)
	}
	return res, nil
}

// checkDemand rejects instructions that read more distinct registers than
// the budget holds.
func checkDemand(g *cfg.Graph, t *target.Target) error {
	k := t.Budget()
	for bi, b := range g.Blocks {
		for ii, in := range b.Instrs {
			if n := len(distinct(in.Uses())); n > k {
				return &target.ConfigError{
					Target: t.Name,
					Detail: fmt.Sprintf("%s: block %d, instr %d reads %d registers, budget is %d", g.Name, bi, ii, n, k),
					Err:    target.ErrInsufficientRegisters,
				}
			}
		}
	}
	return nil
}

// Verify checks an allocation result: no virtual registers remain, physical
// registers are within budget, slots are within the slot count, and register
// pressure never exceeded the budget.
func Verify(res *Result) error {
	k := res.Target.Budget()
	if res.MaxPressure > k {
		return fmt.Errorf("pressure %d exceeds budget %d", res.MaxPressure, k)
	}
	check := func(bi int, op vir.Operand) error {
		switch op := op.(type) {
		case vir.VReg:
			return fmt.Errorf("block %d: virtual register %s survived allocation", bi, op)
		case vir.PReg:
			if int(op) < 0 || int(op) >= k {
				return fmt.Errorf("block %d: register %s outside budget %d", bi, op, k)
			}
		case vir.Slot:
			if int(op) < 0 || int(op) >= res.NumSlots {
				return fmt.Errorf("block %d: slot %s outside %d slots", bi, op, res.NumSlots)
			}
		}
		return nil
	}
	for bi, b := range res.Graph.Blocks {
		for _, in := range b.Instrs {
			if in.Dest != nil {
				if err := check(bi, in.Dest); err != nil {
					return err
				}
			}
			for _, a := range in.Args {
				if err := check(bi, a); err != nil {
					return err
				}
			}
		}
		switch t := b.Term.(type) {
		case cfg.Branch:
			if err := check(bi, t.Cond); err != nil {
				return err
			}
		case cfg.Return:
			if t.Value != nil {
				if err := check(bi, t.Value); err != nil {
					return err
				}
			}
		}
	}
	return res.Graph.Validate()
}
