package regalloc

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// checkInput rejects graphs the allocator cannot handle: malformed
// instructions, physical operands, registers defined more than once or
// never, and registers that may be read before being written. Every
// problem found is reported.
func checkInput(g *cfg.Graph) (*LivenessInfo, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	var errs []error
	bad := func(block, index int, format string, args ...any) {
		errs = append(errs, &vir.StructuralError{Func: g.Name, Block: block, Index: index, Msg: fmt.Sprintf(format, args...)})
	}
	virtualOnly := func(block, index int, op vir.Operand) {
		switch op.(type) {
		case vir.PReg, vir.Slot:
			bad(block, index, "physical operand %s in virtual code", op)
		}
	}

	defined := make(map[vir.VReg]bool)
	used := make(map[vir.VReg][2]int)
	var usedOrder []vir.VReg
	noteUse := func(r vir.VReg, block, index int) {
		if _, ok := used[r]; !ok {
			used[r] = [2]int{block, index}
			usedOrder = append(usedOrder, r)
		}
	}

	for bi, b := range g.Blocks {
		for ii, in := range b.Instrs {
			if in.Op == vir.OpSpill || in.Op == vir.OpReload {
				bad(bi, ii, "%s is reserved for the allocator", in.Op)
				continue
			}
			if err := in.Validate(); err != nil {
				bad(bi, ii, "%v", err)
				continue
			}
			virtualOnly(bi, ii, in.Dest)
			for _, a := range in.Args {
				virtualOnly(bi, ii, a)
			}
			for _, r := range in.Uses() {
				noteUse(r, bi, ii)
			}
			if r, ok := in.Def(); ok {
				if defined[r] {
					bad(bi, ii, "%s defined more than once", r)
				}
				defined[r] = true
			}
		}
		var termOp vir.Operand
		switch t := b.Term.(type) {
		case cfg.Branch:
			termOp = t.Cond
			if termOp == nil {
				bad(bi, -1, "branch without condition")
			}
		case cfg.Return:
			termOp = t.Value
		}
		if termOp != nil {
			virtualOnly(bi, -1, termOp)
			if r, ok := termOp.(vir.VReg); ok {
				if r <= 0 {
					bad(bi, -1, "invalid register %s", r)
				}
				noteUse(r, bi, -1)
			}
		}
	}
	for _, r := range usedOrder {
		if !defined[r] {
			at := used[r]
			bad(at[0], at[1], "%s used but never defined", r)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	live := AnalyzeLiveness(g)
	for _, r := range live.LiveIn[g.Entry].Slice() {
		bad(int(g.Entry), -1, "%s may be read before it is written", r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return live, nil
}
