package sim

import (
	"fmt"

	"github.com/raymyers/ralph-bt/pkg/linear"
)

// RunLinear executes laid-out code from its first instruction until it
// returns. Branches record the same events as graph terminators do.
func (m *Machine) RunLinear(fn *linear.Function) (*Outcome, error) {
	limit := m.reset()
	labels := make(map[linear.Label]int)
	for pc, inst := range fn.Code {
		if l, ok := inst.(linear.Llabel); ok {
			labels[l.Lbl] = pc
		}
	}

	out := &Outcome{}
	pc := 0
	for pc < len(fn.Code) {
		inst := fn.Code[pc]
		pc++
		if _, ok := inst.(linear.Llabel); ok {
			continue
		}
		out.Steps++
		if out.Steps > limit {
			return nil, ErrStepLimit
		}
		var target linear.Label
		switch i := inst.(type) {
		case linear.Lop:
			if err := m.exec(i.Instr); err != nil {
				return nil, fmt.Errorf("%s: instr %d: %w", fn.Name, pc-1, err)
			}
		case linear.Lgoto:
			target = i.Target
		case linear.Lcond:
			v, err := m.read(i.Cond)
			if err != nil {
				return nil, fmt.Errorf("%s: instr %d: %w", fn.Name, pc-1, err)
			}
			m.record("br", v)
			if (v != 0) != i.Invert {
				target = i.IfSo
			}
		case linear.Lreturn:
			if i.Value != nil {
				v, err := m.read(i.Value)
				if err != nil {
					return nil, fmt.Errorf("%s: instr %d: %w", fn.Name, pc-1, err)
				}
				m.record("ret", v)
				out.Value, out.HasValue = v, true
			} else {
				m.record("ret")
			}
			out.Trace = m.trace
			return out, nil
		}
		if target.Valid() {
			next, ok := labels[target]
			if !ok {
				return nil, fmt.Errorf("%s: jump to undefined label L%d", fn.Name, target)
			}
			pc = next
		}
	}
	return nil, fmt.Errorf("%s: control ran past the last instruction", fn.Name)
}
