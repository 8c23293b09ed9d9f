// Package sim executes resolved graphs, before or after register allocation,
// and laid-out Linear code, so that any two can be compared read for read.
package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/linear"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Trap methods: the second operand of a trap instruction.
const (
	TrapRaise = iota
	TrapRescind
	TrapAcknowledge
	TrapTick
)

// IrqController is the interrupt-line capability a trap handle may expose.
type IrqController interface {
	Raise(line uint32) error
	Rescind(line uint32) error
	Acknowledge(line uint32) error
}

// Tickable is the timer capability a trap handle may expose. Tick receives
// the elapsed time carried by the trap's third operand.
type Tickable interface {
	Tick(elapsed int64) error
}

// Run failures
var (
	ErrStepLimit  = errors.New("step limit exceeded")
	ErrUnwritten  = errors.New("read of an unwritten location")
	ErrBadHandle  = errors.New("trap on unknown handle")
	ErrCapability = errors.New("handle lacks the requested capability")
	ErrBadOperand = errors.New("operand not valid here")
)

// Event records the operand values an instruction or terminator read.
// Nop, spill and reload instructions are not recorded.
type Event struct {
	Op     string
	Values []int64
}

func (e Event) String() string {
	return fmt.Sprintf("%s%v", e.Op, e.Values)
}

// Outcome is the result of one run
type Outcome struct {
	Value    int64
	HasValue bool
	Steps    int
	Trace    []Event
}

// Machine holds guest state shared across runs: memory and trap handles.
type Machine struct {
	Memory   map[int64]int64
	Handles  map[int64]any
	MaxSteps int // 0 means 1,000,000

	vregs map[vir.VReg]int64
	regs  map[vir.PReg]int64
	slots map[vir.Slot]int64
	trace []Event
}

// New creates a machine with empty memory and no handles
func New() *Machine {
	return &Machine{Memory: make(map[int64]int64), Handles: make(map[int64]any)}
}

// Run executes g from its entry until it returns.
func (m *Machine) Run(g *cfg.Graph) (*Outcome, error) {
	limit := m.reset()
	out := &Outcome{}
	b := g.Entry
	for {
		blk := &g.Blocks[b]
		for k, in := range blk.Instrs {
			out.Steps++
			if out.Steps > limit {
				return nil, ErrStepLimit
			}
			if err := m.exec(in); err != nil {
				return nil, fmt.Errorf("%s: block %d, instr %d: %w", g.Name, b, k, err)
			}
		}
		out.Steps++
		if out.Steps > limit {
			return nil, ErrStepLimit
		}
		switch t := blk.Term.(type) {
		case cfg.Jump:
			b = t.Target
		case cfg.Fallthrough:
			b = t.Next
		case cfg.Branch:
			v, err := m.read(t.Cond)
			if err != nil {
				return nil, fmt.Errorf("%s: block %d: %w", g.Name, b, err)
			}
			m.record("br", v)
			if v != 0 {
				b = t.IfSo
			} else {
				b = t.IfNot
			}
		case cfg.Return:
			if t.Value != nil {
				v, err := m.read(t.Value)
				if err != nil {
					return nil, fmt.Errorf("%s: block %d: %w", g.Name, b, err)
				}
				m.record("ret", v)
				out.Value, out.HasValue = v, true
			} else {
				m.record("ret")
			}
			out.Trace = m.trace
			return out, nil
		default:
			return nil, fmt.Errorf("%s: block %d: no terminator", g.Name, b)
		}
	}
}

// reset clears per-run state and returns the step limit.
func (m *Machine) reset() int {
	m.vregs = make(map[vir.VReg]int64)
	m.regs = make(map[vir.PReg]int64)
	m.slots = make(map[vir.Slot]int64)
	m.trace = nil
	if m.MaxSteps == 0 {
		return 1_000_000
	}
	return m.MaxSteps
}

func (m *Machine) record(op string, values ...int64) {
	m.trace = append(m.trace, Event{Op: op, Values: values})
}

func (m *Machine) read(op vir.Operand) (int64, error) {
	switch op := op.(type) {
	case vir.Imm:
		return op.Value, nil
	case vir.VReg:
		v, ok := m.vregs[op]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnwritten, op)
		}
		return v, nil
	case vir.PReg:
		v, ok := m.regs[op]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnwritten, op)
		}
		return v, nil
	case vir.Slot:
		v, ok := m.slots[op]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnwritten, op)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrBadOperand, op)
}

func (m *Machine) write(op vir.Operand, v int64) error {
	switch op := op.(type) {
	case vir.VReg:
		m.vregs[op] = v
	case vir.PReg:
		m.regs[op] = v
	case vir.Slot:
		m.slots[op] = v
	default:
		return fmt.Errorf("%w: cannot write %v", ErrBadOperand, op)
	}
	return nil
}

// exec reads every operand before writing the result, so a destination may
// share a register with a source.
func (m *Machine) exec(in vir.Instruction) error {
	args := make([]int64, len(in.Args))
	for i, a := range in.Args {
		v, err := m.read(a)
		if err != nil {
			return err
		}
		args[i] = v
	}
	switch in.Op {
	case vir.OpNop, vir.OpSpill, vir.OpReload:
	default:
		m.record(in.Op.String(), args...)
	}

	var result int64
	switch in.Op {
	case vir.OpNop:
		return nil
	case vir.OpConst, vir.OpMove, vir.OpSpill, vir.OpReload:
		result = args[0]
	case vir.OpAdd:
		result = args[0] + args[1]
	case vir.OpSub:
		result = args[0] - args[1]
	case vir.OpMul:
		result = args[0] * args[1]
	case vir.OpAnd:
		result = args[0] & args[1]
	case vir.OpOr:
		result = args[0] | args[1]
	case vir.OpXor:
		result = args[0] ^ args[1]
	case vir.OpShl:
		result = args[0] << (uint64(args[1]) & 63)
	case vir.OpShr:
		result = args[0] >> (uint64(args[1]) & 63)
	case vir.OpCmpEq:
		result = boolInt(args[0] == args[1])
	case vir.OpCmpNe:
		result = boolInt(args[0] != args[1])
	case vir.OpCmpLt:
		result = boolInt(args[0] < args[1])
	case vir.OpCmpLe:
		result = boolInt(args[0] <= args[1])
	case vir.OpLoad:
		result = m.Memory[args[0]]
	case vir.OpStore:
		m.Memory[args[0]] = args[1]
		return nil
	case vir.OpTrap:
		return m.trap(args[0], args[1], args[2])
	default:
		return fmt.Errorf("opcode %s has no semantics", in.Op)
	}
	return m.write(in.Dest, result)
}

func (m *Machine) trap(handle, method, arg int64) error {
	h, ok := m.Handles[handle]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBadHandle, handle)
	}
	switch method {
	case TrapRaise, TrapRescind, TrapAcknowledge:
		irq, ok := h.(IrqController)
		if !ok {
			return fmt.Errorf("%w: handle %d is not an interrupt controller", ErrCapability, handle)
		}
		if arg < 0 || arg > math.MaxUint32 {
			return fmt.Errorf("%w: interrupt line %d", ErrBadOperand, arg)
		}
		line := uint32(arg)
		switch method {
		case TrapRaise:
			return irq.Raise(line)
		case TrapRescind:
			return irq.Rescind(line)
		default:
			return irq.Acknowledge(line)
		}
	case TrapTick:
		t, ok := h.(Tickable)
		if !ok {
			return fmt.Errorf("%w: handle %d is not tickable", ErrCapability, handle)
		}
		return t.Tick(arg)
	}
	return fmt.Errorf("unknown trap method %d", method)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Equivalent runs a and b on fresh machines prepared by setup and reports
// the first point where their traces or results differ.
func Equivalent(a, b *cfg.Graph, setup func(*Machine)) error {
	oa, err := prepare(setup).Run(a)
	if err != nil {
		return fmt.Errorf("first graph: %w", err)
	}
	ob, err := prepare(setup).Run(b)
	if err != nil {
		return fmt.Errorf("second graph: %w", err)
	}
	return compare(oa, ob)
}

// EquivalentLinear is Equivalent for a graph and its laid-out code.
func EquivalentLinear(g *cfg.Graph, fn *linear.Function, setup func(*Machine)) error {
	og, err := prepare(setup).Run(g)
	if err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	ol, err := prepare(setup).RunLinear(fn)
	if err != nil {
		return fmt.Errorf("linear code: %w", err)
	}
	return compare(og, ol)
}

func prepare(setup func(*Machine)) *Machine {
	m := New()
	if setup != nil {
		setup(m)
	}
	return m
}

func compare(oa, ob *Outcome) error {
	n := min(len(oa.Trace), len(ob.Trace))
	for i := 0; i < n; i++ {
		if oa.Trace[i].String() != ob.Trace[i].String() {
			return fmt.Errorf("event %d differs: %v vs %v", i, oa.Trace[i], ob.Trace[i])
		}
	}
	if len(oa.Trace) != len(ob.Trace) {
		return fmt.Errorf("trace lengths differ: %d vs %d", len(oa.Trace), len(ob.Trace))
	}
	if oa.HasValue != ob.HasValue || oa.Value != ob.Value {
		return fmt.Errorf("results differ: %d vs %d", oa.Value, ob.Value)
	}
	return nil
}
