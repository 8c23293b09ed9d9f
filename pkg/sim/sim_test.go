package sim

import (
	"errors"
	"testing"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/cfggen"
	"github.com/raymyers/ralph-bt/pkg/resolve"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

func build(t *testing.T, u *vir.Unit) *cfg.Graph {
	t.Helper()
	g, err := resolve.Resolve(cfggen.BuildUnit(u))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return g
}

// sumTo computes 1+2+...+n with a loop that keeps its counter and
// accumulator in guest memory at 0 and 8.
func sumTo(n int64) *vir.Unit {
	return &vir.Unit{Name: "sum", Stmts: []vir.Stmt{
		vir.Const(1, n),
		vir.Effect(vir.OpStore, vir.Imm{Value: 0}, vir.VReg(1)),
		vir.Const(2, 0),
		vir.Effect(vir.OpStore, vir.Imm{Value: 8}, vir.VReg(2)),
		vir.Labeled{Name: "loop"},
		vir.Op(vir.OpLoad, 3, vir.Imm{Value: 0}),
		vir.Op(vir.OpLoad, 4, vir.Imm{Value: 8}),
		vir.Op(vir.OpAdd, 5, vir.VReg(4), vir.VReg(3)),
		vir.Effect(vir.OpStore, vir.Imm{Value: 8}, vir.VReg(5)),
		vir.Op(vir.OpSub, 6, vir.VReg(3), vir.Imm{Value: 1}),
		vir.Effect(vir.OpStore, vir.Imm{Value: 0}, vir.VReg(6)),
		vir.Branch{Cond: vir.VReg(6), IfSo: "loop", IfNot: "done"},
		vir.Labeled{Name: "done"},
		vir.Op(vir.OpLoad, 7, vir.Imm{Value: 8}),
		vir.Return{Value: vir.VReg(7)},
	}}
}

func TestRunArithmetic(t *testing.T) {
	u := &vir.Unit{Name: "arith", Stmts: []vir.Stmt{
		vir.Const(1, 6),
		vir.Const(2, 7),
		vir.Op(vir.OpMul, 3, vir.VReg(1), vir.VReg(2)),
		vir.Op(vir.OpShl, 4, vir.VReg(3), vir.Imm{Value: 1}),
		vir.Op(vir.OpCmpLt, 5, vir.VReg(1), vir.VReg(2)),
		vir.Op(vir.OpAdd, 6, vir.VReg(4), vir.VReg(5)),
		vir.Effect(vir.OpStore, vir.Imm{Value: 64}, vir.VReg(6)),
		vir.Op(vir.OpLoad, 7, vir.Imm{Value: 64}),
		vir.Return{Value: vir.VReg(7)},
	}}
	m := New()
	out, err := m.Run(build(t, u))
	if err != nil {
		t.Fatal(err)
	}
	if !out.HasValue || out.Value != 85 {
		t.Errorf("result = %d, want 85", out.Value)
	}
	if m.Memory[64] != 85 {
		t.Errorf("memory[64] = %d", m.Memory[64])
	}
}

func TestRunLoopTrace(t *testing.T) {
	out, err := New().Run(build(t, sumTo(3)))
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 6 {
		t.Errorf("sum = %d, want 6", out.Value)
	}
	// 4 setup events, 3 iterations of 7, final load and ret
	if len(out.Trace) != 4+3*7+2 {
		t.Errorf("trace has %d events", len(out.Trace))
	}
	if last := out.Trace[len(out.Trace)-1]; last.String() != "ret[6]" {
		t.Errorf("last event = %v", last)
	}
}

func TestRunStepLimit(t *testing.T) {
	u := &vir.Unit{Name: "spin", Stmts: []vir.Stmt{
		vir.Labeled{Name: "top"},
		vir.Jump{Target: "top"},
	}}
	m := New()
	m.MaxSteps = 100
	if _, err := m.Run(build(t, u)); !errors.Is(err, ErrStepLimit) {
		t.Errorf("err = %v, want ErrStepLimit", err)
	}
}

func TestRunUnwritten(t *testing.T) {
	g := &cfg.Graph{Name: "bad", Blocks: []cfg.Block{{Term: cfg.Return{Value: vir.VReg(9)}}}}
	if _, err := New().Run(g); !errors.Is(err, ErrUnwritten) {
		t.Errorf("err = %v, want ErrUnwritten", err)
	}
}

type fakeIrq struct {
	raised, rescinded, acked []uint32
	ticks                    []int64
}

func (f *fakeIrq) Raise(l uint32) error       { f.raised = append(f.raised, l); return nil }
func (f *fakeIrq) Rescind(l uint32) error     { f.rescinded = append(f.rescinded, l); return nil }
func (f *fakeIrq) Acknowledge(l uint32) error { f.acked = append(f.acked, l); return nil }
func (f *fakeIrq) Tick(e int64) error         { f.ticks = append(f.ticks, e); return nil }

type tickOnly struct {
	elapsed []int64
	err     error
}

func (t *tickOnly) Tick(e int64) error {
	t.elapsed = append(t.elapsed, e)
	return t.err
}

func TestTrapDispatch(t *testing.T) {
	u := &vir.Unit{Name: "irq", Stmts: []vir.Stmt{
		vir.Const(1, 5),
		vir.Effect(vir.OpTrap, vir.Imm{Value: 1}, vir.Imm{Value: TrapRaise}, vir.VReg(1)),
		vir.Effect(vir.OpTrap, vir.Imm{Value: 1}, vir.Imm{Value: TrapAcknowledge}, vir.VReg(1)),
		vir.Effect(vir.OpTrap, vir.Imm{Value: 1}, vir.Imm{Value: TrapRescind}, vir.Imm{Value: 2}),
		vir.Effect(vir.OpTrap, vir.Imm{Value: 2}, vir.Imm{Value: TrapTick}, vir.Imm{Value: 0}),
		vir.Const(2, 7),
		vir.Effect(vir.OpTrap, vir.Imm{Value: 2}, vir.Imm{Value: TrapTick}, vir.VReg(2)),
		vir.Effect(vir.OpTrap, vir.Imm{Value: 1}, vir.Imm{Value: TrapTick}, vir.Imm{Value: 250}),
		vir.Return{},
	}}
	irq := &fakeIrq{}
	tick := &tickOnly{}
	m := New()
	m.Handles[1] = irq
	m.Handles[2] = tick
	if _, err := m.Run(build(t, u)); err != nil {
		t.Fatal(err)
	}
	if len(irq.raised) != 1 || irq.raised[0] != 5 {
		t.Errorf("raised = %v", irq.raised)
	}
	if len(irq.acked) != 1 || len(irq.rescinded) != 1 || irq.rescinded[0] != 2 {
		t.Errorf("acked = %v, rescinded = %v", irq.acked, irq.rescinded)
	}
	if len(tick.elapsed) != 2 || tick.elapsed[0] != 0 || tick.elapsed[1] != 7 {
		t.Errorf("elapsed = %v, want [0 7]", tick.elapsed)
	}
	if len(irq.ticks) != 1 || irq.ticks[0] != 250 {
		t.Errorf("controller ticks = %v, want [250]", irq.ticks)
	}
}

func TestTrapErrors(t *testing.T) {
	trap := func(handle, method int64) *vir.Unit {
		return &vir.Unit{Name: "t", Stmts: []vir.Stmt{
			vir.Effect(vir.OpTrap, vir.Imm{Value: handle}, vir.Imm{Value: method}, vir.Imm{Value: 0}),
		}}
	}
	m := New()
	m.Handles[1] = &tickOnly{}
	if _, err := m.Run(build(t, trap(9, TrapTick))); !errors.Is(err, ErrBadHandle) {
		t.Errorf("unknown handle: %v", err)
	}
	if _, err := m.Run(build(t, trap(1, TrapRaise))); !errors.Is(err, ErrCapability) {
		t.Errorf("missing capability: %v", err)
	}
}

func TestTrapTickError(t *testing.T) {
	stalled := errors.New("timer stalled")
	u := &vir.Unit{Name: "t", Stmts: []vir.Stmt{
		vir.Effect(vir.OpTrap, vir.Imm{Value: 1}, vir.Imm{Value: TrapTick}, vir.Imm{Value: 3}),
	}}
	m := New()
	m.Handles[1] = &tickOnly{err: stalled}
	if _, err := m.Run(build(t, u)); !errors.Is(err, stalled) {
		t.Errorf("err = %v, want the device error", err)
	}
}

func TestTrapLineRange(t *testing.T) {
	tests := []struct {
		name string
		line int64
		ok   bool
	}{
		{"zero", 0, true},
		{"largest", 4294967295, true},
		{"negative", -1, false},
		{"too large", 4294967301, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &vir.Unit{Name: "t", Stmts: []vir.Stmt{
				vir.Effect(vir.OpTrap, vir.Imm{Value: 1}, vir.Imm{Value: TrapRaise}, vir.Imm{Value: tt.line}),
			}}
			irq := &fakeIrq{}
			m := New()
			m.Handles[1] = irq
			_, err := m.Run(build(t, u))
			if tt.ok {
				if err != nil {
					t.Fatal(err)
				}
				if len(irq.raised) != 1 || int64(irq.raised[0]) != tt.line {
					t.Errorf("raised = %v, want [%d]", irq.raised, tt.line)
				}
				return
			}
			if !errors.Is(err, ErrBadOperand) {
				t.Errorf("err = %v, want ErrBadOperand", err)
			}
			if len(irq.raised) != 0 {
				t.Errorf("raised = %v, want none", irq.raised)
			}
		})
	}
}

func TestEquivalent(t *testing.T) {
	a := build(t, sumTo(4))
	b := build(t, sumTo(4))
	if err := Equivalent(a, b, nil); err != nil {
		t.Errorf("identical graphs differ: %v", err)
	}
	c := build(t, sumTo(5))
	if err := Equivalent(a, c, nil); err == nil {
		t.Error("different graphs reported equivalent")
	}
}
