package cfg

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/raymyers/ralph-bt/pkg/vir"
)

// loopGraph: b0 <A> branches to b1 <B> or b2 <C>; b1 jumps back to b0.
func loopGraph() *Graph {
	return &Graph{
		Name:  "f",
		Entry: 0,
		Blocks: []Block{
			{Index: 0, Label: "A", Instrs: []vir.Instruction{vir.Const(1, 1)}, Term: Branch{Cond: vir.VReg(1), IfSo: 1, IfNot: 2}},
			{Index: 1, Label: "B", Term: Jump{Target: 0}},
			{Index: 2, Label: "C", Term: Return{Value: vir.VReg(1)}},
		},
	}
}

func TestSuccessorsAndPredecessors(t *testing.T) {
	g := loopGraph()
	if s := g.Successors(0); len(s) != 2 || s[0] != 1 || s[1] != 2 {
		t.Errorf("Successors(0) = %v", s)
	}
	if s := g.Successors(2); len(s) != 0 {
		t.Errorf("Successors(2) = %v, want none", s)
	}
	preds := g.Predecessors()
	if len(preds[0]) != 1 || preds[0][0] != 1 {
		t.Errorf("preds[0] = %v, want [1]", preds[0])
	}
	if len(preds[2]) != 1 || preds[2][0] != 0 {
		t.Errorf("preds[2] = %v, want [0]", preds[2])
	}
}

func TestValidate(t *testing.T) {
	if err := loopGraph().Validate(); err != nil {
		t.Fatalf("valid graph rejected: %v", err)
	}

	g := loopGraph()
	g.Blocks[1].Term = Jump{Target: 7}
	err := g.Validate()
	var se *vir.StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
	if !strings.Contains(err.Error(), "successor 7 out of range") {
		t.Errorf("unexpected message: %v", err)
	}

	g = loopGraph()
	g.Blocks[0].Term = Fallthrough{Next: 2}
	if err := g.Validate(); err == nil {
		t.Error("fallthrough to a non-adjacent block should be rejected")
	}

	if err := (&Graph{Name: "empty"}).Validate(); err == nil {
		t.Error("empty graph should be rejected")
	}
}

func TestReachableAndPrune(t *testing.T) {
	g := &Graph{
		Name: "p",
		Blocks: []Block{
			{Index: 0, Term: Jump{Target: 2}},
			{Index: 1, Label: "dead", Term: Return{}},
			{Index: 2, Term: Fallthrough{Next: 3}},
			{Index: 3, Term: Return{}},
		},
	}
	live := g.Reachable()
	if !live[0] || live[1] || !live[2] || !live[3] {
		t.Fatalf("Reachable() = %v", live)
	}

	p := PruneUnreachable(g)
	if len(p.Blocks) != 3 {
		t.Fatalf("pruned graph has %d blocks, want 3", len(p.Blocks))
	}
	if j, ok := p.Blocks[0].Term.(Jump); !ok || j.Target != 1 {
		t.Errorf("block 0 terminator = %#v, want Jump{1}", p.Blocks[0].Term)
	}
	if ft, ok := p.Blocks[1].Term.(Fallthrough); !ok || ft.Next != 2 {
		t.Errorf("block 1 terminator = %#v, want Fallthrough{2}", p.Blocks[1].Term)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("pruned graph invalid: %v", err)
	}
	if len(g.Blocks) != 4 {
		t.Error("PruneUnreachable modified its input")
	}
}

func TestExportText(t *testing.T) {
	got, err := ExportString(loopGraph(), FormatText)
	if err != nil {
		t.Fatal(err)
	}
	want := `graph f entry=0
node 0 A
node 1 B
node 2 C
edge 0 -> 1 T
edge 0 -> 2 F
edge 1 -> 0
`
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestExportDeterministic(t *testing.T) {
	g := loopGraph()
	for _, f := range []Format{FormatText, FormatDot} {
		first, err := ExportString(g, f)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			again, _ := ExportString(g, f)
			if again != first {
				t.Fatalf("%v export differs between runs", f)
			}
		}
	}
}

func TestExportDot(t *testing.T) {
	got, err := ExportString(loopGraph(), FormatDot)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`digraph "f" {`,
		`b0 [label="b0 A", penwidth=2];`,
		`b2 [label="b2 C", peripheries=2];`,
		`b0 -> b1 [label="T"];`,
		`b1 -> b0;`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dot output missing %q:\n%s", want, got)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("DOT"); err != nil || f != FormatDot {
		t.Errorf("ParseFormat(DOT) = %v, %v", f, err)
	}
	if _, err := ParseFormat("svg"); err == nil {
		t.Error("svg should not parse")
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	g := loopGraph()
	g.Blocks[1].Instrs = []vir.Instruction{{Op: vir.OpReload, Dest: vir.PReg(0), Args: []vir.Operand{vir.Slot(0)}}}
	NewPrinter(&buf).WithRegisterNames([]string{"RAX"}).PrintGraph(g)
	out := buf.String()
	for _, want := range []string{
		"func f entry=b0 {",
		"b0 <A>:",
		"  v1 = const 1",
		"  br v1, b1, b2",
		"  RAX = reload s0",
		"  jmp b0",
		"  ret v1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := loopGraph()
	c := g.Clone()
	c.Blocks[0].Instrs[0].Args[0] = vir.Imm{Value: 99}
	if g.Blocks[0].Instrs[0].Args[0].(vir.Imm).Value != 1 {
		t.Error("Clone shares instruction operands")
	}
}
