package resolve

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/cfggen"
	"github.com/raymyers/ralph-bt/pkg/lcfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

func TestResolveLoop(t *testing.T) {
	b := cfggen.NewBuilder("f")
	b.Label("A")
	b.Emit(vir.Const(1, 1))
	b.Branch(vir.VReg(1), "B", "C")
	b.Label("B")
	b.Jump("A")
	b.Label("C")
	b.Return(nil)
	g, err := Resolve(b.Finish())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	br, ok := g.Blocks[0].Term.(cfg.Branch)
	if !ok || br.IfSo != 1 || br.IfNot != 2 {
		t.Errorf("block 0 terminator = %#v", g.Blocks[0].Term)
	}
	if j, ok := g.Blocks[1].Term.(cfg.Jump); !ok || j.Target != 0 {
		t.Errorf("block 1 terminator = %#v", g.Blocks[1].Term)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("resolved graph invalid: %v", err)
	}
}

func TestResolveForwardReference(t *testing.T) {
	// A jumps ahead to B. C is finished before B branches back to A and to C.
	// D is never targeted.
	b := cfggen.NewBuilder("f")
	b.Label("A")
	b.Jump("B")
	b.Label("C")
	b.Return(nil)
	b.Label("B")
	b.Emit(vir.Const(1, 1))
	b.Branch(vir.VReg(1), "A", "C")
	b.Label("D")
	b.Jump("C")
	g, err := Resolve(b.Finish())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(g.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(g.Blocks))
	}

	wantEdges := []cfg.Edge{
		{From: 0, To: 2},
		{From: 2, To: 0, Kind: "T"},
		{From: 2, To: 1, Kind: "F"},
		{From: 3, To: 1},
	}
	if got := g.Edges(); !reflect.DeepEqual(got, wantEdges) {
		t.Errorf("edges = %v, want %v", got, wantEdges)
	}
	if succs := g.Successors(1); len(succs) != 0 {
		t.Errorf("C has successors %v, want none", succs)
	}

	wantPreds := [][]cfg.BlockIndex{{2}, {2, 3}, {0}, nil}
	preds := g.Predecessors()
	for i, want := range wantPreds {
		if len(preds[i]) != len(want) || (len(want) > 0 && !reflect.DeepEqual(preds[i], want)) {
			t.Errorf("predecessors of block %d = %v, want %v", i, preds[i], want)
		}
	}
	if reach := g.Reachable(); reach[3] {
		t.Error("D should be unreachable")
	}
}

func TestResolveReportsAllMissingLabels(t *testing.T) {
	b := cfggen.NewBuilder("f")
	b.Branch(vir.Imm{Value: 1}, "zeta", "alpha")
	b.Label("mid")
	b.Jump("zeta")
	b.Label("end")
	b.Jump("beta")
	_, err := Resolve(b.Finish())
	if err == nil {
		t.Fatal("expected an error")
	}

	var ue *UnresolvedLabelError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnresolvedLabelError, got %v", err)
	}
	want := []lcfg.Label{"alpha", "beta", "zeta"}
	if len(ue.Labels) != len(want) {
		t.Fatalf("Labels = %v, want %v", ue.Labels, want)
	}
	for i := range want {
		if ue.Labels[i] != want[i] {
			t.Errorf("Labels[%d] = %s, want %s", i, ue.Labels[i], want[i])
		}
	}
	if refs := ue.Refs["zeta"]; len(refs) != 2 || refs[0] != 0 || refs[1] != 1 {
		t.Errorf("Refs[zeta] = %v, want [0 1]", refs)
	}
	if !strings.Contains(err.Error(), "undefined labels: alpha, beta, zeta") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestResolveDuplicateLabels(t *testing.T) {
	b := cfggen.NewBuilder("f")
	b.Label("L")
	b.Jump("L")
	b.Label("L")
	b.Jump("gone")
	g, err := Resolve(b.Finish())
	if g != nil {
		t.Error("no graph should be returned on failure")
	}
	var de *DuplicateLabelError
	if !errors.As(err, &de) || len(de.Labels) != 1 || de.Labels[0] != "L" {
		t.Errorf("expected DuplicateLabelError for L, got %v", err)
	}
	var ue *UnresolvedLabelError
	if !errors.As(err, &ue) {
		t.Errorf("undefined label should be reported alongside duplicates: %v", err)
	}
}

func TestResolveKeepsUnreachableBlocks(t *testing.T) {
	b := cfggen.NewBuilder("f")
	b.Return(nil)
	b.Label("dead")
	b.Jump("dead")
	g, err := Resolve(b.Finish())
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(g.Blocks))
	}
	if reach := g.Reachable(); reach[1] {
		t.Error("block 1 should be unreachable")
	}
}

func TestResolveFallthrough(t *testing.T) {
	b := cfggen.NewBuilder("f")
	b.Emit(vir.Const(1, 3))
	b.Label("next")
	b.Return(vir.VReg(1))
	g, err := Resolve(b.Finish())
	if err != nil {
		t.Fatal(err)
	}
	if ft, ok := g.Blocks[0].Term.(cfg.Fallthrough); !ok || ft.Next != 1 {
		t.Errorf("block 0 terminator = %#v, want Fallthrough{1}", g.Blocks[0].Term)
	}
}

func TestResolveRejectsFinalFallthrough(t *testing.T) {
	g := &lcfg.Graph{Name: "bad", Blocks: []lcfg.Block{{Index: 0, Term: lcfg.Fallthrough{}}}}
	_, err := Resolve(g, lcfg.NewLabelMap())
	var se *vir.StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
}
