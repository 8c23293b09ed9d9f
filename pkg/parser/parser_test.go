package parser

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/raymyers/ralph-bt/pkg/lexer"
	"github.com/raymyers/ralph-bt/pkg/vir"
	"gopkg.in/yaml.v3"
)

// TestSpec represents a round-trip case from parse.yaml
type TestSpec struct {
	Name   string `yaml:"name"`
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// ErrorSpec represents a rejected input from parse.yaml
type ErrorSpec struct {
	Name   string   `yaml:"name"`
	Input  string   `yaml:"input"`
	Errors []string `yaml:"errors"`
}

// TestFile represents the parse.yaml file structure
type TestFile struct {
	Tests  []TestSpec  `yaml:"tests"`
	Errors []ErrorSpec `yaml:"errors"`
}

func loadTestFile(t *testing.T) TestFile {
	t.Helper()
	data, err := os.ReadFile("../../testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}
	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}
	return testFile
}

func TestParseYAML(t *testing.T) {
	for _, tc := range loadTestFile(t).Tests {
		t.Run(tc.Name, func(t *testing.T) {
			p := New(lexer.New(tc.Input))
			units := p.ParseFile()
			if len(p.Errors()) > 0 {
				t.Fatalf("parser errors: %v", p.Errors())
			}

			var buf bytes.Buffer
			vir.NewPrinter(&buf).PrintUnits(units)
			if buf.String() != tc.Output {
				t.Errorf("printed:\n%s\nwant:\n%s", buf.String(), tc.Output)
			}

			// The printed form parses back to the same thing.
			again, err := Parse(buf.String())
			if err != nil {
				t.Fatalf("reparse: %v", err)
			}
			var buf2 bytes.Buffer
			vir.NewPrinter(&buf2).PrintUnits(again)
			if buf2.String() != buf.String() {
				t.Errorf("round trip changed the output:\n%s", buf2.String())
			}
		})
	}
}

func TestParseErrorsYAML(t *testing.T) {
	for _, tc := range loadTestFile(t).Errors {
		t.Run(tc.Name, func(t *testing.T) {
			p := New(lexer.New(tc.Input))
			p.ParseFile()
			errs := p.Errors()
			if len(errs) == 0 {
				t.Fatal("expected parse errors")
			}
			all := strings.Join(errs, "\n")
			for _, want := range tc.Errors {
				if !strings.Contains(all, want) {
					t.Errorf("errors %q do not mention %q", all, want)
				}
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	units, err := Parse(`
func f {
entry:
  v1 = load 8
  store 16, v1
  br v1, entry, out
out:
  jmp entry
}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Name != "f" {
		t.Fatalf("units = %+v", units)
	}
	stmts := units[0].Stmts
	if len(stmts) != 6 {
		t.Fatalf("got %d statements, want 6", len(stmts))
	}

	if l, ok := stmts[0].(vir.Labeled); !ok || l.Name != "entry" {
		t.Errorf("stmts[0] = %#v", stmts[0])
	}
	load, ok := stmts[1].(vir.Instruction)
	if !ok || load.Op != vir.OpLoad || load.Dest != vir.VReg(1) || load.Args[0] != (vir.Imm{Value: 8}) {
		t.Errorf("stmts[1] = %#v", stmts[1])
	}
	store, ok := stmts[2].(vir.Instruction)
	if !ok || store.Op != vir.OpStore || store.Dest != nil || len(store.Args) != 2 {
		t.Errorf("stmts[2] = %#v", stmts[2])
	}
	br, ok := stmts[3].(vir.Branch)
	if !ok || br.Cond != vir.VReg(1) || br.IfSo != "entry" || br.IfNot != "out" {
		t.Errorf("stmts[3] = %#v", stmts[3])
	}
	if j, ok := stmts[5].(vir.Jump); !ok || j.Target != "entry" {
		t.Errorf("stmts[5] = %#v", stmts[5])
	}
}

func TestParsePhysicalOperands(t *testing.T) {
	units, err := Parse("func f {\n  s0 = spill r3\n  r1 = reload s0\n  ret r1\n}")
	if err != nil {
		t.Fatal(err)
	}
	spill := units[0].Stmts[0].(vir.Instruction)
	if spill.Dest != vir.Slot(0) || spill.Args[0] != vir.PReg(3) {
		t.Errorf("spill = %#v", spill)
	}
	ret := units[0].Stmts[2].(vir.Return)
	if ret.Value != vir.PReg(1) {
		t.Errorf("ret = %#v", ret)
	}
}

func TestParseReportsEveryError(t *testing.T) {
	_, err := Parse(`
func f {
  v1 = frob 1
  v2 = blat 2
  ret
}`)
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"line 3", `"frob"`, "line 4", `"blat"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestRegisterOperand(t *testing.T) {
	tests := []struct {
		in   string
		want vir.Operand
		ok   bool
	}{
		{"v1", vir.VReg(1), true},
		{"v12", vir.VReg(12), true},
		{"r0", vir.PReg(0), true},
		{"s7", vir.Slot(7), true},
		{"v", nil, false},
		{"v01", nil, false},
		{"vx", nil, false},
		{"x1", nil, false},
		{"store", nil, false},
	}
	for _, tt := range tests {
		got, ok := registerOperand(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("registerOperand(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
