package linear

import (
	"fmt"
	"io"

	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Printer outputs Linear code in a readable format
type Printer struct {
	w        io.Writer
	regNames []string
}

// NewPrinter creates a new Linear printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// WithRegisterNames makes the printer show physical registers by name.
func (p *Printer) WithRegisterNames(names []string) *Printer {
	p.regNames = names
	return p
}

func (p *Printer) regName(r vir.PReg) string {
	if int(r) >= 0 && int(r) < len(p.regNames) {
		return p.regNames[r]
	}
	return r.String()
}

func (p *Printer) operand(op vir.Operand) string {
	if r, ok := op.(vir.PReg); ok {
		return p.regName(r)
	}
	return op.String()
}

// PrintFunctions prints several functions separated by blank lines
func (p *Printer) PrintFunctions(fns []*Function) {
	for i, fn := range fns {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintFunction(fn)
	}
}

// PrintFunction prints a function in Linear format
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "%s() {\n", fn.Name)
	if n := fn.Slots(); n > 0 {
		fmt.Fprintf(p.w, "  ; slots = %d\n", n)
	}
	for _, inst := range fn.Code {
		p.printInstruction(inst)
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printInstruction(inst Instruction) {
	switch i := inst.(type) {
	case Llabel:
		// Labels are printed without indentation
		fmt.Fprintf(p.w, "L%d:\n", i.Lbl)
	case Lop:
		fmt.Fprintf(p.w, "  %s\n", vir.FormatInstruction(i.Instr, p.regName))
	case Lgoto:
		fmt.Fprintf(p.w, "  goto L%d\n", i.Target)
	case Lcond:
		kw := "if"
		if i.Invert {
			kw = "ifnot"
		}
		fmt.Fprintf(p.w, "  %s %s goto L%d\n", kw, p.operand(i.Cond), i.IfSo)
	case Lreturn:
		if i.Value != nil {
			fmt.Fprintf(p.w, "  return %s\n", p.operand(i.Value))
		} else {
			fmt.Fprintln(p.w, "  return")
		}
	default:
		fmt.Fprintf(p.w, "  <unknown %T>\n", inst)
	}
}
