package vir

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes units in the textual stream format read by the parser
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new stream printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintUnits prints several units separated by blank lines
func (p *Printer) PrintUnits(units []Unit) {
	for i := range units {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintUnit(&units[i])
	}
}

// PrintUnit prints one unit
func (p *Printer) PrintUnit(u *Unit) {
	fmt.Fprintf(p.w, "func %s {\n", u.Name)
	for _, s := range u.Stmts {
		switch s := s.(type) {
		case Labeled:
			fmt.Fprintf(p.w, "%s:\n", s.Name)
		case Instruction:
			fmt.Fprintf(p.w, "  %s\n", s)
		case Jump:
			fmt.Fprintf(p.w, "  jmp %s\n", s.Target)
		case Branch:
			fmt.Fprintf(p.w, "  br %s, %s, %s\n", s.Cond, s.IfSo, s.IfNot)
		case Return:
			if s.Value != nil {
				fmt.Fprintf(p.w, "  ret %s\n", s.Value)
			} else {
				fmt.Fprintln(p.w, "  ret")
			}
		}
	}
	fmt.Fprintln(p.w, "}")
}

func (i Instruction) String() string {
	return FormatInstruction(i, nil)
}

// FormatInstruction renders an instruction; regName, when non-nil, names
// physical registers (e.g. "RAX" instead of "r0").
func FormatInstruction(i Instruction, regName func(PReg) string) string {
	operand := func(op Operand) string {
		if r, ok := op.(PReg); ok && regName != nil {
			return regName(r)
		}
		if op == nil {
			return "?"
		}
		return op.String()
	}
	var sb strings.Builder
	if i.Dest != nil {
		sb.WriteString(operand(i.Dest))
		sb.WriteString(" = ")
	}
	sb.WriteString(i.Op.String())
	for k, a := range i.Args {
		if k == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(operand(a))
	}
	return sb.String()
}
