package cfg

import (
	"fmt"
	"io"

	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Printer outputs a full dump of a resolved graph, instructions included
type Printer struct {
	w        io.Writer
	regNames []string
}

// NewPrinter creates a new graph printer
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

// PrintGraph prints one function
func (p *Printer) PrintGraph(g *Graph) {
	fmt.Fprintf(p.w, "func %s entry=b%d {\n", g.Name, g.Entry)
	for i := range g.Blocks {
		p.printBlock(&g.Blocks[i])
	}
	fmt.Fprintln(p.w, "}")
}

// PrintGraphs prints several functions separated by blank lines
func (p *Printer) PrintGraphs(gs []*Graph) {
	for i, g := range gs {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintGraph(g)
	}
}

func (p *Printer) printBlock(b *Block) {
	if b.Label != "" {
		fmt.Fprintf(p.w, "b%d <%s>:\n", b.Index, b.Label)
	} else {
		fmt.Fprintf(p.w, "b%d:\n", b.Index)
	}
	for _, in := range b.Instrs {
		fmt.Fprintf(p.w, "  %s\n", vir.FormatInstruction(in, p.regName))
	}
	fmt.Fprint(p.w, "  ")
	p.printTerminator(b.Term)
	fmt.Fprintln(p.w)
}

func (p *Printer) printTerminator(t Terminator) {
	switch t := t.(type) {
	case Jump:
		fmt.Fprintf(p.w, "jmp b%d", t.Target)
	case Branch:
		fmt.Fprintf(p.w, "br %s, b%d, b%d", p.operand(t.Cond), t.IfSo, t.IfNot)
	case Return:
		if t.Value != nil {
			fmt.Fprintf(p.w, "ret %s", p.operand(t.Value))
		} else {
			fmt.Fprint(p.w, "ret")
		}
	case Fallthrough:
		fmt.Fprintf(p.w, "fallthrough b%d", t.Next)
	default:
		fmt.Fprint(p.w, "<unknown terminator>")
	}
}
