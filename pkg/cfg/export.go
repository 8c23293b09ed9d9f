package cfg

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format selects an export rendering
type Format int

const (
	FormatText Format = iota // one "node"/"edge" record per line
	FormatDot                // Graphviz
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatDot:
		return "dot"
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// ParseFormat maps "text" or "dot" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "txt":
		return FormatText, nil
	case "dot", "graphviz":
		return FormatDot, nil
	}
	return 0, fmt.Errorf("unknown export format %q", s)
}

// Export renders the block structure of g: one node per block by index and
// one edge per terminator target in block order. The output depends only
// on g, so repeated exports are byte-identical.
func Export(w io.Writer, g *Graph, f Format) error {
	var sb strings.Builder
	switch f {
	case FormatText:
		exportText(&sb, g)
	case FormatDot:
		exportDot(&sb, g)
	default:
		return fmt.Errorf("unknown export format %v", f)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// ExportString is Export into a string.
func ExportString(g *Graph, f Format) (string, error) {
	var sb strings.Builder
	if err := Export(&sb, g, f); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func exportText(sb *strings.Builder, g *Graph) {
	fmt.Fprintf(sb, "graph %s entry=%d\n", g.Name, g.Entry)
	for i, b := range g.Blocks {
		if b.Label != "" {
			fmt.Fprintf(sb, "node %d %s\n", i, b.Label)
		} else {
			fmt.Fprintf(sb, "node %d\n", i)
		}
	}
	for _, e := range g.Edges() {
		if e.Kind != "" {
			fmt.Fprintf(sb, "edge %d -> %d %s\n", e.From, e.To, e.Kind)
		} else {
			fmt.Fprintf(sb, "edge %d -> %d\n", e.From, e.To)
		}
	}
}

func exportDot(sb *strings.Builder, g *Graph) {
	fmt.Fprintf(sb, "digraph %s {\n", strconv.Quote(g.Name))
	sb.WriteString("  node [shape=box];\n")
	for i, b := range g.Blocks {
		label := fmt.Sprintf("b%d", i)
		if b.Label != "" {
			label += " " + string(b.Label)
		}
		attrs := "label=" + strconv.Quote(label)
		if BlockIndex(i) == g.Entry {
			attrs += ", penwidth=2"
		}
		if _, ok := b.Term.(Return); ok {
			attrs += ", peripheries=2"
		}
		fmt.Fprintf(sb, "  b%d [%s];\n", i, attrs)
	}
	for _, e := range g.Edges() {
		if e.Kind != "" {
			fmt.Fprintf(sb, "  b%d -> b%d [label=%q];\n", e.From, e.To, e.Kind)
		} else {
			fmt.Fprintf(sb, "  b%d -> b%d;\n", e.From, e.To)
		}
	}
	sb.WriteString("}\n")
}
