package regalloc

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// PrintResult writes the location of every virtual register followed by the
// allocated graph, with registers shown by their target names.
func PrintResult(w io.Writer, res *Result) {
	t := res.Target
	fmt.Fprintf(w, "; %s: %d registers (%s), policy %s\n",
		res.Graph.Name, t.Budget(), strings.Join(t.Registers, " "), res.Policy)
	regs := NewRegSet()
	for r := range res.Locations {
		regs.Add(r)
	}
	for _, r := range regs.Slice() {
		switch loc := res.Locations[r].(type) {
		case vir.PReg:
			fmt.Fprintf(w, ";   %s -> %s\n", r, t.RegName(int(loc)))
		case vir.Slot:
			fmt.Fprintf(w, ";   %s -> %s\n", r, loc)
		}
	}
	fmt.Fprintf(w, "; %d slots, %d stores, %d reloads, max pressure %d\n",
		res.NumSlots, res.Stores, res.Reloads, res.MaxPressure)
	cfg.NewPrinter(w).WithRegisterNames(t.Registers).PrintGraph(res.Graph)
}
