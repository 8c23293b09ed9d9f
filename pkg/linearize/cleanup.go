package linearize

import "github.com/raymyers/ralph-bt/pkg/linear"

// CleanupLabels drops every label no goto or conditional targets, filtering
// fn.Code in place. The first label marks the entry and always survives.
func CleanupLabels(fn *linear.Function) {
	keep := make(map[linear.Label]bool)
	for _, l := range fn.ReferencedLabels() {
		keep[l] = true
	}
	if labels := fn.Labels(); len(labels) > 0 {
		keep[labels[0]] = true
	}

	out := fn.Code[:0]
	for _, inst := range fn.Code {
		if l, ok := inst.(linear.Llabel); ok && !keep[l.Lbl] {
			continue
		}
		out = append(out, inst)
	}
	fn.Code = out
}
