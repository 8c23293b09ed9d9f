package linearize

import "github.com/raymyers/ralph-bt/pkg/linear"

// Tunnel retargets branches whose destination only jumps elsewhere, so
// "goto L1" where L1 is "goto L2" becomes "goto L2". Edge blocks created by
// the allocator for reloads are never empty and are left alone. It returns
// the number of branches retargeted.
func Tunnel(fn *linear.Function) int {
	forward := gotoOnlyLabels(fn)
	if len(forward) == 0 {
		return 0
	}
	n := 0
	for i, inst := range fn.Code {
		switch b := inst.(type) {
		case linear.Lgoto:
			if t := finalTarget(b.Target, forward); t != b.Target {
				fn.Code[i] = linear.Lgoto{Target: t}
				n++
			}
		case linear.Lcond:
			if t := finalTarget(b.IfSo, forward); t != b.IfSo {
				b.IfSo = t
				fn.Code[i] = b
				n++
			}
		}
	}
	return n
}

// gotoOnlyLabels maps every label whose code is a bare goto to that goto's
// target. A run of adjacent labels all map to the same target.
func gotoOnlyLabels(fn *linear.Function) map[linear.Label]linear.Label {
	forward := make(map[linear.Label]linear.Label)
	var run []linear.Label
	for _, inst := range fn.Code {
		switch i := inst.(type) {
		case linear.Llabel:
			run = append(run, i.Lbl)
			continue
		case linear.Lgoto:
			for _, l := range run {
				forward[l] = i.Target
			}
		}
		run = run[:0]
	}
	return forward
}

// finalTarget follows goto-only labels from l. On a cycle of empty blocks
// it stops where the cycle closes.
func finalTarget(l linear.Label, forward map[linear.Label]linear.Label) linear.Label {
	seen := make(map[linear.Label]bool)
	for !seen[l] {
		seen[l] = true
		next, ok := forward[l]
		if !ok {
			break
		}
		l = next
	}
	return l
}
