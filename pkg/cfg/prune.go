package cfg

// PruneUnreachable returns a copy of g without the blocks that cannot be
// reached from the entry. Surviving blocks keep their relative order and
// are renumbered densely. A fallthrough successor is always reachable along
// with its predecessor, so adjacency is preserved.
func PruneUnreachable(g *Graph) *Graph {
	live := g.Reachable()
	remap := make([]BlockIndex, len(g.Blocks))
	next := BlockIndex(0)
	for i := range g.Blocks {
		if live[i] {
			remap[i] = next
			next++
		} else {
			remap[i] = -1
		}
	}

	out := &Graph{Name: g.Name, Entry: remap[g.Entry]}
	for i, b := range g.Blocks {
		if !live[i] {
			continue
		}
		nb := Block{Index: remap[i], Label: b.Label, Instrs: b.Instrs}
		switch t := b.Term.(type) {
		case Jump:
			nb.Term = Jump{Target: remap[t.Target]}
		case Branch:
			nb.Term = Branch{Cond: t.Cond, IfSo: remap[t.IfSo], IfNot: remap[t.IfNot]}
		case Fallthrough:
			nb.Term = Fallthrough{Next: remap[t.Next]}
		default:
			nb.Term = t
		}
		out.Blocks = append(out.Blocks, nb)
	}
	return out
}
