// Package resolve turns an unresolved graph into a resolved one by replacing
// every symbolic target with the index of the block that defines it.
// All missing labels are reported together.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/lcfg"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// UnresolvedLabelError lists every label referenced but never defined.
// Labels are sorted; Refs gives the referencing blocks of each.
type UnresolvedLabelError struct {
	Func   string
	Labels []lcfg.Label
	Refs   map[lcfg.Label][]lcfg.BlockIndex
}

func (e *UnresolvedLabelError) Error() string {
	names := make([]string, len(e.Labels))
	for i, l := range e.Labels {
		names[i] = string(l)
	}
	return fmt.Sprintf("%s: undefined labels: %s", e.Func, strings.Join(names, ", "))
}

// DuplicateLabelError lists labels defined more than once.
type DuplicateLabelError struct {
	Func   string
	Labels []lcfg.Label
}

func (e *DuplicateLabelError) Error() string {
	names := make([]string, len(e.Labels))
	for i, l := range e.Labels {
		names[i] = string(l)
	}
	return fmt.Sprintf("%s: labels defined more than once: %s", e.Func, strings.Join(names, ", "))
}

// Resolve maps every terminator target of g through labels. Unreachable
// blocks are kept. On failure no graph is returned and the error joins an
// UnresolvedLabelError, a DuplicateLabelError and structural problems, as
// applicable.
func Resolve(g *lcfg.Graph, labels *lcfg.LabelMap) (*cfg.Graph, error) {
	r := &resolver{
		labels:  labels,
		missing: make(map[lcfg.Label][]lcfg.BlockIndex),
	}
	out := &cfg.Graph{Name: g.Name, Entry: g.Entry, Blocks: make([]cfg.Block, len(g.Blocks))}
	var errs []error
	structural := func(block int, msg string) {
		errs = append(errs, &vir.StructuralError{Func: g.Name, Block: block, Index: -1, Msg: msg})
	}

	if len(g.Blocks) == 0 {
		structural(-1, "graph has no blocks")
	} else if g.Entry < 0 || int(g.Entry) >= len(g.Blocks) {
		structural(-1, fmt.Sprintf("entry block %d out of range", g.Entry))
	}

	for i, b := range g.Blocks {
		from := lcfg.BlockIndex(i)
		nb := cfg.Block{Index: from, Label: b.Label, Instrs: b.Instrs}
		switch t := b.Term.(type) {
		case lcfg.Jump:
			nb.Term = cfg.Jump{Target: r.lookup(t.Target, from)}
		case lcfg.Branch:
			nb.Term = cfg.Branch{Cond: t.Cond, IfSo: r.lookup(t.IfSo, from), IfNot: r.lookup(t.IfNot, from)}
		case lcfg.Return:
			nb.Term = cfg.Return{Value: t.Value}
		case lcfg.Fallthrough:
			if i+1 >= len(g.Blocks) {
				structural(i, "final block falls through")
			}
			nb.Term = cfg.Fallthrough{Next: from + 1}
		default:
			structural(i, "missing terminator")
		}
		out.Blocks[i] = nb
	}

	if len(r.missing) > 0 {
		ue := &UnresolvedLabelError{Func: g.Name, Refs: r.missing}
		for l := range r.missing {
			ue.Labels = append(ue.Labels, l)
		}
		sort.Slice(ue.Labels, func(i, j int) bool { return ue.Labels[i] < ue.Labels[j] })
		errs = append([]error{ue}, errs...)
	}
	if dups := labels.Duplicates(); len(dups) > 0 {
		errs = append(errs, &DuplicateLabelError{Func: g.Name, Labels: dedupe(dups)})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

type resolver struct {
	labels  *lcfg.LabelMap
	missing map[lcfg.Label][]lcfg.BlockIndex
}

// lookup returns the block for l, recording l as missing if it has none.
func (r *resolver) lookup(l lcfg.Label, from lcfg.BlockIndex) lcfg.BlockIndex {
	if idx, ok := r.labels.Lookup(l); ok {
		return idx
	}
	refs := r.missing[l]
	if len(refs) == 0 || refs[len(refs)-1] != from {
		r.missing[l] = append(refs, from)
	}
	return -1
}

func dedupe(ls []lcfg.Label) []lcfg.Label {
	seen := make(map[lcfg.Label]bool, len(ls))
	var out []lcfg.Label
	for _, l := range ls {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
