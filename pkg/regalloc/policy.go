package regalloc

import (
	"fmt"

	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Candidate is a register-resident value that could be displaced.
type Candidate struct {
	Reg     vir.VReg
	NextUse int // next read at or after the decision point; math.MaxInt if none
	Start   int
	End     int
}

// Policy chooses which value gives up its register when none is free.
type Policy interface {
	Name() string
	// Victim returns an index into candidates, which is never empty.
	Victim(at int, candidates []Candidate) int
}

// FurthestNextUse displaces the value whose next read is furthest away,
// preferring the later-starting range on ties.
type FurthestNextUse struct{}

func (FurthestNextUse) Name() string { return "furthest-next-use" }

func (FurthestNextUse) Victim(at int, cs []Candidate) int {
	best := 0
	for i := 1; i < len(cs); i++ {
		c, b := cs[i], cs[best]
		if c.NextUse > b.NextUse || (c.NextUse == b.NextUse && later(c, b)) {
			best = i
		}
	}
	return best
}

// FurthestEnd displaces the value whose range ends last.
type FurthestEnd struct{}

func (FurthestEnd) Name() string { return "furthest-end" }

func (FurthestEnd) Victim(at int, cs []Candidate) int {
	best := 0
	for i := 1; i < len(cs); i++ {
		c, b := cs[i], cs[best]
		if c.End > b.End || (c.End == b.End && later(c, b)) {
			best = i
		}
	}
	return best
}

func later(a, b Candidate) bool {
	if a.Start != b.Start {
		return a.Start > b.Start
	}
	return a.Reg > b.Reg
}

// PolicyByName maps a policy name to its implementation.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "furthest-next-use":
		return FurthestNextUse{}, nil
	case "furthest-end":
		return FurthestEnd{}, nil
	}
	return nil, fmt.Errorf("unknown spill policy %q", name)
}
