package search

import (
	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
)

// NotEvaluated is the predicted cost of a state the cost model has not seen.
const NotEvaluated = -1.0

// State is one candidate program during search.
type State struct {
	Program *ir.Module
	// ApplicableRules is computed once per program by InitRules and is not
	// refreshed when the program changes; producers of a new program must
	// call InitRules themselves. Rule handles are shared, never copied.
	ApplicableRules []core.Rule
	PredictedCost   float64
	// Trace lists the rules applied, in order, to derive Program from the
	// baseline.
	Trace []string
}

// NewState takes ownership of p.
func NewState(p *ir.Module) *State {
	return &State{Program: p, PredictedCost: NotEvaluated}
}

// NewStateFrom builds a state over a private copy of p.
func NewStateFrom(p *ir.Module) *State {
	return NewState(p.Clone())
}

// Clone deep-copies the program; rule handles are shared.
func (s *State) Clone() *State {
	c := &State{
		Program:       s.Program.Clone(),
		PredictedCost: s.PredictedCost,
	}
	if s.ApplicableRules != nil {
		c.ApplicableRules = append([]core.Rule(nil), s.ApplicableRules...)
	}
	if s.Trace != nil {
		c.Trace = append([]string(nil), s.Trace...)
	}
	return c
}

// InitRules replaces ApplicableRules with the catalog rules, in catalog
// order, whose setup succeeds against the program and target. Rules that
// cannot serve the target are left out; an empty result is valid.
func (s *State) InitRules(target core.Target, catalog []core.Rule) {
	s.ApplicableRules = make([]core.Rule, 0, len(catalog))
	for _, r := range catalog {
		if r.Setup(target, s.Program) {
			s.ApplicableRules = append(s.ApplicableRules, r)
		}
	}
}

func (s *State) Evaluated() bool { return s.PredictedCost != NotEvaluated }

// Depth is the number of rewrites between the baseline and this state.
func (s *State) Depth() int { return len(s.Trace) }

// Less orders states by predicted cost, cheapest first.
func Less(a, b *State) bool {
	return a.PredictedCost < b.PredictedCost
}

// ByCost sorts states with Less.
type ByCost []*State

func (c ByCost) Len() int           { return len(c) }
func (c ByCost) Less(i, j int) bool { return Less(c[i], c[j]) }
func (c ByCost) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }
