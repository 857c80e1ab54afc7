package core

import (
	"math/rand/v2"

	"github.com/snow-ghost/autotune/ir"
)

// Verdict is the outcome of checking a rule against a program.
type Verdict int

const (
	NotApplicable Verdict = iota
	ApplicableOptional
	ApplicableMandatory
)

func (v Verdict) String() string {
	switch v {
	case ApplicableOptional:
		return "optional"
	case ApplicableMandatory:
		return "mandatory"
	default:
		return "not_applicable"
	}
}

// Rule is a rewrite that maps a program to a semantically equivalent one.
// Rule values are immutable after construction and shared by every search
// state listing them, so implementations must not keep per-program state.
type Rule interface {
	Name() string
	// Setup reports whether the rule can ever apply to programs like p on target.
	Setup(target Target, p *ir.Module) bool
	Check(p *ir.Module) Verdict
	// ApplyRandom returns a new program chosen uniformly among the rule's
	// legal rewrites of p. p is never modified. All randomness comes from rng.
	// It panics when Check(p) is NotApplicable.
	ApplyRandom(rng *rand.Rand, p *ir.Module) *ir.Module
}

// ExhaustiveRule is a rule able to enumerate all of its rewrites.
type ExhaustiveRule interface {
	Rule
	ApplyAll(p *ir.Module) []*ir.Module
}

// CostModel predicts the cost of running a program. Estimate must be
// synchronous and free of side effects visible to the caller.
type CostModel interface {
	Estimate(p *ir.Module) float64
}

// CostModelFunc adapts a plain function to CostModel.
type CostModelFunc func(p *ir.Module) float64

func (f CostModelFunc) Estimate(p *ir.Module) float64 { return f(p) }
