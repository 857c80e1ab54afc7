package rules

import (
	"math/rand/v2"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
)

// AutoVectorize maps the innermost spatial loop of a block onto SIMD lanes,
// splitting it by the lane count first when it is longer.
type AutoVectorize struct {
	lanes int
}

func NewAutoVectorize(target core.Target) *AutoVectorize {
	return &AutoVectorize{lanes: target.VectorLanes}
}

func (r *AutoVectorize) Name() string { return "auto_vectorize" }

func (r *AutoVectorize) Setup(target core.Target, p *ir.Module) bool {
	return !target.IsGPU() && r.lanes > 1 && len(p.Blocks) > 0
}

func (r *AutoVectorize) Check(p *ir.Module) core.Verdict {
	if len(r.candidates(p)) == 0 {
		return core.NotApplicable
	}
	return core.ApplicableOptional
}

func (r *AutoVectorize) ApplyRandom(rng *rand.Rand, p *ir.Module) *ir.Module {
	mustApply(r, p)
	cands := r.candidates(p)
	return r.vectorize(p, cands[rng.IntN(len(cands))])
}

func (r *AutoVectorize) ApplyAll(p *ir.Module) []*ir.Module {
	var out []*ir.Module
	for _, name := range r.candidates(p) {
		out = append(out, r.vectorize(p, name))
	}
	return out
}

func (r *AutoVectorize) candidates(p *ir.Module) []string {
	var out []string
	for _, b := range p.Blocks {
		if len(b.Loops) == 0 || b.HasLoopKind(ir.Vectorized) {
			continue
		}
		inner := b.Loops[len(b.Loops)-1]
		if inner.Kind != ir.Serial || inner.Reduce {
			continue
		}
		if inner.Extent >= r.lanes && inner.Extent%r.lanes == 0 {
			out = append(out, b.Name)
		}
	}
	return out
}

func (r *AutoVectorize) vectorize(p *ir.Module, block string) *ir.Module {
	next := p.Clone()
	b := next.Block(block)
	last := len(b.Loops) - 1
	if extent := b.Loops[last].Extent; extent > r.lanes {
		must(r, next.Split(block, last, []int{extent / r.lanes, r.lanes}))
		last++
	}
	must(r, next.Annotate(block, last, ir.Vectorized))
	return next
}
