package rules

import (
	"math/rand/v2"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
)

// AutoInline computes elementwise intermediate stages inside their
// consumers. Leaving an inlinable stage materialized wastes a full round
// trip through memory, so the rule reports a mandatory verdict.
type AutoInline struct{}

func NewAutoInline() *AutoInline { return &AutoInline{} }

func (r *AutoInline) Name() string { return "auto_inline" }

func (r *AutoInline) Setup(target core.Target, p *ir.Module) bool {
	return len(p.Blocks) > 1
}

func (r *AutoInline) Check(p *ir.Module) core.Verdict {
	if len(r.candidates(p)) == 0 {
		return core.NotApplicable
	}
	return core.ApplicableMandatory
}

func (r *AutoInline) ApplyRandom(rng *rand.Rand, p *ir.Module) *ir.Module {
	mustApply(r, p)
	cands := r.candidates(p)
	return r.inline(p, cands[rng.IntN(len(cands))])
}

func (r *AutoInline) ApplyAll(p *ir.Module) []*ir.Module {
	var out []*ir.Module
	for _, name := range r.candidates(p) {
		out = append(out, r.inline(p, name))
	}
	return out
}

func (r *AutoInline) inline(p *ir.Module, block string) *ir.Module {
	next := p.Clone()
	must(r, next.ComputeInline(block))
	return next
}

func (r *AutoInline) candidates(p *ir.Module) []string {
	var out []string
	for _, b := range p.Blocks {
		if b.Output || b.IsReduction() || b.TileLevel > 0 || !b.AllSerial() {
			continue
		}
		if p.Producer(b.Writes) != b || len(p.Consumers(b.Writes)) == 0 {
			continue
		}
		out = append(out, b.Name)
	}
	return out
}
