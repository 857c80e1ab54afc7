package rules

import (
	"math/rand/v2"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
)

// AutoBind maps the outer loops of a block onto the GPU grid: the outermost
// loop to gpu.block and the next spatial loop that fits to gpu.thread.
// Binding a tiled block is mandatory since a GPU kernel cannot launch
// without it; untiled blocks may still be tiled first, so binding them is
// optional.
type AutoBind struct {
	maxThreads int
}

func NewAutoBind(target core.Target) *AutoBind {
	return &AutoBind{maxThreads: target.MaxThreadsPerBlock}
}

func (r *AutoBind) Name() string { return "auto_bind" }

func (r *AutoBind) Setup(target core.Target, p *ir.Module) bool {
	return target.IsGPU() && r.maxThreads > 0 && len(p.Blocks) > 0
}

func (r *AutoBind) Check(p *ir.Module) core.Verdict {
	verdict := core.NotApplicable
	for _, b := range p.Blocks {
		if !r.bindable(b) {
			continue
		}
		if b.TileLevel > 0 {
			return core.ApplicableMandatory
		}
		verdict = core.ApplicableOptional
	}
	return verdict
}

// ApplyRandom binds one block. Mandatory candidates are served first, the
// same way the search layer ranks rules.
func (r *AutoBind) ApplyRandom(rng *rand.Rand, p *ir.Module) *ir.Module {
	mustApply(r, p)
	var tiled, untiled []string
	for _, b := range p.Blocks {
		if !r.bindable(b) {
			continue
		}
		if b.TileLevel > 0 {
			tiled = append(tiled, b.Name)
		} else {
			untiled = append(untiled, b.Name)
		}
	}
	cands := untiled
	if len(tiled) > 0 {
		cands = tiled
	}
	return r.bind(p, cands[rng.IntN(len(cands))])
}

func (r *AutoBind) bindable(b *ir.Block) bool {
	return len(b.Loops) > 0 && !b.HasLoopKind(ir.GPUBlock) && !b.Loops[0].Reduce
}

func (r *AutoBind) bind(p *ir.Module, block string) *ir.Module {
	next := p.Clone()
	b := next.Block(block)
	must(r, next.Annotate(block, 0, ir.GPUBlock))
	for i := 1; i < len(b.Loops); i++ {
		l := b.Loops[i]
		if l.Reduce {
			break
		}
		if l.Kind == ir.Serial && l.Extent <= r.maxThreads {
			must(r, next.Annotate(block, i, ir.GPUThread))
			break
		}
	}
	return next
}
