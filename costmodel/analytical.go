package costmodel

import (
	"math"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
)

// Analytical estimates cost from the shape of the loop nests alone. It
// never compiles or runs anything. Results are in arbitrary units and only
// meaningful for ranking programs for the same target.
type Analytical struct {
	target core.Target

	// MemoryWeight scales the cost of one buffer access relative to one
	// iteration of compute.
	MemoryWeight float64
	// LaunchOverhead is paid once per materialized block.
	LaunchOverhead float64
	// InlineRecompute is the extra compute per iteration for each producer
	// recomputed inside a consumer.
	InlineRecompute float64
}

func NewAnalytical(target core.Target) *Analytical {
	a := &Analytical{
		target:          target,
		MemoryWeight:    4.0,
		LaunchOverhead:  64.0,
		InlineRecompute: 0.25,
	}
	if target.IsGPU() {
		a.MemoryWeight = 8.0
		a.LaunchOverhead = 4096.0
	}
	return a
}

// Estimate returns a finite, non-negative predicted cost.
func (a *Analytical) Estimate(p *ir.Module) float64 {
	total := 0.0
	for _, b := range p.Blocks {
		total += a.blockCost(b)
	}
	// Scale down to keep numbers readable in logs.
	return total / 1000.0
}

func (a *Analytical) blockCost(b *ir.Block) float64 {
	iters := float64(b.Iterations())
	compute := iters * (1 + a.InlineRecompute*float64(len(b.Inlined)))

	memory := iters * float64(len(b.Reads)+1) * a.MemoryWeight
	if b.TileLevel > 0 {
		// Tiles keep operands resident; reductions reuse the most.
		reuse := 1 + float64(b.TileLevel)
		if b.IsReduction() {
			reuse *= 2
		}
		memory /= reuse
	}

	return (compute+memory)/a.parallelism(b) + a.LaunchOverhead
}

func (a *Analytical) parallelism(b *ir.Block) float64 {
	par := 1.0
	for _, l := range b.Loops {
		extent := float64(l.Extent)
		switch l.Kind {
		case ir.Vectorized:
			par *= math.Min(extent, float64(max(a.target.VectorLanes, 1)))
		case ir.Parallel:
			par *= math.Min(extent, float64(max(a.target.Cores, 1)))
		case ir.GPUBlock:
			par *= math.Min(extent, float64(max(a.target.Cores, 1)))
		case ir.GPUThread:
			par *= math.Min(extent, float64(max(a.target.MaxThreadsPerBlock, 1)))
		case ir.Unrolled:
			par *= 1.1
		}
	}
	return math.Max(par, 1)
}
