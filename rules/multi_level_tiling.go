package rules

import (
	"math/rand/v2"
	"sort"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
)

// MultiLevelTiling splits every non-trivial loop of a block into tiles and
// interleaves spatial and reduction tiles (SRSR on CPUs, SRSRSR on GPUs) so
// that inner tiles stay resident in fast memory.
type MultiLevelTiling struct {
	spatialLevels int
	reduceLevels  int
}

func NewMultiLevelTiling(target core.Target) *MultiLevelTiling {
	if target.IsGPU() {
		return &MultiLevelTiling{spatialLevels: 3, reduceLevels: 3}
	}
	return &MultiLevelTiling{spatialLevels: 2, reduceLevels: 2}
}

func (r *MultiLevelTiling) Name() string { return "multi_level_tiling" }

func (r *MultiLevelTiling) Setup(target core.Target, p *ir.Module) bool {
	for _, b := range p.Blocks {
		if len(b.Loops) > 0 {
			return true
		}
	}
	return false
}

func (r *MultiLevelTiling) Check(p *ir.Module) core.Verdict {
	if len(r.candidates(p)) == 0 {
		return core.NotApplicable
	}
	return core.ApplicableOptional
}

func (r *MultiLevelTiling) ApplyRandom(rng *rand.Rand, p *ir.Module) *ir.Module {
	mustApply(r, p)
	cands := r.candidates(p)
	b := p.Block(cands[rng.IntN(len(cands))])

	choices := r.tileChoices(b)
	factors := make([][]int, len(choices))
	for i, c := range choices {
		factors[i] = c[rng.IntN(len(c))]
	}
	return r.tile(p, b.Name, factors)
}

// ApplyAll enumerates every candidate block with every combination of tile
// sizes. The result grows quickly with loop count; use on small programs.
func (r *MultiLevelTiling) ApplyAll(p *ir.Module) []*ir.Module {
	var out []*ir.Module
	for _, name := range r.candidates(p) {
		choices := r.tileChoices(p.Block(name))
		combo := make([][]int, len(choices))
		var walk func(i int)
		walk = func(i int) {
			if i == len(choices) {
				out = append(out, r.tile(p, name, combo))
				return
			}
			for _, f := range choices[i] {
				combo[i] = f
				walk(i + 1)
			}
		}
		walk(0)
	}
	return out
}

func (r *MultiLevelTiling) candidates(p *ir.Module) []string {
	var out []string
	for _, b := range p.Blocks {
		if b.TileLevel > 0 || !b.AllSerial() {
			continue
		}
		for _, l := range b.Loops {
			if l.Extent > 1 {
				out = append(out, b.Name)
				break
			}
		}
	}
	return out
}

// tileChoices lists the candidate factorizations of every loop of b.
// Unit loops are kept whole.
func (r *MultiLevelTiling) tileChoices(b *ir.Block) [][][]int {
	choices := make([][][]int, len(b.Loops))
	for i, l := range b.Loops {
		levels := r.spatialLevels
		if l.Reduce {
			levels = r.reduceLevels
		}
		if l.Extent <= 1 {
			levels = 1
		}
		choices[i] = factorizations(l.Extent, levels)
	}
	return choices
}

type tilePiece struct {
	tier int
	orig int
}

func (r *MultiLevelTiling) tile(p *ir.Module, block string, factors [][]int) *ir.Module {
	next := p.Clone()

	// Split back to front so earlier loop indices stay valid.
	var pieces []tilePiece
	for i := len(factors) - 1; i >= 0; i-- {
		must(r, next.Split(block, i, factors[i]))
	}
	reduce := make([]bool, len(factors))
	for i, l := range p.Block(block).Loops {
		reduce[i] = l.Reduce
	}
	for i, f := range factors {
		for level := range f {
			// Spatial tiles sit on even tiers, reduction tiles on odd ones.
			tier := 2 * level
			if reduce[i] {
				tier = 2*level + 1
			}
			pieces = append(pieces, tilePiece{tier: tier, orig: i})
		}
	}

	order := make([]int, len(pieces))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := pieces[order[a]], pieces[order[b]]
		if pa.tier != pb.tier {
			return pa.tier < pb.tier
		}
		return pa.orig < pb.orig
	})
	must(r, next.Reorder(block, order))
	next.Block(block).TileLevel++
	return next
}
