package rules

import (
	"fmt"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
)

// Default returns the rule catalog in registration order. Rules that can
// never serve target still appear; their Setup excludes them per program.
func Default(target core.Target) []core.Rule {
	return []core.Rule{
		NewAutoInline(),
		NewMultiLevelTiling(target),
		NewAutoBind(target),
		NewAutoVectorize(target),
	}
}

// mustApply panics when r is asked to rewrite a program it rejects.
// A silently applied illegal rewrite would corrupt the program.
func mustApply(r core.Rule, p *ir.Module) {
	if r.Check(p) == core.NotApplicable {
		panic(fmt.Sprintf("rules: %s applied to module %q where it is not applicable", r.Name(), p.Name))
	}
}

// must panics on schedule primitive errors. Rules only issue primitives
// they have already proven legal, so an error here is a rule defect.
func must(r core.Rule, err error) {
	if err != nil {
		panic(fmt.Sprintf("rules: %s: %v", r.Name(), err))
	}
}

// factorizations returns every ordered k-tuple of positive integers whose
// product is n.
func factorizations(n, k int) [][]int {
	if k == 1 {
		return [][]int{{n}}
	}
	var out [][]int
	for _, d := range divisors(n) {
		for _, rest := range factorizations(n/d, k-1) {
			out = append(out, append([]int{d}, rest...))
		}
	}
	return out
}

// divisors returns the divisors of n in ascending order.
func divisors(n int) []int {
	var small, large []int
	for d := 1; d*d <= n; d++ {
		if n%d != 0 {
			continue
		}
		small = append(small, d)
		if d*d != n {
			large = append(large, n/d)
		}
	}
	for i := len(large) - 1; i >= 0; i-- {
		small = append(small, large[i])
	}
	return small
}
