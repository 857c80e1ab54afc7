package costmodel

import (
	"fmt"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
	"github.com/snow-ghost/autotune/pkg/cache"
)

// DefaultCacheSize is the number of estimates Cached keeps by default.
const DefaultCacheSize = 4096

// Cached remembers estimates of an inner model by program fingerprint.
// Structurally equal programs are estimated once; the inner model must
// therefore be a pure function of program structure.
type Cached struct {
	inner core.CostModel
	memo  *cache.Memo[float64]
}

func NewCached(inner core.CostModel, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	memo, err := cache.NewMemo[float64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost cache: %w", err)
	}
	return &Cached{inner: inner, memo: memo}, nil
}

func (c *Cached) Estimate(p *ir.Module) float64 {
	return c.memo.Get(p.Fingerprint(), func() float64 {
		return c.inner.Estimate(p)
	})
}

// Stats reports how often estimates were served from memory.
func (c *Cached) Stats() cache.Stats {
	return c.memo.Stats()
}
