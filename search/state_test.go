package search

import (
	"sort"
	"testing"

	"github.com/snow-ghost/autotune/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_Unevaluated(t *testing.T) {
	st := NewState(baseline())
	assert.Equal(t, NotEvaluated, st.PredictedCost)
	assert.False(t, st.Evaluated())
	assert.Equal(t, 0, st.Depth())

	st.InitRules(core.DefaultHostTarget(), []core.Rule{optionalOnce("a")})
	assert.Equal(t, -1.0, st.PredictedCost)
}

func TestNewStateFrom_Copies(t *testing.T) {
	base := baseline()
	st := NewStateFrom(base)
	st.Program.Blocks[0].TileLevel = 5
	assert.Equal(t, 0, base.Blocks[0].TileLevel)
}

func TestState_CloneIsDeep(t *testing.T) {
	shared := optionalOnce("a")
	st := NewState(baseline())
	st.InitRules(core.DefaultHostTarget(), []core.Rule{shared})
	st.PredictedCost = 4.5
	st.Trace = []string{"a"}

	c := st.Clone()
	require.True(t, c.Program.Equal(st.Program))
	assert.Equal(t, 4.5, c.PredictedCost)
	assert.Equal(t, []string{"a"}, c.Trace)
	assert.Same(t, st.ApplicableRules[0], c.ApplicableRules[0], "rule handles are shared")

	c.Program.Blocks[0].Loops[0].Extent = 1
	c.Trace[0] = "b"
	c.ApplicableRules[0] = optionalOnce("z")
	assert.Equal(t, 8, st.Program.Blocks[0].Loops[0].Extent)
	assert.Equal(t, "a", st.Trace[0])
	assert.Equal(t, "a", st.ApplicableRules[0].Name())
}

func TestState_InitRulesKeepsCatalogOrderAndDropsFailedSetup(t *testing.T) {
	a, b, c := optionalOnce("a"), optionalOnce("b"), optionalOnce("c")
	b.setup = false

	st := NewState(baseline())
	st.InitRules(core.DefaultHostTarget(), []core.Rule{a, b, c})
	require.Len(t, st.ApplicableRules, 2)
	assert.Equal(t, "a", st.ApplicableRules[0].Name())
	assert.Equal(t, "c", st.ApplicableRules[1].Name())

	st.InitRules(core.DefaultHostTarget(), nil)
	assert.Empty(t, st.ApplicableRules)
}

func TestLess_OrdersByPredictedCost(t *testing.T) {
	a := NewState(baseline())
	a.PredictedCost = 1.5
	b := NewState(baseline())
	b.PredictedCost = 2.5

	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))

	c := NewState(baseline())
	c.PredictedCost = 0.5
	states := []*State{b, a, c}
	sort.Sort(ByCost(states))
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, []float64{states[0].PredictedCost, states[1].PredictedCost, states[2].PredictedCost})
}
