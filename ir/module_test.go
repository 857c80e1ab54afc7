package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain() *Module {
	return &Module{
		Name: "chain",
		Blocks: []*Block{
			{
				Name:   "mm",
				Loops:  []Loop{{Var: "i", Extent: 16, Kind: Serial}, {Var: "j", Extent: 8, Kind: Serial}, {Var: "k", Extent: 4, Kind: Serial, Reduce: true}},
				Reads:  []string{"A", "B"},
				Writes: "C",
			},
			{
				Name:   "bias",
				Loops:  []Loop{{Var: "i", Extent: 16, Kind: Serial}, {Var: "j", Extent: 8, Kind: Serial}},
				Reads:  []string{"C", "bias"},
				Writes: "D",
			},
			{
				Name:   "relu",
				Loops:  []Loop{{Var: "i", Extent: 16, Kind: Serial}, {Var: "j", Extent: 8, Kind: Serial}},
				Reads:  []string{"D"},
				Writes: "out",
				Output: true,
			},
		},
	}
}

func TestModule_CloneIsIndependent(t *testing.T) {
	m := chain()
	c := m.Clone()
	require.True(t, m.Equal(c))

	c.Blocks[0].Loops[0].Extent = 99
	c.Blocks[1].Reads[0] = "X"
	c.Blocks = c.Blocks[:1]

	assert.Equal(t, 16, m.Blocks[0].Loops[0].Extent)
	assert.Equal(t, "C", m.Blocks[1].Reads[0])
	assert.Len(t, m.Blocks, 3)
	assert.False(t, m.Equal(c))
}

func TestModule_Fingerprint(t *testing.T) {
	a, b := chain(), chain()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Blocks[2].TileLevel = 1
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestModule_Lookups(t *testing.T) {
	m := chain()
	assert.Equal(t, "bias", m.Producer("D").Name)
	assert.Nil(t, m.Producer("A"))
	require.Len(t, m.Consumers("C"), 1)
	assert.Equal(t, "bias", m.Consumers("C")[0].Name)
	assert.True(t, m.Block("mm").IsReduction())
	assert.False(t, m.Block("relu").IsReduction())
	assert.Equal(t, int64(512), m.Block("mm").Iterations())
}

func TestModule_Split(t *testing.T) {
	m := chain()
	require.NoError(t, m.Split("mm", 0, []int{4, 2, 2}))

	loops := m.Block("mm").Loops
	require.Len(t, loops, 5)
	assert.Equal(t, "i_0", loops[0].Var)
	assert.Equal(t, 4, loops[0].Extent)
	assert.Equal(t, "i_2", loops[2].Var)
	assert.Equal(t, "j", loops[3].Var)
	assert.Equal(t, int64(512), m.Block("mm").Iterations())

	require.NoError(t, m.Split("mm", 4, []int{2, 2}))
	assert.True(t, m.Block("mm").Loops[5].Reduce)

	assert.ErrorIs(t, m.Split("mm", 0, []int{3}), ErrBadFactors)
	assert.ErrorIs(t, m.Split("mm", 42, []int{1}), ErrNoSuchLoop)
	assert.ErrorIs(t, m.Split("nope", 0, []int{1}), ErrNoSuchBlock)
}

func TestModule_Reorder(t *testing.T) {
	m := chain()
	require.NoError(t, m.Reorder("mm", []int{2, 0, 1}))
	assert.Equal(t, "k", m.Block("mm").Loops[0].Var)
	assert.Equal(t, "i", m.Block("mm").Loops[1].Var)

	assert.ErrorIs(t, m.Reorder("mm", []int{0, 0, 1}), ErrBadOrder)
	assert.ErrorIs(t, m.Reorder("mm", []int{0, 1}), ErrBadOrder)
}

func TestModule_Annotate(t *testing.T) {
	m := chain()
	require.NoError(t, m.Annotate("relu", 1, Vectorized))
	assert.True(t, m.Block("relu").HasLoopKind(Vectorized))
	assert.False(t, m.Block("relu").AllSerial())
	assert.ErrorIs(t, m.Annotate("relu", 2, Vectorized), ErrNoSuchLoop)
}

func TestModule_ComputeInline(t *testing.T) {
	m := chain()
	require.NoError(t, m.ComputeInline("bias"))

	require.Len(t, m.Blocks, 2)
	relu := m.Block("relu")
	assert.Equal(t, []string{"C", "bias"}, relu.Reads)
	assert.Equal(t, []string{"bias"}, relu.Inlined)

	assert.ErrorIs(t, m.ComputeInline("mm"), ErrNotInlinable)
	assert.ErrorIs(t, m.ComputeInline("relu"), ErrNotInlinable)
	assert.ErrorIs(t, m.ComputeInline("bias"), ErrNoSuchBlock)
}

func TestModule_ComputeInlineDoesNotAliasClone(t *testing.T) {
	m := chain()
	c := m.Clone()
	require.NoError(t, c.ComputeInline("bias"))
	assert.Len(t, m.Blocks, 3)
	assert.Equal(t, []string{"D"}, m.Block("relu").Reads)
}
