package search

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
	"github.com/snow-ghost/autotune/rules"
	"github.com/snow-ghost/autotune/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseline() *ir.Module {
	return &ir.Module{
		Name: "base",
		Blocks: []*ir.Block{{
			Name:   "b",
			Loops:  []ir.Loop{{Var: "i", Extent: 8, Kind: ir.Serial}},
			Reads:  []string{"X"},
			Writes: "Y",
			Output: true,
		}},
	}
}

// fakeRule is a scriptable rule. It records the verdict it sees each time
// it is applied.
type fakeRule struct {
	name    string
	setup   bool
	verdict func(p *ir.Module) core.Verdict
	rewrite func(p *ir.Module)

	mu   sync.Mutex
	seen []core.Verdict
}

func (r *fakeRule) Name() string { return r.name }

func (r *fakeRule) Setup(core.Target, *ir.Module) bool { return r.setup }

func (r *fakeRule) Check(p *ir.Module) core.Verdict { return r.verdict(p) }

func (r *fakeRule) ApplyRandom(rng *rand.Rand, p *ir.Module) *ir.Module {
	r.mu.Lock()
	r.seen = append(r.seen, r.verdict(p))
	r.mu.Unlock()
	next := p.Clone()
	r.rewrite(next)
	return next
}

// optionalOnce is applicable until the block has been tiled once.
func optionalOnce(name string) *fakeRule {
	return &fakeRule{
		name:  name,
		setup: true,
		verdict: func(p *ir.Module) core.Verdict {
			if p.Blocks[0].TileLevel == 0 {
				return core.ApplicableOptional
			}
			return core.NotApplicable
		},
		rewrite: func(p *ir.Module) { p.Blocks[0].TileLevel++ },
	}
}

// alwaysOptional never reaches a fixed point.
func alwaysOptional(name string) *fakeRule {
	return &fakeRule{
		name:    name,
		setup:   true,
		verdict: func(*ir.Module) core.Verdict { return core.ApplicableOptional },
		rewrite: func(p *ir.Module) { p.Blocks[0].TileLevel++ },
	}
}

// renaming is applicable on the baseline only and renames the module.
func renaming(name string) *fakeRule {
	return &fakeRule{
		name:  name,
		setup: true,
		verdict: func(p *ir.Module) core.Verdict {
			if p.Name == "base" {
				return core.ApplicableOptional
			}
			return core.NotApplicable
		},
		rewrite: func(p *ir.Module) { p.Name = name },
	}
}

type countingModel struct {
	mu    sync.Mutex
	calls int
	costs map[string]float64
}

func (m *countingModel) Estimate(p *ir.Module) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.costs[p.Name]
}

func newSpace(catalog []core.Rule, opts ...Option) *Space {
	tc := core.NewTuneContext(core.DefaultHostTarget(), baseline())
	return NewSpace(tc, append([]Option{WithCatalog(catalog), WithSeed(1)}, opts...)...)
}

func TestNewSpace_Defaults(t *testing.T) {
	tc := core.NewTuneContext(core.DefaultHostTarget(), workload.MatMul(8, 8, 8))
	s := NewSpace(tc)
	assert.Equal(t, DefaultDepth, s.Depth())
	assert.Equal(t, 6, s.Depth())
	assert.Len(t, s.Catalog(), len(rules.Default(tc.Target)))
}

func TestGetRandomInitialSketch_NoApplicableRules(t *testing.T) {
	rejected := optionalOnce("never")
	rejected.setup = false

	for _, catalog := range [][]core.Rule{{}, {rejected}} {
		s := newSpace(catalog)
		sketches := s.GetRandomInitialSketch(nil, 5)
		require.Len(t, sketches, 5)
		for _, st := range sketches {
			assert.True(t, st.Program.Equal(baseline()))
			assert.Equal(t, -1.0, st.PredictedCost)
			assert.Equal(t, 0, st.Depth())
		}
	}
	assert.Empty(t, rejected.seen)
}

func TestGetRandomInitialSketch_SingleUseRule(t *testing.T) {
	s := newSpace([]core.Rule{optionalOnce("once")})
	for _, st := range s.GetRandomInitialSketch(nil, 10) {
		assert.Equal(t, []string{"once"}, st.Trace)
		assert.Equal(t, 1, st.Program.Blocks[0].TileLevel)
		assert.Equal(t, NotEvaluated, st.PredictedCost)
	}
}

func TestGetRandomInitialSketch_DepthBound(t *testing.T) {
	s := newSpace([]core.Rule{alwaysOptional("forever")})
	for _, st := range s.GetRandomInitialSketch(nil, 3) {
		assert.Equal(t, DefaultDepth, st.Depth())
		assert.Equal(t, DefaultDepth, st.Program.Blocks[0].TileLevel)
	}

	s = newSpace([]core.Rule{alwaysOptional("forever")}, WithDepth(2))
	for _, st := range s.GetRandomInitialSketch(nil, 3) {
		assert.Equal(t, 2, st.Depth())
	}

	tc := core.NewTuneContext(core.DefaultNVGPUTarget(), workload.MatMulBiasReLU(32, 32, 32))
	gpuSpace := NewSpace(tc, WithSeed(3), WithDepth(2))
	for _, st := range gpuSpace.GetRandomInitialSketch(nil, 20) {
		assert.LessOrEqual(t, st.Depth(), 2)
	}
}

func TestGetRandomInitialSketch_ZeroOrNegative(t *testing.T) {
	s := newSpace([]core.Rule{optionalOnce("once")})
	assert.Empty(t, s.GetRandomInitialSketch(nil, 0))
	assert.Empty(t, s.GetRandomInitialSketch(nil, -2))
}

func TestGetRandomInitialSketch_DeterministicUnderSeed(t *testing.T) {
	for _, target := range []core.Target{core.DefaultHostTarget(), core.DefaultNVGPUTarget()} {
		tc := core.NewTuneContext(target, workload.MatMulBiasReLU(32, 32, 32))
		run := func() []*State {
			return NewSpace(tc).GetRandomInitialSketch(NewRand(42), 16)
		}
		a, b := run(), run()
		require.Len(t, b, len(a))
		for i := range a {
			assert.Equal(t, a[i].Trace, b[i].Trace)
			assert.Equal(t, a[i].Program.Fingerprint(), b[i].Program.Fingerprint())
		}
	}
}

func TestGetRandomInitialSketch_DoesNotTouchBaseline(t *testing.T) {
	tc := core.NewTuneContext(core.DefaultHostTarget(), workload.MatMulBiasReLU(16, 16, 16))
	NewSpace(tc, WithSeed(5)).GetRandomInitialSketch(nil, 8)
	assert.True(t, tc.Baseline.Equal(workload.MatMulBiasReLU(16, 16, 16)))
}

// legalityRecorder wraps a real rule and records its verdict at apply time.
type legalityRecorder struct {
	core.Rule
	mu   sync.Mutex
	seen []core.Verdict
}

func (r *legalityRecorder) ApplyRandom(rng *rand.Rand, p *ir.Module) *ir.Module {
	r.mu.Lock()
	r.seen = append(r.seen, r.Rule.Check(p))
	r.mu.Unlock()
	return r.Rule.ApplyRandom(rng, p)
}

func TestGetRandomInitialSketch_OnlyLegalRewrites(t *testing.T) {
	target := core.DefaultNVGPUTarget()
	var recorders []*legalityRecorder
	var catalog []core.Rule
	for _, r := range rules.Default(target) {
		rec := &legalityRecorder{Rule: r}
		recorders = append(recorders, rec)
		catalog = append(catalog, rec)
	}

	tc := core.NewTuneContext(target, workload.MatMulBiasReLU(32, 32, 32))
	s := NewSpace(tc, WithCatalog(catalog), WithSeed(9))
	s.GetRandomInitialSketch(nil, 25)

	applied := 0
	for _, rec := range recorders {
		for _, v := range rec.seen {
			assert.NotEqual(t, core.NotApplicable, v, rec.Name())
			applied++
		}
	}
	assert.Greater(t, applied, 0)
}

func TestGetRandomInitialSketch_MandatoryFirst(t *testing.T) {
	mandatory := &fakeRule{
		name:  "must",
		setup: true,
		verdict: func(p *ir.Module) core.Verdict {
			if p.Name == "base" {
				return core.ApplicableMandatory
			}
			return core.NotApplicable
		},
		rewrite: func(p *ir.Module) { p.Name = "must" },
	}
	s := newSpace([]core.Rule{alwaysOptional("opt"), mandatory}, WithDepth(2))
	for seed := uint64(0); seed < 20; seed++ {
		for _, st := range s.GetRandomInitialSketch(NewRand(seed), 2) {
			require.Equal(t, []string{"must", "opt"}, st.Trace)
		}
	}
}

func TestApply_PanicsOnIllegalRule(t *testing.T) {
	illegal := optionalOnce("tiled")
	s := newSpace([]core.Rule{illegal})
	st := NewState(baseline())
	st.Program.Blocks[0].TileLevel = 1

	assert.Panics(t, func() { s.apply(NewRand(1), st, illegal) })
	assert.Empty(t, illegal.seen)
}

func TestGetScheduleMutate_TwoRules(t *testing.T) {
	catalog := []core.Rule{renaming("a"), renaming("b")}
	model := &countingModel{costs: map[string]float64{"a": 3.0, "b": 7.0}}
	s := newSpace(catalog)

	st := NewStateFrom(baseline())
	st.InitRules(core.DefaultHostTarget(), catalog)

	seenCosts := map[float64]bool{}
	for seed := uint64(0); seed < 32; seed++ {
		before := model.calls
		out := s.GetScheduleMutate(NewRand(seed), st, model)

		assert.Equal(t, before+1, model.calls)
		assert.Contains(t, []float64{3.0, 7.0}, out.PredictedCost)
		assert.NotEqual(t, NotEvaluated, out.PredictedCost)
		assert.Equal(t, 1, out.Depth())
		seenCosts[out.PredictedCost] = true
	}
	assert.Len(t, seenCosts, 2, "both rules should be picked across seeds")
	assert.Equal(t, "base", st.Program.Name, "input state must not change")
	assert.Equal(t, NotEvaluated, st.PredictedCost)
}

func TestGetScheduleMutate_RecomputesRulesOfNewState(t *testing.T) {
	kept, dropped := optionalOnce("kept"), optionalOnce("dropped")
	s := newSpace([]core.Rule{kept})

	st := NewStateFrom(baseline())
	st.ApplicableRules = []core.Rule{dropped}

	out := s.GetScheduleMutate(nil, st, &countingModel{})
	require.Equal(t, []string{"dropped"}, out.Trace)
	require.Len(t, out.ApplicableRules, 1)
	assert.Equal(t, "kept", out.ApplicableRules[0].Name())
}

func TestGetScheduleMutate_FixedPoint(t *testing.T) {
	model := &countingModel{}
	s := newSpace([]core.Rule{optionalOnce("once")})

	// Rules are not refreshed implicitly: a state whose set is empty stays put
	// even though the catalog could rewrite its program.
	st := NewStateFrom(baseline())
	st.PredictedCost = 2.0
	out := s.GetScheduleMutate(nil, st, model)
	assert.True(t, out.Program.Equal(st.Program))
	assert.Equal(t, 2.0, out.PredictedCost)
	assert.NotSame(t, st, out)

	exhausted := NewStateFrom(baseline())
	exhausted.Program.Blocks[0].TileLevel = 1
	exhausted.InitRules(core.DefaultHostTarget(), s.Catalog())
	require.Len(t, exhausted.ApplicableRules, 1)
	out = s.GetScheduleMutate(nil, exhausted, model)
	assert.True(t, out.Program.Equal(exhausted.Program))
	assert.Equal(t, NotEvaluated, out.PredictedCost)

	assert.Equal(t, 0, model.calls)
}

type renameMutator struct{ to string }

func (m renameMutator) Mutate(st *State) *State {
	st.Program.Name = m.to
	st.Trace = append(st.Trace, "manual")
	return st
}

func TestGetScheduleMutate_ManualHook(t *testing.T) {
	model := &countingModel{costs: map[string]float64{"hand": 1.25}}
	catalog := []core.Rule{renaming("a")}

	passthrough := newSpace(catalog, WithManualMutator(PassthroughMutator{}))
	st := NewStateFrom(baseline())
	st.InitRules(core.DefaultHostTarget(), catalog)
	out := passthrough.GetScheduleMutate(nil, st, model)
	assert.True(t, out.Program.Equal(st.Program))
	assert.Equal(t, NotEvaluated, out.PredictedCost)
	assert.Equal(t, 0, model.calls)

	manual := newSpace(catalog, WithManualMutator(renameMutator{to: "hand"}))
	out = manual.GetScheduleMutate(nil, st, model)
	assert.Equal(t, "hand", out.Program.Name)
	assert.Equal(t, 1.25, out.PredictedCost)
	assert.Equal(t, []string{"manual"}, out.Trace)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, "base", st.Program.Name)
}

type recordingObserver struct {
	mu       sync.Mutex
	rules    map[string]int
	depths   []int
	outcomes map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{rules: map[string]int{}, outcomes: map[string]int{}}
}

func (o *recordingObserver) RuleApplied(rule string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rules[rule]++
}

func (o *recordingObserver) SketchBuilt(depth int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.depths = append(o.depths, depth)
}

func (o *recordingObserver) Mutated(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func TestObserver(t *testing.T) {
	obs := newRecordingObserver()
	s := newSpace([]core.Rule{optionalOnce("once")}, WithObserver(obs))

	sketches := s.GetRandomInitialSketch(nil, 4)
	assert.Equal(t, []int{1, 1, 1, 1}, obs.depths)
	assert.Equal(t, 4, obs.rules["once"])

	s.GetScheduleMutate(nil, sketches[0], &countingModel{})
	assert.Equal(t, 1, obs.outcomes[OutcomeFixedPoint])
}

func TestConcurrentSketchesWithIndependentSources(t *testing.T) {
	tc := core.NewTuneContext(core.DefaultHostTarget(), workload.MatMulBiasReLU(32, 32, 32))
	s := NewSpace(tc)

	const workers = 8
	got := make([][]*State, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = s.GetRandomInitialSketch(NewRand(uint64(i)), 4)
		}()
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		want := s.GetRandomInitialSketch(NewRand(uint64(i)), 4)
		for j := range want {
			assert.Equal(t, want[j].Trace, got[i][j].Trace)
			assert.True(t, want[j].Program.Equal(got[i][j].Program))
		}
	}
}

func TestDedup(t *testing.T) {
	a := NewStateFrom(baseline())
	b := NewStateFrom(baseline())
	c := NewStateFrom(baseline())
	c.Program.Blocks[0].TileLevel = 1

	out := Dedup([]*State{a, b, c})
	require.Len(t, out, 2)
	assert.Same(t, a, out[0])
	assert.Same(t, c, out[1])

	s := newSpace([]core.Rule{optionalOnce("once")})
	sketches := s.GetRandomInitialSketch(nil, 3)
	assert.Len(t, sketches, 3, "sketches are not deduplicated implicitly")
	assert.Len(t, Dedup(sketches), 1)
}
