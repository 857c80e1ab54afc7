package search

import (
	"fmt"
	"math/rand/v2"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/rules"
	"go.uber.org/zap"
)

// DefaultDepth bounds the number of rewrites composing one initial sketch.
const DefaultDepth = 6

// Mutation outcomes reported to observers.
const (
	OutcomeApplied    = "applied"
	OutcomeFixedPoint = "fixed_point"
	OutcomeManual     = "manual"
)

// Observer is notified of search events. Implementations must be safe for
// concurrent use when the space is shared across goroutines.
type Observer interface {
	RuleApplied(rule string)
	SketchBuilt(depth int)
	Mutated(outcome string)
}

// ManualMutator applies hand-written schedule transforms. It receives a
// private copy of the state and returns the state to hand back; returning
// its input unchanged is a valid no-op.
type ManualMutator interface {
	Mutate(state *State) *State
}

// PassthroughMutator is the minimal manual hook: it changes nothing.
type PassthroughMutator struct{}

func (PassthroughMutator) Mutate(state *State) *State { return state }

// Space generates and mutates candidate schedules for one tuning task.
type Space struct {
	tc       *core.TuneContext
	depth    int
	catalog  []core.Rule
	rng      *rand.Rand
	manual   ManualMutator
	logger   *zap.Logger
	observer Observer
}

type Option func(*Space)

// WithDepth sets the maximum number of rewrites per initial sketch.
func WithDepth(depth int) Option {
	return func(s *Space) {
		if depth >= 0 {
			s.depth = depth
		}
	}
}

// WithCatalog replaces the rule catalog. Order is registration order.
func WithCatalog(catalog []core.Rule) Option {
	return func(s *Space) { s.catalog = catalog }
}

// WithRand sets the source used when a call passes a nil generator.
func WithRand(rng *rand.Rand) Option {
	return func(s *Space) { s.rng = rng }
}

func WithSeed(seed uint64) Option {
	return WithRand(NewRand(seed))
}

func WithManualMutator(m ManualMutator) Option {
	return func(s *Space) { s.manual = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Space) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *Space) { s.observer = o }
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSpace builds a search space over tc, which must outlive it. Without
// options it uses the default rule catalog for tc's target, DefaultDepth
// and a randomly seeded generator.
func NewSpace(tc *core.TuneContext, opts ...Option) *Space {
	s := &Space{
		tc:     tc,
		depth:  DefaultDepth,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = rules.Default(tc.Target)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

func (s *Space) Depth() int                     { return s.depth }
func (s *Space) Catalog() []core.Rule           { return s.catalog }
func (s *Space) TuneContext() *core.TuneContext { return s.tc }

// GetRandomInitialSketch builds num independent sketches. Each starts at
// the baseline and applies up to Depth randomly chosen legal rewrites,
// stopping early at a fixed point. Sketches are not evaluated and not
// deduplicated.
//
// rng is used for every random choice; nil falls back to the space's own
// generator. Concurrent callers must pass distinct generators.
func (s *Space) GetRandomInitialSketch(rng *rand.Rand, num int) []*State {
	rng = s.source(rng)
	sketches := make([]*State, 0, max(num, 0))
	for i := 0; i < num; i++ {
		state := NewStateFrom(s.tc.Baseline)
		state.InitRules(s.tc.Target, s.catalog)
		for step := 0; step < s.depth; step++ {
			rule, ok := s.pickRule(rng, state)
			if !ok {
				break
			}
			state = s.apply(rng, state, rule)
		}
		s.logger.Debug("sketch built",
			zap.Int("index", i),
			zap.Int("depth", state.Depth()),
			zap.Strings("trace", state.Trace),
		)
		if s.observer != nil {
			s.observer.SketchBuilt(state.Depth())
		}
		sketches = append(sketches, state)
	}
	return sketches
}

// GetScheduleMutate returns a one-step mutation of state. When a manual
// mutator is configured it decides the result; otherwise one applicable
// rule is applied at random. A fresh state is always returned. Its cost
// comes from model exactly when its program differs from the input's;
// otherwise it is a copy of the input and model is not called.
func (s *Space) GetScheduleMutate(rng *rand.Rand, state *State, model core.CostModel) *State {
	if s.manual != nil {
		return s.manualScheduleMutate(state, model)
	}
	return s.randomScheduleMutate(s.source(rng), state, model)
}

func (s *Space) manualScheduleMutate(state *State, model core.CostModel) *State {
	out := s.manual.Mutate(state.Clone())
	if out == nil || out.Program.Equal(state.Program) {
		s.notifyMutated(OutcomeFixedPoint)
		return state.Clone()
	}
	next := NewState(out.Program)
	next.InitRules(s.tc.Target, s.catalog)
	next.Trace = out.Trace
	next.PredictedCost = model.Estimate(next.Program)
	s.notifyMutated(OutcomeManual)
	return next
}

func (s *Space) randomScheduleMutate(rng *rand.Rand, state *State, model core.CostModel) *State {
	rule, ok := s.pickRule(rng, state)
	if !ok {
		s.logger.Debug("mutation reached fixed point", zap.Int("depth", state.Depth()))
		s.notifyMutated(OutcomeFixedPoint)
		return state.Clone()
	}
	next := s.apply(rng, state, rule)
	next.PredictedCost = model.Estimate(next.Program)
	s.logger.Debug("mutation applied",
		zap.String("rule", rule.Name()),
		zap.Float64("predicted_cost", next.PredictedCost),
	)
	s.notifyMutated(OutcomeApplied)
	return next
}

// pickRule chooses among the state's rules whose verdict is not
// NotApplicable. Mandatory rules shadow optional ones; within the winning
// tier the choice is uniform over registration order.
func (s *Space) pickRule(rng *rand.Rand, state *State) (core.Rule, bool) {
	var mandatory, optional []core.Rule
	for _, r := range state.ApplicableRules {
		switch r.Check(state.Program) {
		case core.ApplicableMandatory:
			mandatory = append(mandatory, r)
		case core.ApplicableOptional:
			optional = append(optional, r)
		}
	}
	tier := optional
	if len(mandatory) > 0 {
		tier = mandatory
	}
	if len(tier) == 0 {
		return nil, false
	}
	return tier[rng.IntN(len(tier))], true
}

// apply rewrites state with rule into a new state whose applicable rules
// are recomputed. It panics if rule rejects the program.
func (s *Space) apply(rng *rand.Rand, state *State, rule core.Rule) *State {
	if v := rule.Check(state.Program); v == core.NotApplicable {
		panic(fmt.Sprintf("search: rule %s applied where it is not applicable (depth %d)", rule.Name(), state.Depth()))
	}
	next := NewState(rule.ApplyRandom(rng, state.Program))
	next.InitRules(s.tc.Target, s.catalog)
	next.Trace = append(append(make([]string, 0, len(state.Trace)+1), state.Trace...), rule.Name())
	if s.observer != nil {
		s.observer.RuleApplied(rule.Name())
	}
	return next
}

func (s *Space) notifyMutated(outcome string) {
	if s.observer != nil {
		s.observer.Mutated(outcome)
	}
}

func (s *Space) source(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return s.rng
}

// Dedup drops states whose program is structurally equal to an earlier
// one, keeping first occurrences in order. The search space never calls
// it; drivers opt in.
func Dedup(states []*State) []*State {
	seen := make(map[string]struct{}, len(states))
	out := make([]*State, 0, len(states))
	for _, st := range states {
		fp := st.Program.Fingerprint()
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, st)
	}
	return out
}
