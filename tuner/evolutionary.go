package tuner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
	"github.com/snow-ghost/autotune/pkg/cache"
	"github.com/snow-ghost/autotune/pkg/logging"
	"github.com/snow-ghost/autotune/pkg/metrics"
	"github.com/snow-ghost/autotune/pkg/tracing"
	"github.com/snow-ghost/autotune/search"
	"golang.org/x/sync/errgroup"
)

// Config drives one evolutionary search.
type Config struct {
	Population  int
	Generations int
	TopK        int
	// Workers bounds the number of concurrent mutations.
	Workers int
	Seed    uint64
	// Dedup drops structurally equal candidates after every merge.
	Dedup bool
}

// Result is the outcome of a run.
type Result struct {
	RunID string
	// Best holds at most TopK states, cheapest first.
	Best        []*search.State
	Generations int
	// Evaluations counts cost estimates requested by the search, including
	// those a caching model answers from memory.
	Evaluations int64
	Duration    time.Duration
}

// EvolutionarySearch sketches a population from a search space, then
// repeatedly mutates every member and keeps the cheapest candidates.
// For a fixed seed the result does not depend on Workers or on goroutine
// scheduling.
type EvolutionarySearch struct {
	space   *search.Space
	model   core.CostModel
	cfg     Config
	logger  *logging.Logger
	tracer  *tracing.Tracer
	metrics *metrics.SearchMetrics
}

type Option func(*EvolutionarySearch)

func WithLogger(logger *logging.Logger) Option {
	return func(e *EvolutionarySearch) { e.logger = logger }
}

func WithTracer(tracer *tracing.Tracer) Option {
	return func(e *EvolutionarySearch) { e.tracer = tracer }
}

func WithMetrics(m *metrics.SearchMetrics) Option {
	return func(e *EvolutionarySearch) { e.metrics = m }
}

func New(space *search.Space, model core.CostModel, cfg Config, opts ...Option) *EvolutionarySearch {
	e := &EvolutionarySearch{
		space:  space,
		model:  model,
		cfg:    cfg,
		logger: logging.NewNop(),
		tracer: tracing.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// countingModel counts cost model invocations across goroutines.
type countingModel struct {
	inner core.CostModel
	calls atomic.Int64
}

func (c *countingModel) Estimate(p *ir.Module) float64 {
	c.calls.Add(1)
	return c.inner.Estimate(p)
}

func (e *EvolutionarySearch) validate() error {
	switch {
	case e.cfg.Population < 1:
		return fmt.Errorf("population must be positive, got %d", e.cfg.Population)
	case e.cfg.Generations < 0:
		return fmt.Errorf("generations must not be negative, got %d", e.cfg.Generations)
	case e.cfg.TopK < 1:
		return fmt.Errorf("top k must be positive, got %d", e.cfg.TopK)
	case e.cfg.Workers < 1:
		return fmt.Errorf("workers must be positive, got %d", e.cfg.Workers)
	}
	return nil
}

// Run executes the search. On cancellation it returns the best states found
// so far together with the context error.
func (e *EvolutionarySearch) Run(ctx context.Context) (*Result, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	tc := e.space.TuneContext()
	result := &Result{RunID: uuid.NewString()}
	logger := e.logger.WithRunID(result.RunID)

	ctx, span := e.tracer.StartRunSpan(ctx, result.RunID, tc.Baseline.Name, tc.Target.Name)
	defer span.End()
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		logger = logger.WithFields(map[string]interface{}{"trace_id": traceID})
	}

	if err := ctx.Err(); err != nil {
		tracing.RecordSpanError(span, err)
		return nil, err
	}

	model := &countingModel{inner: e.model}
	population := e.sketch(ctx, model)
	logger.LogSketches(tc.Baseline.Name, tc.Target.Name, e.cfg.Population, len(population))

	var runErr error
	for gen := 0; gen < e.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		next, err := e.generation(ctx, gen, population, model)
		if err != nil {
			runErr = err
			break
		}
		population = next
		result.Generations++
		logger.LogGeneration(gen, len(population), population[0].PredictedCost, time.Since(start))
	}

	result.Best = population[:min(e.cfg.TopK, len(population))]
	result.Evaluations = model.calls.Load()
	result.Duration = time.Since(start)

	hitRate := e.recordCacheStats()
	tracing.RecordSpanCost(span, result.Best[0].PredictedCost)
	tracing.RecordSpanDuration(span, result.Duration)
	if runErr != nil {
		tracing.RecordSpanError(span, runErr)
		logger.Warn("Tuning run interrupted", "generations", result.Generations, "error", runErr.Error())
		return result, runErr
	}
	tracing.RecordSpanSuccess(span)
	logger.LogRunResult(result.RunID, int(result.Evaluations), result.Best[0].PredictedCost, hitRate, result.Duration)
	return result, nil
}

// sketch builds and evaluates the initial population.
func (e *EvolutionarySearch) sketch(ctx context.Context, model core.CostModel) []*search.State {
	_, span := e.tracer.StartSpan(ctx, "tune.sketch")
	defer span.End()

	population := e.space.GetRandomInitialSketch(search.NewRand(e.cfg.Seed), e.cfg.Population)
	for _, st := range population {
		st.PredictedCost = model.Estimate(st.Program)
	}
	population = e.survivors(population)
	tracing.RecordSpanCost(span, population[0].PredictedCost)
	tracing.RecordSpanSuccess(span)
	return population
}

// generation mutates every member of population once and merges parents
// with children. Each mutation draws from its own generator keyed by
// (seed, generation, index).
func (e *EvolutionarySearch) generation(ctx context.Context, gen int, population []*search.State, model core.CostModel) ([]*search.State, error) {
	genStart := time.Now()
	ctx, span := e.tracer.StartGenerationSpan(ctx, gen, len(population))
	defer span.End()

	children := make([]*search.State, len(population))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, parent := range population {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(e.cfg.Seed, uint64(gen)<<32|uint64(i)))
			children[i] = e.space.GetScheduleMutate(rng, parent, model)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracing.RecordSpanError(span, err)
		return nil, err
	}

	merged := make([]*search.State, 0, 2*len(population))
	merged = append(merged, population...)
	merged = append(merged, children...)
	merged = e.survivors(merged)

	best := merged[0].PredictedCost
	tracing.RecordSpanCost(span, best)
	tracing.RecordSpanDuration(span, time.Since(genStart))
	tracing.RecordSpanSuccess(span)
	if e.metrics != nil {
		e.metrics.RecordGeneration(best)
	}
	return merged, nil
}

// survivors optionally deduplicates, sorts cheapest first and truncates to
// the population size.
func (e *EvolutionarySearch) survivors(states []*search.State) []*search.State {
	if e.cfg.Dedup {
		states = search.Dedup(states)
	}
	sort.Stable(search.ByCost(states))
	if len(states) > e.cfg.Population {
		states = states[:e.cfg.Population]
	}
	return states
}

func (e *EvolutionarySearch) recordCacheStats() float64 {
	stater, ok := e.model.(interface{ Stats() cache.Stats })
	if !ok {
		return 0
	}
	rate := stater.Stats().HitRate
	if e.metrics != nil {
		e.metrics.RecordCacheHitRate(rate)
	}
	return rate
}

// ErrNoCandidates is returned by BestState when a result holds no states.
var ErrNoCandidates = errors.New("tuner: no candidates")

// BestState returns the cheapest state of r.
func (r *Result) BestState() (*search.State, error) {
	if r == nil || len(r.Best) == 0 {
		return nil, ErrNoCandidates
	}
	return r.Best[0], nil
}
