package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/costmodel"
	"github.com/snow-ghost/autotune/ir"
	"github.com/snow-ghost/autotune/pkg/config"
	"github.com/snow-ghost/autotune/pkg/logging"
	"github.com/snow-ghost/autotune/pkg/observability"
	"github.com/snow-ghost/autotune/records"
	"github.com/snow-ghost/autotune/search"
	"github.com/snow-ghost/autotune/tuner"
	"github.com/snow-ghost/autotune/workload"
	"github.com/spf13/cobra"
)

type tuneOptions struct {
	configPath   string
	workload     string
	workloadFile string
	target       string
	seed         uint64
	top          int
	generations  int
	population   int
	workers      int
	depth        int
	recordsDir   string
	jsonOutput   bool
}

func newTuneCmd() *cobra.Command {
	opts := &tuneOptions{}
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Run an evolutionary schedule search over one workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTune(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&opts.workload, "workload", "", "built-in workload name")
	f.StringVar(&opts.workloadFile, "workload-file", "", "path to a YAML workload definition")
	f.StringVar(&opts.target, "target", "", "hardware target: cpu, arm or gpu")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed")
	f.IntVar(&opts.top, "top", 0, "number of schedules to report")
	f.IntVar(&opts.generations, "generations", 0, "number of evolutionary generations")
	f.IntVar(&opts.population, "population", 0, "population size")
	f.IntVar(&opts.workers, "workers", 0, "concurrent mutations")
	f.IntVar(&opts.depth, "depth", 0, "maximum rewrites per initial sketch")
	f.StringVar(&opts.recordsDir, "records", "", "directory of the tuning record store")
	f.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")
	return cmd
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command, opts *tuneOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("workload") {
		cfg.Search.Workload = opts.workload
		cfg.Search.WorkloadFile = ""
	}
	if f.Changed("workload-file") {
		cfg.Search.WorkloadFile = opts.workloadFile
	}
	if f.Changed("target") {
		cfg.Search.Target = opts.target
	}
	if f.Changed("depth") {
		cfg.Search.Depth = opts.depth
	}
	if f.Changed("seed") {
		cfg.Tuner.Seed = opts.seed
	}
	if f.Changed("top") {
		cfg.Tuner.TopK = opts.top
	}
	if f.Changed("generations") {
		cfg.Tuner.Generations = opts.generations
	}
	if f.Changed("population") {
		cfg.Tuner.Population = opts.population
	}
	if f.Changed("workers") {
		cfg.Tuner.Workers = opts.workers
	}
	if f.Changed("records") {
		cfg.Records.Dir = opts.recordsDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadBaseline(cfg *config.Config) (*ir.Module, error) {
	if cfg.Search.WorkloadFile != "" {
		return workload.Load(cfg.Search.WorkloadFile)
	}
	return workload.Get(cfg.Search.Workload)
}

func runTune(cmd *cobra.Command, opts *tuneOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	obs, err := observability.NewManager(observability.Config{
		Logging:     cfg.Logging,
		Tracing:     cfg.Tracing,
		MetricsAddr: cfg.Metrics.Addr,
	})
	if err != nil {
		return err
	}
	logger := obs.GetLogger()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Observability shutdown failed", "error", err.Error())
		}
	}()

	target, err := core.TargetByName(cfg.Search.Target)
	if err != nil {
		return err
	}
	baseline, err := loadBaseline(cfg)
	if err != nil {
		return err
	}

	searchMetrics := obs.GetMetrics()
	model, err := costmodel.NewCached(costmodel.NewAnalytical(target), cfg.CostModel.CacheSize)
	if err != nil {
		return err
	}
	space := search.NewSpace(
		core.NewTuneContext(target, baseline),
		search.WithDepth(cfg.Search.Depth),
		search.WithSeed(cfg.Tuner.Seed),
		search.WithLogger(logger.GetZap()),
		search.WithObserver(searchMetrics),
	)
	evo := tuner.New(space, model, tuner.Config{
		Population:  cfg.Tuner.Population,
		Generations: cfg.Tuner.Generations,
		TopK:        cfg.Tuner.TopK,
		Workers:     cfg.Tuner.Workers,
		Seed:        cfg.Tuner.Seed,
		Dedup:       cfg.Tuner.Dedup,
	},
		tuner.WithLogger(logger),
		tuner.WithTracer(obs.GetTracer()),
		tuner.WithMetrics(searchMetrics),
	)

	res, runErr := evo.Run(ctx)
	if res == nil {
		return runErr
	}

	if cfg.Records.Dir != "" {
		if err := saveRecords(cfg, logger, baseline, target, res); err != nil {
			return errors.Join(runErr, err)
		}
	}

	var printErr error
	if opts.jsonOutput {
		printErr = printJSON(cmd.OutOrStdout(), baseline, target, res)
	} else {
		printText(cmd.OutOrStdout(), baseline, target, res)
	}
	return errors.Join(runErr, printErr)
}

func saveRecords(cfg *config.Config, logger *logging.Logger, baseline *ir.Module, target core.Target, res *tuner.Result) error {
	store, err := records.NewStore(cfg.Records.Dir, logger.GetZap())
	if err != nil {
		return err
	}
	keep := min(cfg.Records.Keep, len(res.Best))
	for _, st := range res.Best[:keep] {
		if err := store.Save(records.NewRecord(res.RunID, baseline, target, st)); err != nil {
			return err
		}
	}
	logger.Info("Tuning records saved", "dir", cfg.Records.Dir, "count", keep)
	return nil
}

func printText(w io.Writer, baseline *ir.Module, target core.Target, res *tuner.Result) {
	fmt.Fprintf(w, "run %s: %s on %s, %d generations, %d evaluations in %s\n",
		res.RunID, baseline.Name, target.Name, res.Generations, res.Evaluations, res.Duration.Round(time.Millisecond))
	for i, st := range res.Best {
		trace := strings.Join(st.Trace, " -> ")
		if trace == "" {
			trace = "(baseline)"
		}
		fmt.Fprintf(w, "%2d  cost %12.3f  %s\n", i+1, st.PredictedCost, trace)
	}
}

type jsonCandidate struct {
	Rank    int        `json:"rank"`
	Cost    float64    `json:"predicted_cost"`
	Trace   []string   `json:"trace"`
	Program *ir.Module `json:"program"`
}

type jsonResult struct {
	RunID       string          `json:"run_id"`
	Workload    string          `json:"workload"`
	Target      string          `json:"target"`
	Generations int             `json:"generations"`
	Evaluations int64           `json:"evaluations"`
	DurationMS  float64         `json:"duration_ms"`
	Best        []jsonCandidate `json:"best"`
}

func printJSON(w io.Writer, baseline *ir.Module, target core.Target, res *tuner.Result) error {
	out := jsonResult{
		RunID:       res.RunID,
		Workload:    baseline.Name,
		Target:      target.Name,
		Generations: res.Generations,
		Evaluations: res.Evaluations,
		DurationMS:  float64(res.Duration.Nanoseconds()) / 1e6,
	}
	for i, st := range res.Best {
		out.Best = append(out.Best, jsonCandidate{
			Rank:    i + 1,
			Cost:    st.PredictedCost,
			Trace:   st.Trace,
			Program: st.Program,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
