package main

import (
	"fmt"
	"strings"

	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/records"
	"github.com/snow-ghost/autotune/workload"
	"github.com/spf13/cobra"
)

type recordsOptions struct {
	dir      string
	workload string
	target   string
	top      int
}

func newRecordsCmd() *cobra.Command {
	opts := &recordsOptions{}
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List saved tuning records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", "", "directory of the tuning record store")
	f.StringVar(&opts.workload, "workload", "", "only show records of this built-in workload")
	f.StringVar(&opts.target, "target", "cpu", "target used with --workload")
	f.IntVar(&opts.top, "top", 0, "records per task; 0 shows all")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func runRecords(cmd *cobra.Command, opts *recordsOptions) error {
	store, err := records.NewStore(opts.dir, nil)
	if err != nil {
		return err
	}

	var list []*records.Record
	if opts.workload != "" {
		baseline, err := workload.Get(opts.workload)
		if err != nil {
			return err
		}
		target, err := core.TargetByName(opts.target)
		if err != nil {
			return err
		}
		list = store.Best(baseline.Fingerprint(), target.Name, opts.top)
	} else {
		list = store.List()
	}

	w := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(w, "no records")
		return nil
	}
	for _, rec := range list {
		trace := strings.Join(rec.Trace, " -> ")
		if trace == "" {
			trace = "(baseline)"
		}
		fmt.Fprintf(w, "%-18s %-6s cost %12.3f  %s  %s\n", rec.Workload, rec.Target, rec.PredictedCost, rec.ID, trace)
	}
	return nil
}
