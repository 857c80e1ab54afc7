package main

import (
	"fmt"

	"github.com/snow-ghost/autotune/workload"
	"github.com/spf13/cobra"
)

func newWorkloadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workloads",
		Short: "List the built-in workloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range workload.Names() {
				p, err := workload.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %d blocks\n", name, len(p.Blocks))
			}
			return nil
		},
	}
}
