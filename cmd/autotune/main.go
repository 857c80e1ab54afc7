package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	exitSuccess = 0
	exitError   = 1
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autotune",
		Short:         "Search schedule rewrites of tensor programs for the cheapest variant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTuneCmd(), newWorkloadsCmd(), newRecordsCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "autotune: %v\n", err)
		stop()
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
