// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package main provides the weft command line interface.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewCLI builds the weft command tree.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "weft",
		Short: "Computation cache and lazy fusion web for tensor primitives",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log cache and fusion activity")

	cobra.EnableCommandSorting = false

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a residual block end to end",
		Long: "Run a small residual block twice on one stream, showing the three\n" +
			"fusion rules (activation, normalization fold, residual sum) and the\n" +
			"computation cache absorbing the second pass. Pass -v to watch the\n" +
			"cache and web decide.",
		RunE: runDemo,
	}
	demoCmd.Flags().Int("batch", 1, "Batch size")
	demoCmd.Flags().Int("size", 32, "Spatial input size")
	demoCmd.Flags().Int64("seed", 1, "Seed for synthetic inputs")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure cached vs cold pipeline latency",
		Long: "Run a conv/relu/pool pipeline repeatedly on concurrent streams\n" +
			"sharing one engine, and report first-pass (compile) against\n" +
			"steady-state (cache reuse) latency.",
		RunE: runBench,
	}
	benchCmd.Flags().Int("streams", 4, "Concurrent streams, one goroutine each")
	benchCmd.Flags().Int("iters", 100, "Iterations per stream")
	benchCmd.Flags().Int("batch", 1, "Batch size")
	benchCmd.Flags().Int("size", 64, "Spatial input size")
	benchCmd.Flags().Bool("eager", false, "Execute every operator at call time")
	benchCmd.Flags().Bool("no-fusion", false, "Keep the stream lazy but disable fusion")

	rootCmd.AddCommand(
		demoCmd,
		benchCmd,
	)

	return rootCmd
}

func main() {
	cobra.CheckErr(NewCLI().ExecuteContext(context.Background()))
}
