package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/config"
	"github.com/shone114/alternate-history/internal/pipeline"
	"github.com/shone114/alternate-history/internal/ui"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run one day-cycle in-process against the configured store",
	GroupID: "system",
	Long: `Run one day-cycle without a server. The command reads the same
ALTHIST_* environment as serve, runs the next day and exits. A failed cycle
exits non-zero.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.LogFormat)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if verbose {
			a.pipeline.AddObserver(pipeline.ObserverFunc(func(t pipeline.Transition) {
				fmt.Fprintf(os.Stderr, "day %d: %s -> %s\n", t.DayIndex, t.From, ui.RenderState(string(t.To)))
			}))
		}

		res, err := a.pipeline.RunDay(ctx)
		if err != nil {
			if ce, ok := pipeline.AsCycleError(err); ok {
				logger.Error("day-cycle failed",
					zap.Int("day_index", ce.DayIndex),
					zap.String("state", string(ce.State)),
					zap.String("step", string(ce.Step)),
					zap.Error(ce.Err))
			}
			return err
		}
		if jsonOutput {
			return printJSON(stdout, res)
		}
		printCycleResult(stdout, fmt.Sprintf("Day %d simulation completed successfully", res.DayIndex), res)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("verbose", "v", false, "print state transitions to stderr")
}
