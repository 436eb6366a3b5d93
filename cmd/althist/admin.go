package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shone114/alternate-history/internal/client"
	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/ui"
)

var triggerCmd = &cobra.Command{
	Use:     "trigger",
	Short:   "Run the next day-cycle on the server",
	GroupID: "admin",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		resp, err := apiClient.RunDay(ctx)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.State != "" {
				fmt.Fprintf(os.Stderr, "Day %d %s at step %s\n", apiErr.DayIndex, ui.RenderState(apiErr.State), apiErr.Step)
			}
			return err
		}
		if jsonOutput {
			return printJSON(stdout, resp)
		}
		printCycleResult(stdout, resp.Message, &resp.CycleResult)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	Short:   "Delete every day of the universe (keeps the universe itself)",
	GroupID: "admin",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("reset deletes all timeline records; pass --yes to confirm")
		}
		resp, err := apiClient.Reset(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, resp)
		}
		fmt.Fprintln(stdout, resp.Message)
		var parts []string
		for _, c := range model.DayCollections {
			if n, ok := resp.Deleted[c]; ok {
				parts = append(parts, fmt.Sprintf("%s=%d", c, n))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(stdout, "Deleted: %s\n", strings.Join(parts, " "))
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export the timeline to the configured destinations",
	GroupID: "admin",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := apiClient.Export(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, rep)
		}
		fmt.Fprintf(stdout, "Exported %d records (%d bytes)\n", rep.Records, rep.Bytes)
		for _, d := range rep.Destinations {
			fmt.Fprintf(stdout, "  %s %s\n", ui.RenderState("ok"), d)
		}
		for _, d := range rep.Failed {
			fmt.Fprintf(stdout, "  %s %s\n", ui.RenderState("FAILED"), d)
		}
		return nil
	},
}

func init() {
	triggerCmd.Flags().Duration("timeout", 15*time.Minute, "how long to wait for the cycle to finish")
	resetCmd.Flags().Bool("yes", false, "confirm the reset")
}
