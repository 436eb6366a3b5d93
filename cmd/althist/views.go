package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shone114/alternate-history/internal/client"
	"github.com/shone114/alternate-history/internal/model"
)

// addListFlags registers the paging flags shared by every list command.
func addListFlags(cmd *cobra.Command) {
	cmd.Flags().Int("skip", 0, "number of records to skip")
	cmd.Flags().IntP("limit", "n", model.DefaultPageLimit, "maximum number of records (max 100)")
	cmd.Flags().Bool("asc", false, "oldest day first")
}

func listRequest(cmd *cobra.Command) *client.ListRequest {
	skip, _ := cmd.Flags().GetInt("skip")
	limit, _ := cmd.Flags().GetInt("limit")
	asc, _ := cmd.Flags().GetBool("asc")
	req := &client.ListRequest{Skip: skip, Limit: limit, Order: model.SortDesc}
	if asc {
		req.Order = model.SortAsc
	}
	return req
}

// optionalDay parses the optional <day> argument. Zero means "not given".
func optionalDay(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	day, err := strconv.Atoi(args[0])
	if err != nil || day < 1 {
		return 0, fmt.Errorf("invalid day %q: must be a positive integer", args[0])
	}
	return day, nil
}

var universeCmd = &cobra.Command{
	Use:     "universe",
	Short:   "Show the universe and its seed",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := apiClient.Universe(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, u)
		}
		printUniverse(stdout, u)
		return nil
	},
}

var timelineCmd = &cobra.Command{
	Use:     "timeline",
	Short:   "List committed timeline events",
	GroupID: "views",
	Example: `  althist timeline
  althist timeline --asc --limit 100`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := apiClient.Timeline(context.Background(), listRequest(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, events)
		}
		printTimelineTable(stdout, events)
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:     "latest",
	Short:   "Show the most recent timeline event",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := apiClient.LatestEvent(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, e)
		}
		printEvent(stdout, e)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <day>",
	Short:   "Show the timeline event of one day",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := optionalDay(args)
		if err != nil {
			return err
		}
		e, err := apiClient.Event(context.Background(), day)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, e)
		}
		printEvent(stdout, e)
		return nil
	},
}

var subtopicsCmd = &cobra.Command{
	Use:     "subtopics [<day>]",
	Short:   "List chosen subtopics, or show one day's",
	GroupID: "views",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := optionalDay(args)
		if err != nil {
			return err
		}
		ctx := context.Background()
		if day > 0 {
			s, err := apiClient.Subtopic(ctx, day)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(stdout, s)
			}
			printSubtopic(stdout, s)
			return nil
		}
		subs, err := apiClient.Subtopics(ctx, listRequest(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, subs)
		}
		printSubtopicTable(stdout, subs)
		return nil
	},
}

var proposalsCmd = &cobra.Command{
	Use:     "proposals [<day>]",
	Short:   "List generator proposals, or both proposals of one day",
	GroupID: "views",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := optionalDay(args)
		if err != nil {
			return err
		}
		ctx := context.Background()
		var props []*model.Proposal
		if day > 0 {
			props, err = apiClient.DayProposals(ctx, day)
		} else {
			props, err = apiClient.Proposals(ctx, listRequest(cmd))
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, props)
		}
		printProposalTable(stdout, props)
		return nil
	},
}

var judgmentsCmd = &cobra.Command{
	Use:     "judgments [<day>]",
	Short:   "List arbiter decisions, or show one day's",
	GroupID: "views",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := optionalDay(args)
		if err != nil {
			return err
		}
		ctx := context.Background()
		if day > 0 {
			j, err := apiClient.Judgment(ctx, day)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(stdout, j)
			}
			printJudgment(stdout, j)
			return nil
		}
		js, err := apiClient.Judgments(ctx, listRequest(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stdout, js)
		}
		printJudgmentTable(stdout, js)
		return nil
	},
}

func init() {
	addListFlags(timelineCmd)
	addListFlags(subtopicsCmd)
	addListFlags(proposalsCmd)
	addListFlags(judgmentsCmd)
}
