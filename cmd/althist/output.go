package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

// stdout is swapped out by tests.
var stdout io.Writer = os.Stdout

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// headline picks the most descriptive short field of an event payload.
func headline(p model.Payload) string {
	for _, key := range []string{"title", "headline", "event_title", "summary"} {
		if s := p.Get(key, ""); s != "" {
			return s
		}
	}
	return ""
}

func printUniverse(w io.Writer, u *model.Universe) {
	fmt.Fprintf(w, "ID:       %s\n", u.ID)
	fmt.Fprintf(w, "Title:    %s\n", u.Title)
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:  %s\n", u.CreatedAt.Format(timeLayout))
	}
	if seed := u.SeedJSON(); seed != "" {
		fmt.Fprintf(w, "Seed:\n%s\n", indent(seed, "  "))
	}
}

func printEvent(w io.Writer, e *model.TimelineEvent) {
	fmt.Fprintf(w, "Day:       %d\n", e.DayIndex)
	fmt.Fprintf(w, "Subtopic:  %s\n", e.Subtopic)
	if h := headline(e.Event); h != "" {
		fmt.Fprintf(w, "Title:     %s\n", h)
	}
	if !e.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:   %s\n", e.CreatedAt.Format(timeLayout))
	}
	if len(e.Event) > 0 {
		fmt.Fprintf(w, "Event:\n%s\n", indent(e.Event.String(), "  "))
	}
}

func printTimelineTable(w io.Writer, events []*model.TimelineEvent) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSUBTOPIC\tTITLE\tCREATED")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			e.DayIndex,
			ui.Truncate(e.Subtopic, 30),
			ui.Truncate(headline(e.Event), 50),
			e.CreatedAt.Format(timeLayout),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d events\n", len(events))
}

func printSubtopic(w io.Writer, s *model.Subtopic) {
	fmt.Fprintf(w, "Day:       %d\n", s.DayIndex)
	fmt.Fprintf(w, "Subtopic:  %s\n", s.SelectedSubtopic)
	fmt.Fprintf(w, "Reason:    %s\n", s.Reason)
	if len(s.Tags) > 0 {
		fmt.Fprintf(w, "Tags:      %s\n", strings.Join(s.Tags, ", "))
	}
}

func printSubtopicTable(w io.Writer, subs []*model.Subtopic) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSUBTOPIC\tTAGS")
	for _, s := range subs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.DayIndex, ui.Truncate(s.SelectedSubtopic, 40), strings.Join(s.Tags, ","))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d subtopics\n", len(subs))
}

func printProposalTable(w io.Writer, props []*model.Proposal) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tROLE\tSUBTOPIC\tTITLE")
	for _, p := range props {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			p.DayIndex,
			p.Role,
			ui.Truncate(p.Subtopic, 30),
			ui.Truncate(headline(p.Payload), 50),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d proposals\n", len(props))
}

func printJudgment(w io.Writer, j *model.Judgment) {
	fmt.Fprintf(w, "Day:       %d\n", j.DayIndex)
	fmt.Fprintf(w, "Decision:  %s\n", j.Decision)
	fmt.Fprintf(w, "Reason:    %s\n", j.Reason)
}

func printJudgmentTable(w io.Writer, js []*model.Judgment) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tDECISION\tREASON")
	for _, j := range js {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", j.DayIndex, j.Decision, ui.Truncate(j.Reason, 60))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d judgments\n", len(js))
}

// printCycleResult summarises a committed day-cycle.
func printCycleResult(w io.Writer, message string, r *model.CycleResult) {
	if message != "" {
		fmt.Fprintln(w, message)
	}
	fmt.Fprintf(w, "Run:       %s\n", r.RunID)
	fmt.Fprintf(w, "Day:       %d  %s\n", r.DayIndex, ui.RenderState("COMMITTED"))
	if r.Subtopic != nil {
		fmt.Fprintf(w, "Subtopic:  %s\n", r.Subtopic.SelectedSubtopic)
	}
	for _, p := range []struct {
		label string
		prop  *model.Proposal
	}{{"Proposal A", r.ProposalA}, {"Proposal B", r.ProposalB}} {
		if p.prop == nil {
			fmt.Fprintf(w, "%s: %s\n", p.label, ui.RenderMuted("(none)"))
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", p.label, headline(p.prop.Payload))
	}
	if r.Judgment != nil {
		fmt.Fprintf(w, "Decision:  %s\n", r.Judgment.Decision)
	}
	if r.TimelineEvent != nil {
		fmt.Fprintf(w, "Event:     %s\n", headline(r.TimelineEvent.Event))
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
