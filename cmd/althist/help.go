package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shone114/alternate-history/internal/ui"
)

// helpRule rewrites every match of re in Cobra's plain help text.
type helpRule struct {
	re      *regexp.Regexp
	replace func(groups []string) string
}

var helpRules = []helpRule{
	// Section headers such as "Views:" or "Flags:".
	{
		re:      regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`),
		replace: func(g []string) string { return ui.RenderAccent(strings.TrimSpace(g[0])) },
	},
	// Example invocations: "  althist timeline --limit 5".
	{
		re:      regexp.MustCompile(`(?m)^(\s+)(althist(?: [^\n]*)?)$`),
		replace: func(g []string) string { return g[1] + ui.RenderCommand(g[2]) },
	},
	// Command names in a command list.
	{
		re:      regexp.MustCompile(`(?m)^(  )([a-z][\w-]*)(  )`),
		replace: func(g []string) string { return g[1] + ui.RenderCommand(g[2]) + g[3] },
	},
	// Flag value types: "--limit int", "--interval duration".
	{
		re:      regexp.MustCompile(`(--?\S+\s+)(string|int|duration)\b`),
		replace: func(g []string) string { return g[1] + ui.RenderMuted(g[2]) },
	},
	// Defaults: (default "http://localhost:8080") or (default 20).
	{
		re:      regexp.MustCompile(`\(default [^)]*\)`),
		replace: func(g []string) string { return ui.RenderMuted(g[0]) },
	},
}

// colorizedHelpFunc renders Cobra's usage text and colors it when stdout
// supports ANSI escapes.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			cmd.SetOut(out)
			_ = cmd.Usage()
			return
		}

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)

		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

// colorizeHelp applies helpRules in order.
func colorizeHelp(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			return rule.replace(rule.re.FindStringSubmatch(match))
		})
	}
	return s
}
