package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout gets ANSI colors. NO_COLOR wins,
// then CLICOLOR_FORCE=1, then CLICOLOR=0, then whether stdout is a TTY.
func ShouldUseColor() bool {
	return colorFor(os.Getenv, os.Stdout)
}

func colorFor(getenv func(string) string, out *os.File) bool {
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case env("CLICOLOR_FORCE") == "1":
		return true
	case env("CLICOLOR") == "0":
		return false
	}
	return out != nil && term.IsTerminal(int(out.Fd()))
}
