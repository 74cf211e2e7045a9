package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/withObsrvr/whr-pipeline/internal/cli/runner"
)

// printResult writes the colored report of one pipeline.
func printResult(w io.Writer, res *runner.Result) {
	if res == nil {
		return
	}
	color.New(color.FgCyan, color.Bold).Fprintf(w, "\n%s\n", res.Pipeline)
	fmt.Fprintln(w, strings.Repeat("─", 40))
	for _, line := range res.Summary {
		fmt.Fprintf(w, "  %s\n", line)
	}
	for _, warning := range res.Warnings {
		color.New(color.FgYellow).Fprintf(w, "  ⚠ %s\n", warning)
	}
}

func printStatus(w io.Writer, err error) {
	if err != nil {
		color.New(color.FgRed).Fprintf(w, "✗ %v\n", err)
		return
	}
	color.New(color.FgGreen).Fprintln(w, "✓ completed")
}
