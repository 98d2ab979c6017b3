package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/agent"
	"github.com/joseph-ayodele/statement-agent/internal/common"
)

// exitCode: 0 succeeded, 1 budget exhausted, 2 usage or environment.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, agent.ErrBudgetExhausted):
		return 1
	case errors.Is(err, context.Canceled):
		return 1
	}
	return 2
}

func printOutcome(w io.Writer, out *agent.Outcome, err error) {
	if out == nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	n := len(out.Iterations)
	switch {
	case out.State == constants.StateSucceeded:
		fmt.Fprintf(w, "%s: %s after %d iteration(s); parser: %s\n", out.Source, out.State, n, out.ParserPath)
	case errors.Is(err, agent.ErrBudgetExhausted):
		fmt.Fprintf(w, "%s: %s after %d iteration(s)\n", out.Source, out.State, n)
		if out.Last != nil && out.Last.Diff != "" {
			fmt.Fprintln(w, indent(out.Last.Diff))
		}
	default:
		kind := "error"
		if common.IsEnvironment(err) {
			kind = "environment error"
		}
		fmt.Fprintf(w, "%s: %s (%s: %v)\n", out.Source, out.State, kind, err)
		return
	}
	if len(out.Artifacts) == 0 {
		fmt.Fprintln(w, "no debug artifacts")
		return
	}
	fmt.Fprintf(w, "debug artifacts written: %s\n", strings.Join(out.Artifacts, ", "))
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
