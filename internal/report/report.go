// Package report renders a finalized run report for humans and machines and
// maps it onto the process exit status.
package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/tupyy/platform-verifier/internal/models"
)

// Exit codes of the verifier process.
const (
	ExitPassed    = 0
	ExitFailed    = 1
	ExitCancelled = 2
)

var (
	passedColor  = color.New(color.FgGreen)
	failedColor  = color.New(color.FgRed, color.Bold)
	skippedColor = color.New(color.FgYellow)
)

// ExitCode maps a report onto the process exit status: 0 when all required
// probes passed, 2 when the run was cancelled or timed out, 1 otherwise.
func ExitCode(r *models.RunReport) int {
	if r.Cancelled {
		return ExitCancelled
	}
	if r.Overall == models.RunPassed {
		return ExitPassed
	}
	return ExitFailed
}

// Summarize writes the human-readable summary. Every attempted probe is
// listed with its classification; failures name the check and phase so
// triage can tell a backend outage from stale routing from a credential that
// never propagated.
func Summarize(w io.Writer, r *models.RunReport) {
	verdict := passedColor.Sprint("PASSED")
	if r.Overall == models.RunFailed {
		verdict = failedColor.Sprint("FAILED")
	}
	if r.Cancelled {
		verdict += skippedColor.Sprint(" (cancelled)")
	}

	fmt.Fprintf(w, "run %s: %s\n", r.RunID, verdict)
	fmt.Fprintf(w, "started %s, took %s\n\n",
		r.StartedAt.Format("2006-01-02 15:04:05 MST"),
		r.FinishedAt.Sub(r.StartedAt).Round(1e6),
	)

	lastPhase := -1
	for _, res := range r.SortedResults() {
		if res.Phase != lastPhase {
			if lastPhase >= 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "phase %d:\n", res.Phase)
			lastPhase = res.Phase
		}
		fmt.Fprintf(w, "  %s %s\n", marker(res.Outcome), line(res))
	}

	failed := r.FailedResults()
	if len(failed) > 0 {
		fmt.Fprintf(w, "\n%d probe(s) did not pass:\n", len(failed))
		for _, res := range failed {
			fmt.Fprintf(w, "  - %s [%s] check=%s phase=%d: %s\n",
				res.ProbeID, res.Outcome, res.Check, res.Phase, res.LastError)
		}
	}
}

func marker(o models.Outcome) string {
	switch o {
	case models.OutcomePassed:
		return passedColor.Sprint("ok")
	case models.OutcomeSkipped, models.OutcomeCancelled:
		return skippedColor.Sprint("--")
	default:
		return failedColor.Sprint("!!")
	}
}

func line(res models.ProbeResult) string {
	s := fmt.Sprintf("%-30s %-16s %s ms", res.ProbeID, res.Outcome, latencyMS(res))
	if res.Attempts > 1 {
		s += fmt.Sprintf(" (%d attempts)", res.Attempts)
	}
	if res.Reresolved {
		s += " (credential re-resolved)"
	}
	if res.Optional {
		s += " [optional]"
	}
	return s
}

func latencyMS(res models.ProbeResult) string {
	return humanize.CommafWithDigits(float64(res.Latency.Microseconds())/1000, 3)
}
