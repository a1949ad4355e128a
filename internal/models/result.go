package models

import (
	"fmt"
	"sort"
	"time"
)

// Outcome classifies the terminal state of a probe. An attempt that fails is
// classified into exactly one of Unreachable, TimedOut, AuthError or
// AssertionFailed; the probe's final outcome is Passed on the first matching
// attempt, otherwise the classification of the last attempt. Cancelled and
// Skipped are run-level states: the former for probes interrupted by the run
// deadline or an external cancel, the latter for probes in phases that never
// started.
type Outcome string

const (
	OutcomePassed          Outcome = "passed"
	OutcomeUnreachable     Outcome = "unreachable"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomeAuthError       Outcome = "auth_error"
	OutcomeAssertionFailed Outcome = "assertion_failed"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeSkipped         Outcome = "skipped"
)

func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomePassed, OutcomeUnreachable, OutcomeTimedOut, OutcomeAuthError,
		OutcomeAssertionFailed, OutcomeCancelled, OutcomeSkipped:
		return Outcome(s), nil
	default:
		return "", fmt.Errorf("invalid outcome: %s", s)
	}
}

// ProbeResult is the terminal record of one probe. Written exactly once by
// the run scheduler, never mutated afterwards.
type ProbeResult struct {
	ProbeID     string        `json:"probe_id"`
	Check       string        `json:"check"`
	Phase       int           `json:"phase"`
	Optional    bool          `json:"optional"`
	Attempts    int           `json:"attempts"`
	Outcome     Outcome       `json:"outcome"`
	Latency     time.Duration `json:"latency_ns"`
	Reresolved  bool          `json:"credential_reresolved,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

type RunOutcome string

const (
	RunPassed RunOutcome = "passed"
	RunFailed RunOutcome = "failed"
)

// RunReport aggregates all probe results of one run. Finalized exactly once,
// when all phases complete or a fatal abort occurs.
type RunReport struct {
	RunID      string                 `json:"run_id"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Results    map[string]ProbeResult `json:"results"`
	Overall    RunOutcome             `json:"overall"`
	Cancelled  bool                   `json:"cancelled,omitempty"`
}

// Finalize stamps the finish time and computes the overall outcome: Failed
// if any non-optional probe did not pass.
func (r *RunReport) Finalize(at time.Time) {
	r.FinishedAt = at
	r.Overall = RunPassed
	for _, res := range r.Results {
		if res.Optional {
			continue
		}
		if res.Outcome != OutcomePassed {
			r.Overall = RunFailed
			return
		}
	}
}

// FailedResults returns non-passed results, required checks first, ordered
// by phase then probe id.
func (r *RunReport) FailedResults() []ProbeResult {
	var failed []ProbeResult
	for _, res := range r.Results {
		if res.Outcome != OutcomePassed {
			failed = append(failed, res)
		}
	}
	sortResults(failed)
	return failed
}

// SortedResults returns all results ordered by phase then probe id.
func (r *RunReport) SortedResults() []ProbeResult {
	all := make([]ProbeResult, 0, len(r.Results))
	for _, res := range r.Results {
		all = append(all, res)
	}
	sortResults(all)
	return all
}

func sortResults(results []ProbeResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Optional != b.Optional {
			return !a.Optional
		}
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		return a.ProbeID < b.ProbeID
	})
}
