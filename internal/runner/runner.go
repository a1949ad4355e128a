// Package runner executes a test plan under concurrency, retry and deadline
// policy. Phases run strictly in order behind a full barrier; probes within
// a phase run concurrently on a bounded worker pool.
package runner

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tupyy/platform-verifier/internal/config"
	"github.com/tupyy/platform-verifier/internal/credentials"
	"github.com/tupyy/platform-verifier/internal/models"
	"github.com/tupyy/platform-verifier/internal/probe"
	verrors "github.com/tupyy/platform-verifier/pkg/errors"
	"github.com/tupyy/platform-verifier/pkg/workpool"
)

// Runner executes test plans. Safe to create one per run; the credential
// cache it shares with the resolver is scoped to the resolver, not the
// runner.
type Runner struct {
	cfg      config.Run
	resolver *credentials.Resolver

	// newProber is swappable in tests
	newProber func(models.Probe) (probe.Prober, error)
}

func New(cfg config.Run, resolver *credentials.Resolver) *Runner {
	return &Runner{
		cfg:       cfg,
		resolver:  resolver,
		newProber: probe.New,
	}
}

// Run resolves the plan's credentials, executes every phase and returns the
// finalized report. The report is always populated, phase by phase; when the
// run deadline expires or the context is cancelled, outstanding probes
// record their interruption, later phases record Skipped, and the error is
// RunCancelled. A required check failing stops phase progression but is not
// an error: the report carries the verdict.
func (r *Runner) Run(ctx context.Context, plan models.TestPlan) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make(map[string]models.ProbeResult, plan.ProbeCount()),
	}

	log := zap.S().With("run_id", report.RunID)

	if names := plan.CredentialNames(); len(names) > 0 {
		log.Infow("resolving credentials", "names", names)
		if _, err := r.resolver.Resolve(ctx, names); err != nil {
			return nil, err
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Deadline)
		defer cancel()
	}

	pool := workpool.New[models.ProbeResult](r.cfg.MaxInFlight)
	defer pool.Close()

	advance := true
	for phaseIdx, phase := range plan.Phases {
		if !advance || runCtx.Err() != nil {
			if runCtx.Err() != nil {
				report.Cancelled = true
			}
			r.skipPhase(report, phaseIdx, phase)
			continue
		}

		log.Infow("phase started", "phase", phaseIdx, "checks", len(phase))

		var futures []*workpool.Future[models.ProbeResult]
		for _, check := range phase {
			for _, p := range check.Probes {
				futures = append(futures, pool.Submit(func(_ context.Context) (models.ProbeResult, error) {
					return r.executeProbe(runCtx, phaseIdx, check, p), nil
				}))
			}
		}

		// full barrier: phase k+1 must not race anything from phase k
		phaseFailed := false
		for _, f := range futures {
			out := <-f.C()
			res := out.Value
			if out.Err != nil {
				// pool-level failure (panic or closed pool); the probe never
				// produced a result of its own
				res.Outcome = models.OutcomeCancelled
				res.LastError = out.Err.Error()
			}
			report.Results[res.ProbeID] = res
			if !res.Optional && res.Outcome != models.OutcomePassed {
				phaseFailed = true
			}
			// cancelled only when a probe was actually interrupted; a
			// deadline expiring after every probe reached a verdict keeps
			// the verdict
			if runCtx.Err() != nil &&
				(res.Outcome == models.OutcomeTimedOut || res.Outcome == models.OutcomeCancelled) {
				report.Cancelled = true
			}
		}

		if phaseFailed {
			log.Warnw("phase failed, later phases will be skipped", "phase", phaseIdx)
			advance = false
		}
		if runCtx.Err() != nil {
			advance = false
		}
	}

	report.Finalize(time.Now())
	log.Infow("run finished",
		"overall", report.Overall,
		"probes", len(report.Results),
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)

	if report.Cancelled {
		reason := "context cancelled"
		if runCtx.Err() == context.DeadlineExceeded {
			reason = "run deadline expired"
		}
		return report, verrors.NewRunCancelled(reason)
	}
	return report, nil
}

// executeProbe runs the attempt loop for a single probe and writes its one
// and only result. If an AuthError survives the configured attempts, the
// credential is re-resolved once and one extra attempt is made with the
// fresh value, to tolerate secret-rotation races.
func (r *Runner) executeProbe(ctx context.Context, phaseIdx int, check models.ServiceCheck, p models.Probe) models.ProbeResult {
	result := models.ProbeResult{
		ProbeID:  p.ID,
		Check:    check.Name,
		Phase:    phaseIdx,
		Optional: check.Optional,
	}

	prober, err := r.newProber(p)
	if err != nil {
		// plans built by the loader have validated targets; a hand-built
		// plan with a bad target never reaches its service
		result.Outcome = models.OutcomeUnreachable
		result.LastError = err.Error()
		result.CompletedAt = time.Now()
		return result
	}

	credName := p.Auth.CredentialName()
	last := r.attemptLoop(ctx, prober, p, credName, &result)

	if last.Outcome == models.OutcomeAuthError && credName != "" && ctx.Err() == nil {
		if _, err := r.resolver.Reresolve(ctx, credName); err == nil {
			result.Reresolved = true
			a := r.attempt(ctx, prober, credName)
			result.Attempts++
			last = a
		}
	}

	result.Outcome = last.Outcome
	result.Latency = last.Latency
	if !last.Passed() {
		result.LastError = last.Message
	}
	result.CompletedAt = time.Now()

	zap.S().Debugw("probe finished",
		"probe", p.ID,
		"check", check.Name,
		"phase", phaseIdx,
		"outcome", result.Outcome,
		"attempts", result.Attempts,
	)
	return result
}

// attemptLoop retries up to the probe's budget with capped exponential
// backoff between attempts. Returns the last attempt.
func (r *Runner) attemptLoop(ctx context.Context, prober probe.Prober, p models.Probe, credName string, result *models.ProbeResult) probe.Attempt {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.Retry.BackoffBase
	expo.MaxInterval = p.Retry.BackoffCap

	var last probe.Attempt
	for i := 1; i <= p.Retry.MaxAttempts; i++ {
		last = r.attempt(ctx, prober, credName)
		result.Attempts = i

		if last.Passed() {
			return last
		}
		if last.Outcome == models.OutcomeCancelled || ctx.Err() != nil {
			return r.interrupted(ctx, last)
		}
		if i == p.Retry.MaxAttempts {
			break
		}

		timer := time.NewTimer(expo.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return r.interrupted(ctx, last)
		case <-timer.C:
		}
	}
	return last
}

func (r *Runner) attempt(ctx context.Context, prober probe.Prober, credName string) probe.Attempt {
	var value string
	if credName != "" {
		cred, ok := r.resolver.Get(credName)
		if !ok {
			return probe.Attempt{
				Outcome: models.OutcomeAuthError,
				Message: "credential " + credName + " is not resolved",
			}
		}
		value = cred.Value()
	}
	return prober.Do(ctx, value)
}

// interrupted maps a mid-loop context expiry onto the attempt record: a
// deadline records TimedOut, an external cancel records Cancelled.
func (r *Runner) interrupted(ctx context.Context, last probe.Attempt) probe.Attempt {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		last.Outcome = models.OutcomeTimedOut
		last.Message = "run deadline expired"
	case context.Canceled:
		last.Outcome = models.OutcomeCancelled
		last.Message = "run cancelled"
	}
	return last
}

// skipPhase records a Skipped result for every probe of a phase that never
// started, so the report always enumerates every declared probe.
func (r *Runner) skipPhase(report *models.RunReport, phaseIdx int, phase []models.ServiceCheck) {
	now := time.Now()
	for _, check := range phase {
		for _, p := range check.Probes {
			report.Results[p.ID] = models.ProbeResult{
				ProbeID:     p.ID,
				Check:       check.Name,
				Phase:       phaseIdx,
				Optional:    check.Optional,
				Outcome:     models.OutcomeSkipped,
				LastError:   "phase skipped",
				CompletedAt: now,
			}
		}
	}
}
