// Package probe executes single verification attempts against platform
// targets and classifies their failures. The probe's target URL scheme
// selects the prober: http/https issue a request and match the response
// against the expected outcome, tcp verifies direct connectivity for
// backends that do not speak HTTP.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/tupyy/platform-verifier/internal/models"
)

// Attempt is the result of one probe execution. Failed attempts carry
// exactly one classification.
type Attempt struct {
	Outcome models.Outcome
	Latency time.Duration
	Message string
}

// Passed reports whether the attempt matched the expected outcome.
func (a Attempt) Passed() bool {
	return a.Outcome == models.OutcomePassed
}

// Prober executes one attempt of a single probe. The credential is empty for
// unauthenticated probes.
type Prober interface {
	Do(ctx context.Context, credential string) Attempt
}

// New selects a prober for the probe's target scheme.
func New(p models.Probe) (Prober, error) {
	u, err := url.Parse(p.Target)
	if err != nil {
		return nil, fmt.Errorf("probe %q: invalid target %q: %w", p.ID, p.Target, err)
	}

	switch u.Scheme {
	case "http", "https":
		return newHTTPProber(p, u), nil
	case "tcp":
		return newTCPProber(p, u)
	default:
		return nil, fmt.Errorf("probe %q: unsupported target scheme %q", p.ID, u.Scheme)
	}
}

// classifyTransport maps a transport-level error onto the outcome taxonomy.
// Deadline expiry is TimedOut; an external cancel is Cancelled; everything
// else (refused connection, DNS failure, reset) is Unreachable.
func classifyTransport(ctx context.Context, err error) models.Outcome {
	if ctx.Err() == context.Canceled {
		return models.OutcomeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.OutcomeTimedOut
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.OutcomeTimedOut
	}
	return models.OutcomeUnreachable
}
