package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tupyy/platform-verifier/internal/models"
)

const (
	userAgent = "platform-verifier health check"

	// responses larger than this are truncated before predicate matching
	maxBodyBytes = 1 << 20
)

type httpProber struct {
	probe  models.Probe
	target *url.URL
	client *http.Client
}

func newHTTPProber(p models.Probe, u *url.URL) *httpProber {
	return &httpProber{
		probe:  p,
		target: u,
		client: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

func (h *httpProber) Do(ctx context.Context, credential string) Attempt {
	ctx, cancel := context.WithTimeout(ctx, h.probe.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, h.probe.Method, h.target.String(), nil)
	if err != nil {
		return Attempt{Outcome: models.OutcomeUnreachable, Message: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)
	if credential != "" {
		// the gateway accepts the key either way; send both forms so the
		// probe exercises the same path real clients use
		req.Header.Set("Authorization", "Bearer "+credential)
		req.Header.Set("apikey", credential)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		return Attempt{
			Outcome: classifyTransport(ctx, err),
			Latency: latency,
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Attempt{
			Outcome: classifyTransport(ctx, err),
			Latency: latency,
			Message: fmt.Sprintf("failed to read response body: %v", err),
		}
	}

	return h.evaluate(resp, body, latency)
}

// evaluate matches a received response against the probe's expectations. An
// auth rejection is classified AuthError regardless of the expected status,
// unless the probe explicitly expects that rejection.
func (h *httpProber) evaluate(resp *http.Response, body []byte, latency time.Duration) Attempt {
	if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) &&
		resp.StatusCode != h.probe.ExpectStatus {
		return Attempt{
			Outcome: models.OutcomeAuthError,
			Latency: latency,
			Message: fmt.Sprintf("authentication rejected: %s", resp.Status),
		}
	}

	if resp.StatusCode != h.probe.ExpectStatus {
		return Attempt{
			Outcome: models.OutcomeAssertionFailed,
			Latency: latency,
			Message: fmt.Sprintf("expected status %d, got %s", h.probe.ExpectStatus, resp.Status),
		}
	}

	if want := h.probe.ExpectBodyContains; want != "" && !strings.Contains(string(body), want) {
		return Attempt{
			Outcome: models.OutcomeAssertionFailed,
			Latency: latency,
			Message: fmt.Sprintf("response body does not contain %q", want),
		}
	}

	return Attempt{
		Outcome: models.OutcomePassed,
		Latency: latency,
		Message: resp.Status,
	}
}
