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

var errTCPPortMissing = errors.New("tcp target requires a port number")

// tcpProber verifies direct connectivity by establishing and immediately
// closing a connection. Databases and brokers behind the platform do not
// speak HTTP, so this is the direct-connectivity check for them.
type tcpProber struct {
	probe models.Probe
	host  string
}

func newTCPProber(p models.Probe, u *url.URL) (*tcpProber, error) {
	if u.Hostname() == "" {
		return nil, fmt.Errorf("probe %q: tcp target requires a host", p.ID)
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("probe %q: %w", p.ID, errTCPPortMissing)
	}
	return &tcpProber{probe: p, host: u.Host}, nil
}

func (t *tcpProber) Do(ctx context.Context, _ string) Attempt {
	ctx, cancel := context.WithTimeout(ctx, t.probe.Timeout)
	defer cancel()

	var dialer net.Dialer

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", t.host)
	latency := time.Since(start)

	if err != nil {
		return Attempt{
			Outcome: classifyTransport(ctx, err),
			Latency: latency,
			Message: err.Error(),
		}
	}
	conn.Close()

	return Attempt{
		Outcome: models.OutcomePassed,
		Latency: latency,
		Message: fmt.Sprintf("connected to %s", t.host),
	}
}
