package runner_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tupyy/platform-verifier/internal/config"
	"github.com/tupyy/platform-verifier/internal/credentials"
	"github.com/tupyy/platform-verifier/internal/models"
	"github.com/tupyy/platform-verifier/internal/plan"
	"github.com/tupyy/platform-verifier/internal/runner"
	verrors "github.com/tupyy/platform-verifier/pkg/errors"
)

var (
	runCfg = config.Run{
		MaxInFlight:           4,
		Deadline:              10 * time.Second,
		DefaultTimeout:        2 * time.Second,
		DefaultMaxAttempts:    1,
		DefaultBackoffBase:    5 * time.Millisecond,
		DefaultBackoffCap:     20 * time.Millisecond,
		StrictGatewayOrdering: true,
	}

	credCfg = config.Credentials{
		BackoffBase: 5 * time.Millisecond,
		BackoffCap:  20 * time.Millisecond,
		MaxWait:     200 * time.Millisecond,
	}
)

func healthyServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
}

func check(name string, kind models.CheckKind, target string, deps ...string) models.ServiceCheck {
	return models.ServiceCheck{
		Name:      name,
		Kind:      kind,
		DependsOn: deps,
		Probes: []models.Probe{{
			ID:           name + "-health",
			Target:       target,
			Method:       "GET",
			ExpectStatus: 200,
			Timeout:      500 * time.Millisecond,
			Retry: models.RetryPolicy{
				MaxAttempts: 1,
				BackoffBase: 5 * time.Millisecond,
				BackoffCap:  20 * time.Millisecond,
			},
		}},
	}
}

func staticResolver(values map[string]string) *credentials.Resolver {
	return credentials.NewResolver(credentials.NewStaticSource(values), credCfg)
}

func mustBuild(checks ...models.ServiceCheck) models.TestPlan {
	p, err := plan.Build(checks, true)
	Expect(err).NotTo(HaveOccurred())
	return p
}

// unusedAddr returns an address with nothing listening on it.
func unusedAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	addr := l.Addr().String()
	l.Close()
	return addr
}

var _ = Describe("Runner", func() {
	Describe("healthy platform", func() {
		It("should pass all checks including the gateway path", func() {
			db := healthyServer()
			defer db.Close()
			auth := healthyServer()
			defer auth.Close()
			gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("apikey") == "" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Write([]byte("ok"))
			}))
			defer gateway.Close()

			gwCheck := check("auth-via-gateway", models.CheckKindGateway, gateway.URL, "auth")
			gwCheck.Probes[0].Auth = models.AuthAnonKey

			testPlan := mustBuild(
				check("db", models.CheckKindService, db.URL),
				check("auth", models.CheckKindService, auth.URL),
				gwCheck,
			)

			r := runner.New(runCfg, staticResolver(map[string]string{"anon_key": "the-anon-key"}))
			report, err := r.Run(context.Background(), testPlan)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Overall).To(Equal(models.RunPassed))
			Expect(report.Results).To(HaveLen(3))
			for _, res := range report.Results {
				Expect(res.Outcome).To(Equal(models.OutcomePassed), res.ProbeID)
				Expect(res.Attempts).To(Equal(1))
			}
			Expect(report.RunID).NotTo(BeEmpty())
		})

		It("should yield identical classifications on a second run", func() {
			srv := healthyServer()
			defer srv.Close()

			testPlan := mustBuild(check("auth", models.CheckKindService, srv.URL))
			r := runner.New(runCfg, staticResolver(nil))

			first, err := r.Run(context.Background(), testPlan)
			Expect(err).NotTo(HaveOccurred())
			second, err := r.Run(context.Background(), testPlan)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Overall).To(Equal(first.Overall))
			for id, res := range first.Results {
				Expect(second.Results[id].Outcome).To(Equal(res.Outcome))
			}
			Expect(second.RunID).NotTo(Equal(first.RunID))
		})
	})

	Describe("gateway routing failure", func() {
		It("should mark only the gateway probe Unreachable and fail the run", func() {
			db := healthyServer()
			defer db.Close()
			auth := healthyServer()
			defer auth.Close()

			testPlan := mustBuild(
				check("db", models.CheckKindService, db.URL),
				check("auth", models.CheckKindService, auth.URL),
				check("auth-via-gateway", models.CheckKindGateway, "http://"+unusedAddr(), "auth"),
			)

			r := runner.New(runCfg, staticResolver(nil))
			report, err := r.Run(context.Background(), testPlan)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Overall).To(Equal(models.RunFailed))
			Expect(report.Results["db-health"].Outcome).To(Equal(models.OutcomePassed))
			Expect(report.Results["auth-health"].Outcome).To(Equal(models.OutcomePassed))
			Expect(report.Results["auth-via-gateway-health"].Outcome).To(Equal(models.OutcomeUnreachable))
		})
	})

	Describe("retries", func() {
		It("should pass after transient failures with attempt-count metadata", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= 2 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.Write([]byte("ok"))
			}))
			defer srv.Close()

			c := check("flaky", models.CheckKindService, srv.URL)
			c.Probes[0].Retry.MaxAttempts = 5

			r := runner.New(runCfg, staticResolver(nil))
			report, err := r.Run(context.Background(), mustBuild(c))
			Expect(err).NotTo(HaveOccurred())

			res := report.Results["flaky-health"]
			Expect(res.Outcome).To(Equal(models.OutcomePassed))
			Expect(res.Attempts).To(Equal(3))
		})

		It("should report the last attempt's classification when the budget runs out", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer srv.Close()

			c := check("down", models.CheckKindService, srv.URL)
			c.Probes[0].Retry.MaxAttempts = 3

			r := runner.New(runCfg, staticResolver(nil))
			report, err := r.Run(context.Background(), mustBuild(c))
			Expect(err).NotTo(HaveOccurred())

			res := report.Results["down-health"]
			Expect(res.Outcome).To(Equal(models.OutcomeAssertionFailed))
			Expect(res.Attempts).To(Equal(3))
			Expect(res.LastError).To(ContainSubstring("expected status 200"))
		})
	})

	Describe("credential rotation race", func() {
		// rotatingSource serves a stale key until the first re-lookup
		type lookupCounter struct {
			mu    sync.Mutex
			calls int
			keys  []string
		}

		newRotatingSource := func(counter *lookupCounter) credentials.Source {
			return sourceFunc(func(_ context.Context, name string) (string, error) {
				counter.mu.Lock()
				defer counter.mu.Unlock()
				counter.calls++
				key := counter.keys[0]
				if len(counter.keys) > 1 {
					counter.keys = counter.keys[1:]
				}
				return key, nil
			})
		}

		authServer := func(accepted string) *httptest.Server {
			return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("apikey") != accepted {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Write([]byte("ok"))
			}))
		}

		It("should re-resolve exactly once and pass with the fresh key", func() {
			srv := authServer("fresh-key")
			defer srv.Close()

			counter := &lookupCounter{keys: []string{"stale-key", "fresh-key"}}
			resolver := credentials.NewResolver(newRotatingSource(counter), credCfg)

			c := check("auth", models.CheckKindService, srv.URL)
			c.Probes[0].Auth = models.AuthServiceKey
			c.Probes[0].Retry.MaxAttempts = 2

			r := runner.New(runCfg, resolver)
			report, err := r.Run(context.Background(), mustBuild(c))
			Expect(err).NotTo(HaveOccurred())

			res := report.Results["auth-health"]
			Expect(res.Outcome).To(Equal(models.OutcomePassed))
			Expect(res.Attempts).To(Equal(3)) // 2 configured + 1 after re-resolution
			Expect(res.Reresolved).To(BeTrue())
			Expect(counter.calls).To(Equal(2)) // initial resolve + one re-resolution
		})

		It("should report AuthError when the key stays rejected", func() {
			srv := authServer("never-this")
			defer srv.Close()

			counter := &lookupCounter{keys: []string{"stale-key"}}
			resolver := credentials.NewResolver(newRotatingSource(counter), credCfg)

			c := check("auth", models.CheckKindService, srv.URL)
			c.Probes[0].Auth = models.AuthServiceKey
			c.Probes[0].Retry.MaxAttempts = 2

			r := runner.New(runCfg, resolver)
			report, err := r.Run(context.Background(), mustBuild(c))
			Expect(err).NotTo(HaveOccurred())

			res := report.Results["auth-health"]
			Expect(res.Outcome).To(Equal(models.OutcomeAuthError))
			Expect(res.Attempts).To(Equal(3))
			Expect(res.Reresolved).To(BeTrue())
			Expect(counter.calls).To(Equal(2))
		})
	})

	Describe("phase progression", func() {
		It("should skip later phases after a required check fails", func() {
			up := healthyServer()
			defer up.Close()

			testPlan := mustBuild(
				check("db", models.CheckKindService, "http://"+unusedAddr()),
				check("rest", models.CheckKindService, up.URL, "db"),
			)

			r := runner.New(runCfg, staticResolver(nil))
			report, err := r.Run(context.Background(), testPlan)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Overall).To(Equal(models.RunFailed))
			Expect(report.Results["db-health"].Outcome).To(Equal(models.OutcomeUnreachable))
			Expect(report.Results["rest-health"].Outcome).To(Equal(models.OutcomeSkipped))
		})

		It("should let the failing phase's siblings finish", func() {
			up := healthyServer()
			defer up.Close()

			testPlan := mustBuild(
				check("db", models.CheckKindService, "http://"+unusedAddr()),
				check("auth", models.CheckKindService, up.URL),
			)

			r := runner.New(runCfg, staticResolver(nil))
			report, err := r.Run(context.Background(), testPlan)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Results["auth-health"].Outcome).To(Equal(models.OutcomePassed))
			Expect(report.Results["db-health"].Outcome).To(Equal(models.OutcomeUnreachable))
		})

		It("should not fail the run for an optional check", func() {
			up := healthyServer()
			defer up.Close()

			optional := check("minio", models.CheckKindService, "http://"+unusedAddr())
			optional.Optional = true

			testPlan := mustBuild(
				check("db", models.CheckKindService, up.URL),
				optional,
			)

			r := runner.New(runCfg, staticResolver(nil))
			report, err := r.Run(context.Background(), testPlan)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Overall).To(Equal(models.RunPassed))
			Expect(report.Results["minio-health"].Outcome).To(Equal(models.OutcomeUnreachable))
		})
	})

	Describe("run deadline", func() {
		It("should terminate within the deadline plus a bounded grace period", func() {
			block := make(chan struct{})
			stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-block
			}))
			defer stalled.Close()
			defer close(block)
			up := healthyServer()
			defer up.Close()

			hang := check("hang", models.CheckKindService, stalled.URL)
			hang.Probes[0].Timeout = 5 * time.Second
			hang.Probes[0].Retry.MaxAttempts = 10

			testPlan := mustBuild(
				hang,
				check("later", models.CheckKindService, up.URL, "hang"),
			)

			cfg := runCfg
			cfg.Deadline = 300 * time.Millisecond

			r := runner.New(cfg, staticResolver(nil))
			start := time.Now()
			report, err := r.Run(context.Background(), testPlan)
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))

			Expect(verrors.IsRunCancelled(err)).To(BeTrue())
			Expect(report.Cancelled).To(BeTrue())
			Expect(report.Overall).To(Equal(models.RunFailed))
			Expect(report.Results["hang-health"].Outcome).To(Equal(models.OutcomeTimedOut))
			Expect(report.Results["later-health"].Outcome).To(Equal(models.OutcomeSkipped))
		})

		It("should record Cancelled on an external cancel", func() {
			block := make(chan struct{})
			stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-block
			}))
			defer stalled.Close()
			defer close(block)

			hang := check("hang", models.CheckKindService, stalled.URL)
			hang.Probes[0].Timeout = 5 * time.Second

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(100 * time.Millisecond)
				cancel()
			}()

			r := runner.New(runCfg, staticResolver(nil))
			report, err := r.Run(ctx, mustBuild(hang))

			Expect(verrors.IsRunCancelled(err)).To(BeTrue())
			Expect(report.Results["hang-health"].Outcome).To(Equal(models.OutcomeCancelled))
		})
	})

	Describe("credential resolution failure", func() {
		It("should abort before any probe runs", func() {
			var served atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				served.Add(1)
			}))
			defer srv.Close()

			c := check("auth", models.CheckKindService, srv.URL)
			c.Probes[0].Auth = models.AuthAnonKey

			r := runner.New(runCfg, staticResolver(nil)) // no anon_key anywhere
			_, err := r.Run(context.Background(), mustBuild(c))

			Expect(verrors.IsCredentialUnavailable(err)).To(BeTrue())
			Expect(served.Load()).To(BeZero())
		})
	})
})

// sourceFunc adapts a function to the credentials.Source interface.
type sourceFunc func(ctx context.Context, name string) (string, error)

func (f sourceFunc) Lookup(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}
