package models

import (
	"fmt"
	"time"
)

// AuthRequirement selects which resolved credential a probe attaches to its
// request. Anon and service keys are platform API keys injected as bearer
// tokens; none sends the request unauthenticated.
type AuthRequirement string

const (
	AuthNone       AuthRequirement = "none"
	AuthAnonKey    AuthRequirement = "anon_key"
	AuthServiceKey AuthRequirement = "service_key"
)

func ParseAuthRequirement(s string) (AuthRequirement, error) {
	switch s {
	case "", "none":
		return AuthNone, nil
	case "anon_key":
		return AuthAnonKey, nil
	case "service_key":
		return AuthServiceKey, nil
	default:
		return "", fmt.Errorf("invalid auth requirement: %s", s)
	}
}

// CredentialName returns the credential the requirement maps to, or "" for
// unauthenticated probes.
func (a AuthRequirement) CredentialName() string {
	switch a {
	case AuthAnonKey:
		return "anon_key"
	case AuthServiceKey:
		return "service_key"
	default:
		return ""
	}
}

type CheckKind string

const (
	CheckKindService CheckKind = "service"
	CheckKindGateway CheckKind = "gateway"
)

func ParseCheckKind(s string) (CheckKind, error) {
	switch s {
	case "", "service":
		return CheckKindService, nil
	case "gateway":
		return CheckKindGateway, nil
	default:
		return "", fmt.Errorf("invalid check kind: %s", s)
	}
}

// RetryPolicy bounds the attempt loop for a single probe.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Probe is the smallest unit of verification: one network check against one
// target with an expected-outcome predicate. Immutable once the plan is
// built.
type Probe struct {
	ID                 string
	Target             string // URL; the scheme selects the prober (http, https, tcp)
	Method             string
	Auth               AuthRequirement
	ExpectStatus       int
	ExpectBodyContains string
	Timeout            time.Duration
	Retry              RetryPolicy
}

// ServiceCheck is a named group of probes verifying a single backend
// service. Gateway checks are the same shape with Kind set to gateway; their
// probes route through the shared ingress and are ordered after the direct
// checks they depend on.
type ServiceCheck struct {
	Name      string
	Kind      CheckKind
	Optional  bool
	DependsOn []string
	Probes    []Probe
}

// CredentialNames returns the set of credentials the check's probes need.
func (c ServiceCheck) CredentialNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, p := range c.Probes {
		name := p.Auth.CredentialName()
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// TestPlan is the phased execution graph. Checks within a phase have no
// dependency on each other; phase k+1 starts only after phase k reaches a
// terminal state. Built once per run, immutable during execution.
type TestPlan struct {
	Phases [][]ServiceCheck
}

// ProbeCount returns the total number of probes across all phases.
func (p TestPlan) ProbeCount() int {
	n := 0
	for _, phase := range p.Phases {
		for _, check := range phase {
			n += len(check.Probes)
		}
	}
	return n
}

// CredentialNames returns every credential any probe in the plan needs.
func (p TestPlan) CredentialNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, phase := range p.Phases {
		for _, check := range phase {
			for _, name := range check.CredentialNames() {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names
}
