package plan

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tupyy/platform-verifier/internal/config"
	"github.com/tupyy/platform-verifier/internal/models"
	"github.com/tupyy/platform-verifier/internal/probe"
)

// declarationsFile is the on-disk shape of a check declarations file.
// Durations are strings ("5s", "500ms") parsed at load time; empty values
// fall back to the engine's run defaults.
type declarationsFile struct {
	Checks []checkDecl `yaml:"checks"`
}

type checkDecl struct {
	Name      string      `yaml:"name"`
	Kind      string      `yaml:"kind"`
	Optional  bool        `yaml:"optional"`
	DependsOn []string    `yaml:"depends_on"`
	Probes    []probeDecl `yaml:"probes"`
}

type probeDecl struct {
	ID                 string    `yaml:"id"`
	Target             string    `yaml:"target"`
	Method             string    `yaml:"method"`
	Auth               string    `yaml:"auth"`
	ExpectStatus       int       `yaml:"expect_status"`
	ExpectBodyContains string    `yaml:"expect_body_contains"`
	Timeout            string    `yaml:"timeout"`
	Retry              retryDecl `yaml:"retry"`
}

type retryDecl struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BackoffBase string `yaml:"backoff_base"`
	BackoffCap  string `yaml:"backoff_cap"`
}

// Load reads and validates a declarations file, filling omitted probe
// settings from the run defaults.
func Load(path string, runCfg config.Run) ([]models.ServiceCheck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declarations file %q: %w", path, err)
	}
	return Parse(data, runCfg)
}

// Parse decodes check declarations from yaml.
func Parse(data []byte, runCfg config.Run) ([]models.ServiceCheck, error) {
	var file declarationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse declarations: %w", err)
	}
	if len(file.Checks) == 0 {
		return nil, fmt.Errorf("declarations contain no checks")
	}

	seenChecks := make(map[string]struct{})
	seenProbes := make(map[string]struct{})
	checks := make([]models.ServiceCheck, 0, len(file.Checks))

	for _, decl := range file.Checks {
		if decl.Name == "" {
			return nil, fmt.Errorf("check without a name")
		}
		if _, ok := seenChecks[decl.Name]; ok {
			return nil, fmt.Errorf("duplicate check name %q", decl.Name)
		}
		seenChecks[decl.Name] = struct{}{}

		kind, err := models.ParseCheckKind(decl.Kind)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", decl.Name, err)
		}
		if len(decl.Probes) == 0 {
			return nil, fmt.Errorf("check %q has no probes", decl.Name)
		}

		check := models.ServiceCheck{
			Name:      decl.Name,
			Kind:      kind,
			Optional:  decl.Optional,
			DependsOn: decl.DependsOn,
		}

		for i, pd := range decl.Probes {
			p, err := buildProbe(decl.Name, i, pd, runCfg)
			if err != nil {
				return nil, err
			}
			if _, ok := seenProbes[p.ID]; ok {
				return nil, fmt.Errorf("duplicate probe id %q", p.ID)
			}
			seenProbes[p.ID] = struct{}{}
			check.Probes = append(check.Probes, p)
		}

		checks = append(checks, check)
	}

	return checks, nil
}

func buildProbe(checkName string, idx int, decl probeDecl, runCfg config.Run) (models.Probe, error) {
	if decl.Target == "" {
		return models.Probe{}, fmt.Errorf("check %q: probe %d has no target", checkName, idx)
	}

	id := decl.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", checkName, idx)
	}

	auth, err := models.ParseAuthRequirement(decl.Auth)
	if err != nil {
		return models.Probe{}, fmt.Errorf("check %q, probe %q: %w", checkName, id, err)
	}

	method := decl.Method
	if method == "" {
		method = "GET"
	}

	expectStatus := decl.ExpectStatus
	if expectStatus == 0 {
		expectStatus = 200
	}

	timeout, err := parseDuration(decl.Timeout, runCfg.DefaultTimeout)
	if err != nil {
		return models.Probe{}, fmt.Errorf("check %q, probe %q: invalid timeout: %w", checkName, id, err)
	}

	maxAttempts := decl.Retry.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = runCfg.DefaultMaxAttempts
	}
	if maxAttempts < 1 {
		return models.Probe{}, fmt.Errorf("check %q, probe %q: max_attempts must be at least 1", checkName, id)
	}
	backoffBase, err := parseDuration(decl.Retry.BackoffBase, runCfg.DefaultBackoffBase)
	if err != nil {
		return models.Probe{}, fmt.Errorf("check %q, probe %q: invalid backoff_base: %w", checkName, id, err)
	}
	backoffCap, err := parseDuration(decl.Retry.BackoffCap, runCfg.DefaultBackoffCap)
	if err != nil {
		return models.Probe{}, fmt.Errorf("check %q, probe %q: invalid backoff_cap: %w", checkName, id, err)
	}

	p := models.Probe{
		ID:                 id,
		Target:             decl.Target,
		Method:             method,
		Auth:               auth,
		ExpectStatus:       expectStatus,
		ExpectBodyContains: decl.ExpectBodyContains,
		Timeout:            timeout,
		Retry: models.RetryPolicy{
			MaxAttempts: maxAttempts,
			BackoffBase: backoffBase,
			BackoffCap:  backoffCap,
		},
	}

	// a prober must be constructible for every declared target; a typo'd
	// scheme or a tcp target without a port fails the load, not the run
	if _, err := probe.New(p); err != nil {
		return models.Probe{}, fmt.Errorf("check %q: %w", checkName, err)
	}
	return p, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
