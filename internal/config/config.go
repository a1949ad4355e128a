package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Configuration holds all engine settings, organized into sections. Defaults
// come from struct tags, overridden by the config file and then by
// VERIFIER_* environment variables.
type Configuration struct {
	Run         Run         `mapstructure:"run"`
	Credentials Credentials `mapstructure:"credentials"`
	Artifacts   Artifacts   `mapstructure:"artifacts"`
	LogFormat   string      `mapstructure:"log_format" default:"console"`
	LogLevel    string      `mapstructure:"log_level" default:"info"`
}

// Run controls the scheduler and the per-probe defaults applied to
// declarations that omit them.
type Run struct {
	MaxInFlight           int           `mapstructure:"max_in_flight" default:"8"`
	Deadline              time.Duration `mapstructure:"deadline" default:"10m"`
	DefaultTimeout        time.Duration `mapstructure:"default_timeout" default:"10s"`
	DefaultMaxAttempts    int           `mapstructure:"default_max_attempts" default:"3"`
	DefaultBackoffBase    time.Duration `mapstructure:"default_backoff_base" default:"500ms"`
	DefaultBackoffCap     time.Duration `mapstructure:"default_backoff_cap" default:"5s"`
	StrictGatewayOrdering bool          `mapstructure:"strict_gateway_ordering" default:"true"`
}

// Credentials controls the secret source and the backoff budget the resolver
// spends waiting for secret propagation.
type Credentials struct {
	Source      string        `mapstructure:"source" default:"env"`
	Dir         string        `mapstructure:"dir"`
	BackoffBase time.Duration `mapstructure:"backoff_base" default:"1s"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap" default:"15s"`
	MaxWait     time.Duration `mapstructure:"max_wait" default:"2m"`
}

// Artifacts controls the lifecycle of ephemeral resources created for a run.
type Artifacts struct {
	Dir             string        `mapstructure:"dir" default:"artifacts"`
	TTL             time.Duration `mapstructure:"ttl" default:"30m"`
	GraceWindow     time.Duration `mapstructure:"grace_window" default:"2m"`
	RetainOnFailure bool          `mapstructure:"retain_on_failure" default:"false"`
}

// Load reads configuration from the given file (optional) and the
// environment, on top of struct defaults.
func Load(path string) (*Configuration, error) {
	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set configuration defaults: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("VERIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) Validate() error {
	switch c.Credentials.Source {
	case "env", "dir":
	default:
		return fmt.Errorf("invalid credentials source %q: must be 'env' or 'dir'", c.Credentials.Source)
	}
	if c.Credentials.Source == "dir" && c.Credentials.Dir == "" {
		return fmt.Errorf("credentials.dir is required when credentials.source is 'dir'")
	}
	if c.Run.MaxInFlight < 1 {
		return fmt.Errorf("run.max_in_flight must be at least 1")
	}
	if c.Run.DefaultMaxAttempts < 1 {
		return fmt.Errorf("run.default_max_attempts must be at least 1")
	}
	if c.Artifacts.TTL < 0 || c.Artifacts.GraceWindow < 0 {
		return fmt.Errorf("artifacts.ttl and artifacts.grace_window must not be negative")
	}
	return nil
}

// DebugMap returns the configuration as a map safe for structured logging.
// Nothing secret lives here, but credential values never pass through this
// struct either.
func (c *Configuration) DebugMap() map[string]any {
	return map[string]any{
		"run": map[string]any{
			"max_in_flight":           c.Run.MaxInFlight,
			"deadline":                c.Run.Deadline.String(),
			"default_timeout":         c.Run.DefaultTimeout.String(),
			"default_max_attempts":    c.Run.DefaultMaxAttempts,
			"default_backoff_base":    c.Run.DefaultBackoffBase.String(),
			"default_backoff_cap":     c.Run.DefaultBackoffCap.String(),
			"strict_gateway_ordering": c.Run.StrictGatewayOrdering,
		},
		"credentials": map[string]any{
			"source":       c.Credentials.Source,
			"dir":          c.Credentials.Dir,
			"backoff_base": c.Credentials.BackoffBase.String(),
			"backoff_cap":  c.Credentials.BackoffCap.String(),
			"max_wait":     c.Credentials.MaxWait.String(),
		},
		"artifacts": map[string]any{
			"dir":               c.Artifacts.Dir,
			"ttl":               c.Artifacts.TTL.String(),
			"grace_window":      c.Artifacts.GraceWindow.String(),
			"retain_on_failure": c.Artifacts.RetainOnFailure,
		},
		"log_format": c.LogFormat,
		"log_level":  c.LogLevel,
	}
}
