// Package credentials resolves the authentication material probes need from
// an external secret source. Secret propagation is eventually consistent
// relative to deployment, so resolution retries with bounded backoff.
// Resolved values live only in the resolver's in-memory cache for the run's
// duration and are never logged or written to the report.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/tupyy/platform-verifier/internal/config"
	verrors "github.com/tupyy/platform-verifier/pkg/errors"
)

// Credential is a resolved secret value scoped to one run. String renders
// redacted so the value cannot leak through %v formatting.
type Credential struct {
	name  string
	value string
}

func (c Credential) Name() string { return c.name }

func (c Credential) Value() string { return c.value }

// Redacted keeps the first and last two characters, enough to tell two keys
// apart in logs without exposing either.
func (c Credential) Redacted() string {
	if len(c.value) <= 8 {
		return "****"
	}
	return c.value[:2] + "****" + c.value[len(c.value)-2:]
}

func (c Credential) String() string {
	return fmt.Sprintf("%s(%s)", c.name, c.Redacted())
}

// Resolver fetches credentials through a Source, retrying propagation delays
// with exponential backoff. The cache is filled during Resolve and shared
// read-only across all probes afterwards.
type Resolver struct {
	source   Source
	cfg      config.Credentials
	jwtNames map[string]struct{}

	mu    sync.RWMutex
	cache map[string]Credential
}

// NewResolver creates a resolver. Names listed in jwtNames must parse as
// JWTs; malformed material fails fast as CredentialInvalid before any probe
// spends an attempt on it.
func NewResolver(source Source, cfg config.Credentials, jwtNames ...string) *Resolver {
	set := make(map[string]struct{}, len(jwtNames))
	for _, n := range jwtNames {
		set[n] = struct{}{}
	}
	return &Resolver{
		source:   source,
		cfg:      cfg,
		jwtNames: set,
		cache:    make(map[string]Credential),
	}
}

// Resolve fetches every named credential, waiting out propagation delays up
// to the configured budget. Returns CredentialUnavailable when a secret
// never shows up and CredentialInvalid when its value is unusable.
func (r *Resolver) Resolve(ctx context.Context, names []string) (map[string]Credential, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	resolved := make(map[string]Credential, len(sorted))
	for _, name := range sorted {
		if cred, ok := r.Get(name); ok {
			resolved[name] = cred
			continue
		}
		cred, err := r.resolveOne(ctx, name)
		if err != nil {
			return nil, err
		}
		resolved[name] = cred
	}
	return resolved, nil
}

// Reresolve bypasses the cache for one credential. The run scheduler calls
// it once per probe when an AuthError persists past the configured attempts,
// to tolerate secret-rotation races. No backoff: the secret either rotated
// already or it did not.
func (r *Resolver) Reresolve(ctx context.Context, name string) (Credential, error) {
	value, err := r.source.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Credential{}, verrors.NewCredentialUnavailable(name)
		}
		return Credential{}, err
	}
	cred := Credential{name: name, value: value}
	if err := r.validate(cred); err != nil {
		return Credential{}, err
	}

	r.mu.Lock()
	r.cache[name] = cred
	r.mu.Unlock()

	zap.S().Infow("credential re-resolved", "name", name, "value", cred.Redacted())
	return cred, nil
}

// Get returns a cached credential.
func (r *Resolver) Get(name string) (Credential, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.cache[name]
	return cred, ok
}

func (r *Resolver) resolveOne(ctx context.Context, name string) (Credential, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.cfg.BackoffBase
	expo.MaxInterval = r.cfg.BackoffCap

	operation := func() (Credential, error) {
		value, err := r.source.Lookup(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Credential{}, err
			}
			return Credential{}, backoff.Permanent(err)
		}
		cred := Credential{name: name, value: value}
		if err := r.validate(cred); err != nil {
			return Credential{}, backoff.Permanent(err)
		}
		return cred, nil
	}

	cred, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxElapsedTime(r.cfg.MaxWait),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.DeadlineExceeded) {
			return Credential{}, verrors.NewCredentialUnavailable(name)
		}
		return Credential{}, err
	}

	r.mu.Lock()
	r.cache[name] = cred
	r.mu.Unlock()

	zap.S().Debugw("credential resolved", "name", name, "value", cred.Redacted())
	return cred, nil
}

// validate rejects material that can never authenticate, before any probe
// attempts to use it. Platform API keys are JWTs; the check parses without
// verifying the signature since the signing secret belongs to the platform.
func (r *Resolver) validate(cred Credential) error {
	if _, ok := r.jwtNames[cred.name]; !ok {
		return nil
	}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(cred.value, jwt.MapClaims{}); err != nil {
		return verrors.NewCredentialInvalid(cred.name, "value is not a well-formed JWT")
	}
	return nil
}
