package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound signals a secret that has not propagated yet. The resolver
// retries these; any other lookup error aborts resolution.
var ErrNotFound = errors.New("credential not found")

// Source looks up raw secret values by credential name. Implementations must
// be safe for concurrent use.
type Source interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// EnvSource reads credentials from environment variables. The credential
// name is upper-cased and prefixed, so "anon_key" becomes
// "VERIFIER_CREDENTIAL_ANON_KEY" with the default prefix.
type EnvSource struct {
	prefix string
}

func NewEnvSource(prefix string) *EnvSource {
	if prefix == "" {
		prefix = "VERIFIER_CREDENTIAL_"
	}
	return &EnvSource{prefix: prefix}
}

func (s *EnvSource) Lookup(_ context.Context, name string) (string, error) {
	key := s.prefix + strings.ToUpper(name)
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, key)
	}
	return value, nil
}

// DirSource reads one file per credential under a directory, the layout a
// mounted secret volume exposes. Values are trimmed of trailing whitespace.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Lookup(_ context.Context, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: no file for %q in %s", ErrNotFound, name, s.dir)
		}
		return "", fmt.Errorf("failed to read credential %q: %w", name, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("%w: file for %q is empty", ErrNotFound, name)
	}
	return value, nil
}

// StaticSource serves a fixed map of credentials. Used in tests.
type StaticSource struct {
	values map[string]string
}

func NewStaticSource(values map[string]string) *StaticSource {
	return &StaticSource{values: values}
}

func (s *StaticSource) Lookup(_ context.Context, name string) (string, error) {
	value, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}
