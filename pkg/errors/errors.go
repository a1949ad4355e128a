// Package errors defines the typed errors shared across the verification
// engine. Callers match them with errors.As/errors.Is rather than string
// comparison.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// CredentialUnavailableError reports a secret that has not propagated from
// the external secret source within the resolver's backoff budget.
type CredentialUnavailableError struct {
	Name string
}

func NewCredentialUnavailable(name string) *CredentialUnavailableError {
	return &CredentialUnavailableError{Name: name}
}

func (e *CredentialUnavailableError) Error() string {
	return fmt.Sprintf("credential %q is not available yet", e.Name)
}

// CredentialInvalidError reports a secret whose value is present but
// unusable, either malformed or rejected by the target service.
type CredentialInvalidError struct {
	Name   string
	Reason string
}

func NewCredentialInvalid(name, reason string) *CredentialInvalidError {
	return &CredentialInvalidError{Name: name, Reason: reason}
}

func (e *CredentialInvalidError) Error() string {
	return fmt.Sprintf("credential %q is invalid: %s", e.Name, e.Reason)
}

// CyclicDependencyError is returned by the plan builder when the declared
// dependency graph has no topological order. It is fatal: no probe runs.
type CyclicDependencyError struct {
	Cycle []string
}

func NewCyclicDependency(cycle []string) *CyclicDependencyError {
	return &CyclicDependencyError{Cycle: cycle}
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency between checks: %s", strings.Join(e.Cycle, " -> "))
}

// RunCancelledError reports a run that stopped before all phases completed,
// either because the run deadline expired or an external cancel arrived.
type RunCancelledError struct {
	Reason string
}

func NewRunCancelled(reason string) *RunCancelledError {
	return &RunCancelledError{Reason: reason}
}

func (e *RunCancelledError) Error() string {
	return fmt.Sprintf("run cancelled: %s", e.Reason)
}

func IsCredentialUnavailable(err error) bool {
	var target *CredentialUnavailableError
	return errors.As(err, &target)
}

func IsCredentialInvalid(err error) bool {
	var target *CredentialInvalidError
	return errors.As(err, &target)
}

func IsCyclicDependency(err error) bool {
	var target *CyclicDependencyError
	return errors.As(err, &target)
}

func IsRunCancelled(err error) bool {
	var target *RunCancelledError
	return errors.As(err, &target)
}
