// Package config defines the configuration structure for the verifier.
//
// Configuration is organized into logical sections (Run, Credentials,
// Artifacts) plus top-level logging settings. Defaults come from struct tags,
// overridden by an optional YAML file and then by VERIFIER_* environment
// variables.
//
// # Run Configuration
//
//	┌─────────────────────────┬─────────┬──────────────────────────────────────────┐
//	│ Field                   │ Default │ Description                              │
//	├─────────────────────────┼─────────┼──────────────────────────────────────────┤
//	│ MaxInFlight             │ 8       │ Concurrent probes within a phase         │
//	│ Deadline                │ 10m     │ Wall-clock budget for the whole run      │
//	│ DefaultTimeout          │ 10s     │ Per-probe timeout when not declared      │
//	│ DefaultMaxAttempts      │ 3       │ Per-probe attempt budget                 │
//	│ DefaultBackoffBase      │ 500ms   │ First retry delay                        │
//	│ DefaultBackoffCap       │ 5s      │ Upper bound on retry delays              │
//	│ StrictGatewayOrdering   │ true    │ Gateway checks run after service checks  │
//	└─────────────────────────┴─────────┴──────────────────────────────────────────┘
//
// # Credentials Configuration
//
//	┌─────────────┬─────────┬───────────────────────────────────────────────┐
//	│ Field       │ Default │ Description                                   │
//	├─────────────┼─────────┼───────────────────────────────────────────────┤
//	│ Source      │ "env"   │ Secret source: "env" or "dir"                 │
//	│ Dir         │ ""      │ Directory for the "dir" source                │
//	│ BackoffBase │ 1s      │ First delay while waiting for propagation     │
//	│ BackoffCap  │ 15s     │ Upper bound on propagation delays             │
//	│ MaxWait     │ 2m      │ Total budget waiting for a secret to appear   │
//	└─────────────┴─────────┴───────────────────────────────────────────────┘
//
// # Artifacts Configuration
//
//	┌─────────────────┬─────────────┬─────────────────────────────────────────┐
//	│ Field           │ Default     │ Description                             │
//	├─────────────────┼─────────────┼─────────────────────────────────────────┤
//	│ Dir             │ "artifacts" │ Manifest and report output directory    │
//	│ TTL             │ 30m         │ Artifact lifetime after a run finishes  │
//	│ GraceWindow     │ 2m          │ Budget for cleanup functions to run     │
//	│ RetainOnFailure │ false       │ Hold failed-run artifacts until acked   │
//	└─────────────────┴─────────────┴─────────────────────────────────────────┘
//
// # Environment Variables
//
// Every key can be set through the environment with the VERIFIER_ prefix and
// underscores for section separators, e.g. VERIFIER_RUN_MAX_IN_FLIGHT=4 or
// VERIFIER_CREDENTIALS_SOURCE=dir. Environment values take precedence over
// the file.
//
// Credential values never pass through this package; only the source
// selection does.
package config
