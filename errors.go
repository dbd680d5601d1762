package litefetch

import (
	"github.com/hupe1980/litefetch/engine"
	"github.com/hupe1980/litefetch/manifest"
)

// The error taxonomy is defined where the errors are produced and
// re-exported here so consumers need only one import to type-switch on
// failures.
//
// Remediation differs by type: a ConfigError or BootstrapError means the
// session is down and needs an explicit retry; a ContractError is a
// packaging defect worth an alert; a QueryError is local to one request and
// the engine remains usable.

// ConfigError indicates the deployment manifest was unreachable, malformed,
// or missing required fields.
type ConfigError = manifest.ConfigError

// BootstrapError indicates both the chunked and the full-download loading
// paths failed.
type BootstrapError = engine.BootstrapError

// ContractError indicates the engine's execution entry point is missing.
// This is a packaging defect, not a bad query.
type ContractError = engine.ContractError

// QueryError wraps an engine-level failure for a single well-formed
// request, carrying the offending SQL and parameters for diagnostics.
type QueryError = engine.QueryError
