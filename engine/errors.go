package engine

import (
	"fmt"
)

// BootstrapError indicates that both the chunked and the full-download
// paths failed. It is fatal for the session until an explicit retry.
//
// The underlying error of the last attempt can be accessed via errors.Unwrap.
type BootstrapError struct {
	// URL is the last asset that was being fetched when the attempt died.
	URL   string
	cause error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("engine bootstrap failed (last asset %s): %v", e.URL, e.cause)
}

func (e *BootstrapError) Unwrap() error { return e.cause }

// ContractError indicates the engine's expected execution entry point is
// missing: the sqlite driver was not registered, or the worker exited
// before serving. This is a packaging defect, not a bad query, and is kept
// distinct from QueryError so callers can tell the two apart.
type ContractError struct {
	Missing string
	cause   error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("engine contract violation: %s", e.Missing)
}

func (e *ContractError) Unwrap() error { return e.cause }

// QueryError wraps an engine-level failure for a well-formed request. It is
// local to the calling feature: the engine itself remains usable.
//
// SQL and Params are carried verbatim for diagnostics; this layer serves a
// public read-only dataset and has nothing to redact.
type QueryError struct {
	SQL    string
	Params []any
	cause  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v (sql: %s, params: %v)", e.cause, e.SQL, e.Params)
}

func (e *QueryError) Unwrap() error { return e.cause }
