// Package engine owns the single SQL engine of a session: bootstrapping it
// from a published database image, executing queries against it, and
// reporting its health.
//
// The bootstrap is idempotent. Any number of call sites may ask for the
// engine concurrently; exactly one initialization runs, everyone waits on
// it, and the winning handle is shared for the lifetime of the session.
// Chunked loading (parallel byte-range requests assembled by a dedicated
// worker goroutine) is the common case; a monolithic full download is the
// fallback whenever the chunked path fails for any environmental reason,
// such as a host without HTTP 206 support or a worker that never becomes
// ready. The fallback trades bandwidth for reliability.
package engine
