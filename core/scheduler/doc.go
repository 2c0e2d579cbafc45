// Package scheduler runs rotation cycles on a fixed interval or once on
// demand. A host-local file lock keeps concurrent invocations from
// racing each other, and each cycle's outcome is persisted to a status
// file for external health checks.
package scheduler
