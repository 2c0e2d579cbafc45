// Package retry wraps cenkalti/backoff with the policy this codebase uses
// for collaborator calls: a small bounded number of attempts with
// exponential backoff, honoring context cancellation.
//
// It is intentionally only used at integration boundaries for transient
// faults (throttled API calls, racing reads). Cycle-level retry stays with
// the scheduler: a failed cycle is retried by the next scheduled
// invocation, never by looping inside the cycle.
package retry
