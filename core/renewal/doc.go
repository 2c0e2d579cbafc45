// Package renewal implements the renewal worker: the short-lived process
// that decides whether managed domains need (re)issuance, drives the ACME
// client, packages per-domain bundles, and publishes them with a
// machine-readable renewal record under a run-scoped object-store prefix.
//
// The worker makes exactly one attempt per external call. If anything
// fails the run exits non-zero and the next scheduled cycle retries from
// scratch; looping inside the worker would keep the transient task alive
// past the orchestrator's patience for no benefit. A failed run never
// deletes or overwrites a still-valid on-disk certificate.
//
// # Types
//
//   - Worker: sequences assess → issue → package → publish
//   - Decision: outcome of the renewal-need check
//   - Bundle: one domain's artifact set for one run
//   - Record: the renewal record the orchestrator reads
//
// # Errors
//
//   - ErrIssuance: ACME exchange failed
//   - ErrUpload: object-store write failed
//   - ErrSecretStore: shared password rotation failed
package renewal
