// Package rotation drives one certificate rotation cycle on the manager
// side: launch a one-shot renewal worker, poll it to completion, fetch
// the run's renewal record, download the published bundles, register
// them as run-scoped cluster secrets and cut consuming services over.
//
// The orchestrator never holds ACME credentials or talks to the CA; all
// issuance happens inside the worker task. Its own writes are shaped so
// that a crash at any point leaves consuming services on their previous,
// still-valid secrets: new secrets are created before any service update,
// and a cutover is a single atomic update per service carrying both the
// removals and the additions.
//
// Worker teardown happens exactly once per cycle, success or failure,
// including on poll timeout.
package rotation
