// Package swarm implements three collaborators on the Docker Swarm API:
// the secret store (create/remove/inspect named secrets), the task runner
// (launch a one-shot service, poll its task to a terminal state, remove
// it), and the service updater (atomic secret-attachment cutover).
//
// Cutover atomicity rests on a single ServiceUpdate call carrying both
// removals and additions: Swarm applies the new secret set as one spec
// revision, so a consuming service never observes a window with zero
// valid secrets attached.
package swarm
