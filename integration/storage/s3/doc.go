// Package s3 implements the object-store collaborator on Amazon S3 and
// S3-compatible services.
//
// The store holds one renewal cycle's artifacts under a run-scoped prefix:
//
//	{prefix}/{runID}/{domain}/cert.pem
//	{prefix}/{runID}/{domain}/privkey.pem
//	{prefix}/{runID}/{domain}/fullchain.pem
//	{prefix}/{runID}/{domain}/bundle.p12
//	{prefix}/{runID}/renewal-status.json
//
// Writes are idempotent overwrites, so re-running a publish for the same
// run identifier is always safe. Get classifies missing keys as
// ErrNotFound so callers can distinguish "no record written" from real
// faults.
package s3
