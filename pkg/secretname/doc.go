// Package secretname derives deterministic secret handle names from a
// domain, a bundle file role, and a run identifier.
//
// Names follow the shape <domain>-<role-file>-<run-id>, e.g.
// "example-com-cert.pem-20260826-143015-3fa85f64". The run identifier
// suffix guarantees names never collide across cycles, which is what makes
// create-new-before-remove-old cutover safe: the previous cycle's handles
// stay valid until they are explicitly pruned.
package secretname
