// Package runid generates and validates run identifiers.
//
// A run identifier correlates one renewal cycle's worker task, object-store
// prefix, and secret handles. It is timestamp-prefixed so identifiers sort
// chronologically, with a short random suffix so two cycles started within
// the same second still stay distinct. Uniqueness across overlapping cycles
// is enforced by the scheduler's lock, not by this package.
package runid
