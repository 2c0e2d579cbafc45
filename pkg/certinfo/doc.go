// Package certinfo parses PEM-encoded certificates and computes
// calendar-accurate expiry distances. Day counting compares UTC calendar
// dates rather than dividing wall-clock hours, so DST transitions and
// sub-day offsets never skew the renewal-threshold comparison.
package certinfo
