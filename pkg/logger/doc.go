// Package logger provides slog attribute helpers shared by the rotation
// components. Helpers follow the empty-Attr pattern: passing a nil error
// to Error yields an attribute slog silently drops, so call sites never
// need nil checks.
package logger
