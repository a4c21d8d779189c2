// Package logging configures structured logging for Vocalis on top of
// log/slog. It provides a JSON handler for machine consumption, a compact
// console handler for interactive use, and helpers for attaching
// standardized fields from request context.
package logging
