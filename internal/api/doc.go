// Package api defines wire-format types and converters for the daemon HTTP
// API, plus the submission service shared by the HTTP handlers and the CLI.
// It translates internal queue and submission models into transport-friendly
// DTOs so consumers never couple to internal types.
//
// DTOs use camelCase JSON tags. Internal enums (queue.State,
// submission.Status) are exposed as lowercase strings and timestamps use
// RFC3339 with milliseconds.
package api
