// Package daemon coordinates the long-running Vocalis process.
//
// It wires configuration, the queue and submission stores, the artifact
// store, the event hub, and the pipeline manager into a single lifecycle with
// flock-based locking to prevent multiple instances, and exposes the HTTP API
// used for submission intake, polling, and the live event stream.
//
// Keep orchestration logic here: the analysis step and worker pool live in
// internal/pipeline while the daemon focuses on startup, shutdown, and the
// operational surface.
package daemon
