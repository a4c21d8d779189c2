// Package analysis talks to the remote voice analysis service over HTTP. It
// uploads recordings for scoring, classifies transport and service failures
// into the shared error taxonomy, and retries timed-out calls a bounded
// number of times before giving up.
package analysis
