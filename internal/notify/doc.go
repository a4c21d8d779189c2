// Package notify fans out submission lifecycle events to interested owners.
// Delivery is best effort: events are held in a bounded per-owner ring buffer
// and a slow or absent consumer loses the oldest events rather than blocking
// the pipeline.
package notify
