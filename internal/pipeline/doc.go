// Package pipeline drives submissions through analysis. A bounded worker
// pool claims jobs from the durable queue, calls the analysis service, and
// resolves each submission to completed or failed. A background reconciler
// returns lapsed leases and orphaned submissions to the queue and enforces
// retention on terminal jobs.
package pipeline
