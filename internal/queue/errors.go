package queue

import "errors"

// ErrNotFound indicates the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// ErrStateConflict indicates a job transition was refused because the job is
// no longer in the expected state, for example after a lease reclaim.
var ErrStateConflict = errors.New("job state conflict")
