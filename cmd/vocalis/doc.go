// Command vocalis is the operator CLI for the Vocalis analysis pipeline.
//
// It submits recordings, inspects submissions and the job queue, manages
// configuration, and checks daemon and analysis service health. Commands work
// against the daemon's HTTP API when one is running and fall back to the
// SQLite stores directly when it is not.
package main
