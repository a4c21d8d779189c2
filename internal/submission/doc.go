// Package submission persists voice recording submissions and their analysis
// outcomes. A submission moves pending -> processing -> completed or failed;
// transitions are guarded in SQL so stale workers cannot resurrect a record
// that already reached a terminal status.
package submission
