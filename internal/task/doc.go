// ABOUTME: Package task tracks in-flight and recently finished client tasks.
// ABOUTME: Retention and capacity are enforced after every mutation.

// Package task implements the gateway's in-memory task registry.
//
// A Registry holds one Record per task id. Terminal records (completed or
// failed) are swept once they are older than the configured retention, and
// when the registry grows past its capacity the oldest terminal records are
// evicted first. Active records are never evicted.
//
// Starting a task whose id already exists reactivates it: a terminal task is
// moved back to running with its progress reset, while an active task keeps
// its status and progress and only has its descriptive fields refreshed.
package task
