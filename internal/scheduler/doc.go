// Package scheduler triggers named periodic jobs on fixed intervals.
//
// # Overview
//
// Jobs are registered under a stable logical name (e.g. "lifecycle:poll") so
// they can be replaced (upserted) and removed deterministically. Triggering is
// backed by robfig/cron "@every" schedules; each run gets its own goroutine,
// an optional timeout, and panic recovery.
//
// # Overlap
//
// A job never overlaps with itself: if the previous run is still executing
// when the next trigger fires, the trigger is skipped and logged.
//
// # Lifecycle
//
// Registering jobs while stopped is supported: definitions are kept and
// applied on the next Start. RunNow dispatches one run immediately without
// waiting for the first interval.
package scheduler
