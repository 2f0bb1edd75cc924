// Package scheduler dispatches persisted work items to registered task
// handlers under per-type concurrency limits.
//
// A single sweep goroutine owns all dispatch decisions. It wakes on a
// buffered signal channel whenever work arrives or finishes and walks the
// pending queue in priority order, launching one goroutine per claimed item.
// The in-memory active set, not the database, is the source of truth for
// what is currently running; the store is only consulted for pending work
// and for persisting terminal outcomes.
//
// Handlers never crash the daemon: errors and panics are captured, persisted
// on the work item, and published as queue updates.
package scheduler
