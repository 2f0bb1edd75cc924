// Package queue persists easel's work items in SQLite.
//
// The store is pure data access: scheduling decisions live in the scheduler
// package, and the queue never deletes items on its own. Items survive
// process restarts; MarkInterrupted sweeps anything left pending or
// processing to failed during startup recovery.
package queue
