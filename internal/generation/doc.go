// Package generation orchestrates the life of a generation: validating a
// submission against the endpoint's canonical schema, persisting the record
// and its reference inputs, enqueueing the work item, and running the
// provider-specific handlers that execute it and file the results.
package generation
