// Package services provides shared helpers for easel's execution pipeline:
// the error taxonomy used to classify provider and ingestion failures, and
// context annotation for correlating log output with work items and
// generations.
package services
