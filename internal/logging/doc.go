// Package logging constructs the slog loggers used across easel.
//
// It supports a tinted console format for interactive use and a JSON format
// for machine consumption, provides standardized attribute helpers, and
// derives per-component and per-context loggers so work items and
// generations carry their identifiers through every log line.
package logging
