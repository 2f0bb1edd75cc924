// Package config loads, normalizes, and validates easel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// provider credentials. The Config type centralizes every knob the daemon
// and CLI need: state/staging/library directories, the local engine command,
// remote polling defaults, and notification settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
