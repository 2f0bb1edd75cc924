// Package main hosts the easel CLI entrypoint and command graph.
//
// The Cobra-based command tree covers queue inspection and maintenance,
// endpoint catalog browsing and refresh, remote model search and
// registration, configuration scaffolding, and a daemon status summary. It
// centralizes configuration resolution so subcommands can focus on output.
//
// Keep this package lean: add new functionality in the internal packages
// first, then surface it through a command or flag here.
package main
