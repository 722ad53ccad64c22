// Package main hosts the storyloom CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into tracker
// operations: creating a generation job, re-attaching to a running one,
// showing a one-shot status view, cancelling, and configuration scaffolding.
// It centralizes configuration resolution and logging setup so subcommands
// can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
