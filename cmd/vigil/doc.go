// Package main hosts the vigil CLI entrypoint and command graph.
//
// The Cobra-based command tree drives analysis runs against the backend,
// manages stored configurations and results, inspects the local run journal,
// and serves the local control API. It centralizes configuration resolution,
// logger construction, and orchestrator wiring so subcommands can focus on
// presentation.
//
// Keep this package lean: add new behaviour to the internal packages first,
// then surface it through dedicated commands or flags here.
package main
