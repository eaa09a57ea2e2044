// Package epoch serves as an umbrella for epoch lifecycle management.
//
// The package is organized into subpackages:
//   - domain: the epoch snapshot model and the pure phase state machine.
//   - source: collaborator contracts for the epoch registry and presence feed.
//   - storage: the epoch-scoped ephemeral cache contract and SQLite store.
//   - lifecycle: the monitoring orchestrator enforcing purge-on-close.
//   - app: the daemon runtime wiring the pieces together.
package epoch
