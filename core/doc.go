// Package core provides the foundational domain types, interfaces and execution
// contexts used by FlowMesh. It defines the core abstractions for:
//
//   - Messages (typed payloads flowing along workflow edges)
//   - Events (immutable run-lifecycle + orchestration records)
//   - Executors (polymorphic node handlers)
//   - RunContext (scoped per-node execution carrier)
//   - State (run-scoped key/value store with atomic read-modify-write)
//
// The package intentionally keeps implementation concerns (graph compilation,
// scheduling, concrete executors) out of scope, exposing small interfaces to
// enable custom node types and extensions. All exported identifiers include
// concise documentation to aid discoverability and external consumption.
package core
