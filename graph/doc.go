// Package graph provides the declaration and compilation layer for FlowMesh
// workflows. A Builder accumulates nodes, edges, fan-out and fan-in groups,
// validates the topology and produces an immutable Workflow that the runner
// executes.
//
// Validation happens at Build time: issues found during declaration (duplicate
// nodes, dangling endpoints, invalid thresholds, unreachable nodes) are
// collected and surfaced together as a BuildError rather than failing fast on
// the first mistake.
//
// A Builder is single-use. After a successful Build the builder is frozen and
// further mutation or Build calls fail with ErrBuilderUsed; the compiled
// Workflow never changes.
package graph
