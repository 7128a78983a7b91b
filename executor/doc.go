// Package executor provides the concrete node implementations that run inside
// a workflow graph: plain function wrappers, model-backed agents with tool
// calling, and sub-workflow adapters. All implementations satisfy
// core.Executor and are safe for concurrent invocations across runs.
package executor
