// Package hcl loads declarative workflow definitions from HCL files and
// compiles them through graph.Builder. Node blocks reference executor types
// registered in a Registry, so topology lives in configuration while behavior
// stays in code.
package hcl
