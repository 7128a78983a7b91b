// Package history provides optional, pluggable run history recording. When a
// Store is configured on the runner, every delivered event is appended to it
// in delivery (sequence) order, making completed runs queryable after their
// event stream has been consumed.
package history
