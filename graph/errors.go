package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBuilderUsed is returned when a Builder is mutated or built again after a
// successful Build. Builders are single-use; create a new one per workflow.
var ErrBuilderUsed = errors.New("builder already used: create a new builder per workflow")

// BuildError aggregates every structural issue found during declaration and
// validation so callers can fix a whole topology in one pass.
type BuildError struct {
	Issues []string
}

// Error implements the error interface for BuildError.
func (e *BuildError) Error() string {
	return fmt.Sprintf("invalid workflow: %s", strings.Join(e.Issues, "; "))
}

// HasIssue reports whether any collected issue contains the given substring.
// Intended for diagnostics and tests.
func (e *BuildError) HasIssue(substr string) bool {
	for _, issue := range e.Issues {
		if strings.Contains(issue, substr) {
			return true
		}
	}
	return false
}
