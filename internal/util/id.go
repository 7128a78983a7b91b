package util

import "github.com/google/uuid"

// NewID returns a new random identifier for runs, events and messages.
func NewID() string {
	return uuid.NewString()
}
