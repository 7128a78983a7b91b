// Package model defines the normalized language model abstraction used by
// agent executors, together with the role-based chat content types providers
// translate to and from. Concrete provider adapters live in subpackages
// (model/openai, model/anthropic); MockModel supports tests and examples
// without network access.
//
// The Model interface is deliberately channel-based: Generate returns a
// response stream plus an error channel so streaming and non-streaming
// providers share one shape.
package model
