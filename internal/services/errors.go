// Package services defines the business logic for personas, their documents
// and the conversation cycle. This file centralizes the service-level error
// values so that handlers can map them to HTTP status codes consistently.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

var (
	// ErrValidation wraps every input validation failure; the wrapped message
	// names the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrPersonaNotFound indicates that the referenced persona does not exist.
	ErrPersonaNotFound = errors.New("persona not found")

	// ErrSlugConflict is returned when a new persona's name maps to a slug
	// already owned by another persona.
	ErrSlugConflict = errors.New("persona slug already exists")

	// ErrIndexNotFound is returned when a persona has no published index.
	ErrIndexNotFound = vectorindex.ErrIndexNotFound
)

// ModelInvocationError reports a failed retrieval or model call while
// answering for a persona. The user turn written before the call remains.
type ModelInvocationError struct {
	PersonaID uint
	Err       error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("persona %d: model invocation failed: %v", e.PersonaID, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
