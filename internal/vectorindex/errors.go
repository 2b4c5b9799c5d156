package vectorindex

import (
	"errors"
	"fmt"
)

// ErrIndexNotFound is returned when no index version has been published for a
// persona.
var ErrIndexNotFound = errors.New("index not found")

// ErrInvalidInput is returned by IngestInput.Validate.
var ErrInvalidInput = errors.New("invalid ingest input")

// IngestionError reports a failed store or rebuild for a persona partition.
// Op names the step that failed (store, load, embed, write, publish).
type IngestionError struct {
	Slug string
	Op   string
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Slug, e.Op, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

func ingestErr(slug, op string, err error) error {
	return &IngestionError{Slug: slug, Op: op, Err: err}
}

// ErrNoDocuments is wrapped in an IngestionError when a partition yields no
// passages to index.
var ErrNoDocuments = errors.New("no indexable documents")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("index manager closed")
