// Package services – DocumentService
//
// DocumentService accepts uploads for a persona: the file is written into the
// persona's partition, recorded, and the persona's index is rebuilt from every
// file in the partition. A failed rebuild leaves the file and its record in
// place and the previously published index serving queries.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/retriever"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/loader"
	"github.com/tbourn/persona-rag-backend/internal/repo"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

// IndexManager is the part of the vector index manager the services use.
type IndexManager interface {
	Store(in vectorindex.IngestInput) (string, error)
	Rebuild(ctx context.Context, slug string) error
	Retriever(ctx context.Context, slug string, topK int) (retriever.Retriever, error)
}

// UploadInput is one uploaded file.
type UploadInput struct {
	PersonaID   uint
	Filename    string
	Content     []byte
	Description string
}

// Validate checks the input against maxBytes (0 disables the size check).
func (in UploadInput) Validate(maxBytes int64) error {
	switch {
	case in.PersonaID == 0:
		return invalid("persona id is required")
	case strings.TrimSpace(in.Filename) == "":
		return invalid("file name is required")
	case len(in.Content) == 0:
		return invalid("file is empty")
	case maxBytes > 0 && int64(len(in.Content)) > maxBytes:
		return invalid("file exceeds %d bytes", maxBytes)
	case utf8.RuneCountInString(in.Description) > maxDescriptionRunes:
		return invalid("description exceeds %d characters", maxDescriptionRunes)
	}
	if _, err := loader.SanitizeFilename(in.Filename); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// DocumentService stores documents and keeps persona indexes current.
type DocumentService struct {
	DB       *gorm.DB
	Index    IndexManager
	MaxBytes int64
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(db *gorm.DB, idx IndexManager, maxBytes int64) *DocumentService {
	return &DocumentService{DB: db, Index: idx, MaxBytes: maxBytes}
}

// Upload stores the file, records it and rebuilds the persona's index. When
// the rebuild fails the created record is returned together with the
// *vectorindex.IngestionError.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*domain.Document, error) {
	ctx, span := otel.Tracer("services/DocumentService").Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.Int64("persona.id", int64(in.PersonaID)),
			attribute.Int("file.size", len(in.Content)),
		),
	)
	defer span.End()

	if err := in.Validate(s.MaxBytes); err != nil {
		return nil, err
	}
	p, err := lookupPersona(ctx, s.DB, in.PersonaID)
	if err != nil {
		return nil, err
	}

	rel, err := s.Index.Store(vectorindex.IngestInput{
		PersonaID: p.ID,
		Slug:      p.Slug,
		Filename:  in.Filename,
		Content:   in.Content,
	})
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Content)
	doc, err := repo.CreateDocument(ctx, s.DB, p.ID, rel, strings.TrimSpace(in.Description),
		int64(len(in.Content)), hex.EncodeToString(sum[:]))
	if err != nil {
		return nil, err
	}

	if err := s.Index.Rebuild(ctx, p.Slug); err != nil {
		span.RecordError(err)
		return doc, err
	}
	return doc, nil
}

// Reindex rebuilds a persona's index from the files already in its partition.
func (s *DocumentService) Reindex(ctx context.Context, personaID uint) error {
	ctx, span := otel.Tracer("services/DocumentService").Start(ctx, "Reindex",
		trace.WithAttributes(attribute.Int64("persona.id", int64(personaID))),
	)
	defer span.End()

	p, err := lookupPersona(ctx, s.DB, personaID)
	if err != nil {
		return err
	}
	return s.Index.Rebuild(ctx, p.Slug)
}
