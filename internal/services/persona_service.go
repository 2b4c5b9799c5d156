// Package services – PersonaService
//
// PersonaService creates and lists personas. The slug is computed once from
// the display name at creation time and stored; it is the partition key for
// the persona's documents and index, so collisions are rejected up front.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/repo"
	"github.com/tbourn/persona-rag-backend/internal/slug"
)

const (
	maxNameRunes        = 255
	maxDescriptionRunes = 4000
)

// CreatePersonaInput is the payload for PersonaService.Create.
type CreatePersonaInput struct {
	Name        string
	Description string
}

// Validate reports the first invalid field.
func (in CreatePersonaInput) Validate() error {
	name := normalizeName(in.Name)
	switch {
	case name == "":
		return invalid("name is required")
	case utf8.RuneCountInString(name) > maxNameRunes:
		return invalid("name exceeds %d characters", maxNameRunes)
	case slug.Make(name) == "":
		return invalid("name %q has no letters or digits", name)
	case utf8.RuneCountInString(in.Description) > maxDescriptionRunes:
		return invalid("description exceeds %d characters", maxDescriptionRunes)
	}
	return nil
}

// PersonaService manages persona records.
type PersonaService struct {
	DB *gorm.DB
}

// NewPersonaService constructs a PersonaService.
func NewPersonaService(db *gorm.DB) *PersonaService {
	return &PersonaService{DB: db}
}

// Create validates the input, derives the slug and inserts the persona.
// A slug that is already taken yields ErrSlugConflict.
func (s *PersonaService) Create(ctx context.Context, in CreatePersonaInput) (*domain.Persona, error) {
	ctx, span := otel.Tracer("services/PersonaService").Start(ctx, "Create")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	name := normalizeName(in.Name)
	sl := slug.Make(name)
	span.SetAttributes(attribute.String("persona.slug", sl))

	taken, err := repo.SlugExists(ctx, s.DB, sl)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlugConflict
	}

	p, err := repo.CreatePersona(ctx, s.DB, name, sl, strings.TrimSpace(in.Description))
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost a race with a concurrent create, or the name itself is taken.
		return nil, ErrSlugConflict
	}
	return p, err
}

// List returns every persona with its documents, in creation order.
func (s *PersonaService) List(ctx context.Context) ([]domain.Persona, error) {
	ctx, span := otel.Tracer("services/PersonaService").Start(ctx, "List")
	defer span.End()
	return repo.ListPersonas(ctx, s.DB)
}

// Stats returns a fingerprint of the persona list: the persona count, the
// newest update time (unix seconds, 0 when empty) and the highest document id.
func (s *PersonaService) Stats(ctx context.Context) (int64, int64, uint, error) {
	n, ts, docID, err := repo.PersonasStats(ctx, s.DB)
	if err != nil || ts == nil {
		return n, 0, docID, err
	}
	return n, ts.Unix(), docID, nil
}

// Get returns one persona with its documents.
func (s *PersonaService) Get(ctx context.Context, id uint) (*domain.Persona, error) {
	ctx, span := otel.Tracer("services/PersonaService").Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("persona.id", int64(id))),
	)
	defer span.End()

	p, err := repo.GetPersonaWithDocuments(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPersonaNotFound
	}
	return p, err
}

// lookupPersona resolves id or returns ErrPersonaNotFound.
func lookupPersona(ctx context.Context, db *gorm.DB, id uint) (*domain.Persona, error) {
	p, err := repo.GetPersona(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPersonaNotFound
	}
	return p, err
}

// normalizeName trims whitespace and collapses inner runs to one space.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var whitespaceRE = regexp.MustCompile(`\s+`)
