// Package handlers exposes the persona API over gin.
//
// Routes (relative to the API base path):
//   - GET    /personas
//   - POST   /personas
//   - GET    /personas/{id}
//   - POST   /personas/{id}/documents
//   - POST   /personas/{id}/reindex
//   - POST   /personas/{id}/messages
//   - GET    /personas/{id}/turns
//
// Handlers are transport-thin: they bind and normalize input, call a service
// and translate the result, including conditional (ETag) responses.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/services"
)

// PersonaService manages personas.
type PersonaService interface {
	Create(ctx context.Context, in services.CreatePersonaInput) (*domain.Persona, error)
	List(ctx context.Context) ([]domain.Persona, error)
	Get(ctx context.Context, id uint) (*domain.Persona, error)
	Stats(ctx context.Context) (count, updatedUnix int64, maxDocID uint, err error)
}

// DocumentService stores documents and rebuilds indexes.
type DocumentService interface {
	Upload(ctx context.Context, in services.UploadInput) (*domain.Document, error)
	Reindex(ctx context.Context, personaID uint) error
}

// ConversationService answers one user message.
type ConversationService interface {
	HandleMessage(ctx context.Context, in services.MessageInput) (*services.Reply, error)
}

// TurnService pages through stored turns.
type TurnService interface {
	ListPage(ctx context.Context, userID int64, personaID uint, page, pageSize int) ([]domain.Turn, int64, int, error)
	Stats(ctx context.Context, userID int64, personaID uint) (int64, uint, error)
}

// Handlers groups the API endpoints.
type Handlers struct {
	personas PersonaService
	docs     DocumentService
	convo    ConversationService
	turns    TurnService

	// MaxUploadBytes caps the multipart file read; 0 means 10 MiB.
	MaxUploadBytes int64
}

// New constructs Handlers bound to the given services.
func New(p PersonaService, d DocumentService, c ConversationService, t TurnService) *Handlers {
	return &Handlers{personas: p, docs: d, convo: c, turns: t}
}

// personaID parses the :id path parameter, failing the request when it is
// not a positive integer.
func personaID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "persona id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// notModified sets ETag and reports whether If-None-Match already matches it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
