package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/http/middleware"
	"github.com/tbourn/persona-rag-backend/internal/services"
)

var errNotStubbed = errors.New("not stubbed")

type stubPersonas struct {
	create func(context.Context, services.CreatePersonaInput) (*domain.Persona, error)
	list   func(context.Context) ([]domain.Persona, error)
	get    func(context.Context, uint) (*domain.Persona, error)
	stats  func(context.Context) (int64, int64, uint, error)
}

func (s stubPersonas) Create(ctx context.Context, in services.CreatePersonaInput) (*domain.Persona, error) {
	if s.create == nil {
		return nil, errNotStubbed
	}
	return s.create(ctx, in)
}

func (s stubPersonas) List(ctx context.Context) ([]domain.Persona, error) {
	if s.list == nil {
		return nil, errNotStubbed
	}
	return s.list(ctx)
}

func (s stubPersonas) Get(ctx context.Context, id uint) (*domain.Persona, error) {
	if s.get == nil {
		return nil, errNotStubbed
	}
	return s.get(ctx, id)
}

func (s stubPersonas) Stats(ctx context.Context) (int64, int64, uint, error) {
	if s.stats == nil {
		return 0, 0, 0, errNotStubbed
	}
	return s.stats(ctx)
}

type stubDocs struct {
	upload  func(context.Context, services.UploadInput) (*domain.Document, error)
	reindex func(context.Context, uint) error
}

func (s stubDocs) Upload(ctx context.Context, in services.UploadInput) (*domain.Document, error) {
	if s.upload == nil {
		return nil, errNotStubbed
	}
	return s.upload(ctx, in)
}

func (s stubDocs) Reindex(ctx context.Context, id uint) error {
	if s.reindex == nil {
		return errNotStubbed
	}
	return s.reindex(ctx, id)
}

type stubConvo func(context.Context, services.MessageInput) (*services.Reply, error)

func (f stubConvo) HandleMessage(ctx context.Context, in services.MessageInput) (*services.Reply, error) {
	if f == nil {
		return nil, errNotStubbed
	}
	return f(ctx, in)
}

type stubTurns struct {
	list  func(context.Context, int64, uint, int, int) ([]domain.Turn, int64, int, error)
	stats func(context.Context, int64, uint) (int64, uint, error)
}

func (s stubTurns) ListPage(ctx context.Context, userID int64, personaID uint, page, size int) ([]domain.Turn, int64, int, error) {
	if s.list == nil {
		return nil, 0, 0, errNotStubbed
	}
	return s.list(ctx, userID, personaID, page, size)
}

func (s stubTurns) Stats(ctx context.Context, userID int64, personaID uint) (int64, uint, error) {
	if s.stats == nil {
		return 0, 0, errNotStubbed
	}
	return s.stats(ctx, userID, personaID)
}

// newRouter mounts every handler the way the production router does, minus
// the cross-cutting middleware that is tested on its own.
func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}))
	r.GET("/personas", h.ListPersonas)
	r.POST("/personas", h.CreatePersona)
	r.GET("/personas/:id", h.GetPersona)
	r.POST("/personas/:id/documents", h.UploadDocument)
	r.POST("/personas/:id/reindex", h.ReindexPersona)
	r.POST("/personas/:id/messages", h.PostMessage)
	r.GET("/personas/:id/turns", h.ListTurns)
	return r
}
