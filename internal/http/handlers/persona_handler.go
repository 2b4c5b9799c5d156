// Persona HTTP handlers.
//
//   - GET  /personas       (list with documents, ETag support)
//   - POST /personas       (create)
//   - GET  /personas/{id}  (get one)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/services"
)

// CreatePersonaRequest is the JSON payload for creating a persona.
type CreatePersonaRequest struct {
	// Name is the display name; its slug must be unique.
	Name string `json:"name" binding:"required" example:"Bio Tutor"`
	// Description is injected into the persona's system prompt.
	Description string `json:"description" example:"A patient biology teacher for high-school students."`
}

// ListPersonasResponse wraps every persona with its documents.
type ListPersonasResponse struct {
	Personas []domain.Persona `json:"personas"`
}

// ListPersonas godoc
// @ID          listPersonas
// @Summary     List personas
// @Description Returns every persona with its uploaded documents. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Personas
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"personas:1:1700000000:3\")
//
// @Success     200  {object} handlers.ListPersonasResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /personas [get]
func (h *Handlers) ListPersonas(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if n, ts, docID, err := h.personas.Stats(ctx); err == nil {
		if notModified(c, fmt.Sprintf(`W/"personas:%d:%d:%d"`, n, ts, docID)) {
			return
		}
	}

	items, err := h.personas.List(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.Persona{}
	}
	ok(c, http.StatusOK, ListPersonasResponse{Personas: items})
}

// CreatePersona godoc
// @ID          createPersona
// @Summary     Create a persona
// @Description Creates a persona. The slug is derived from the name and must be unique.
// @Tags        Personas
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreatePersonaRequest  true  "Persona payload"
//
// @Success     201  {object} domain.Persona
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Slug already taken"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /personas [post]
func (h *Handlers) CreatePersona(c *gin.Context) {
	var req CreatePersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	p, err := h.personas.Create(c.Request.Context(), services.CreatePersonaInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	if p.Documents == nil {
		p.Documents = []domain.Document{}
	}
	ok(c, http.StatusCreated, p)
}

// GetPersona godoc
// @ID          getPersona
// @Summary     Get a persona
// @Tags        Personas
// @Produce     json
//
// @Param       id  path  int  true  "Persona ID"  minimum(1)
//
// @Success     200  {object} domain.Persona
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Persona not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /personas/{id} [get]
func (h *Handlers) GetPersona(c *gin.Context) {
	id, valid := personaID(c)
	if !valid {
		return
	}
	p, err := h.personas.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
