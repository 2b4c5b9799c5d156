// Document HTTP handlers.
//
//   - POST /personas/{id}/documents  (multipart upload, rebuilds the index)
//   - POST /personas/{id}/reindex    (rebuild from files already stored)
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-rag-backend/internal/http/middleware"
	"github.com/tbourn/persona-rag-backend/internal/services"
)

const defaultMaxUploadBytes = 10 << 20

// ReindexResponse acknowledges a completed rebuild.
type ReindexResponse struct {
	PersonaID uint   `json:"persona_id" example:"3"`
	Status    string `json:"status"     example:"reindexed"`
}

// UploadDocument godoc
// @ID          uploadDocument
// @Summary     Upload a document to a persona
// @Description Stores the file in the persona's partition, records it and rebuilds the persona's index.
// @Description Supported formats: .txt, .md, .html. A failed rebuild returns 502 and leaves the previous index published.
// @Tags        Documents
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       id           path      int     true   "Persona ID"  minimum(1)
// @Param       file         formData  file    true   "Document file"
// @Param       description  formData  string  false  "Short description"
//
// @Success     201  {object} domain.Document
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Persona not found"
// @Failure     413  {object} handlers.ErrorResponse "File too large"
// @Failure     502  {object} handlers.ErrorResponse "Index rebuild failed"
// @Failure     504  {object} handlers.ErrorResponse "Embedding timed out"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /personas/{id}/documents [post]
func (h *Handlers) UploadDocument(c *gin.Context) {
	id, valid := personaID(c)
	if !valid {
		return
	}
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, fmt.Sprintf("file exceeds %d bytes", limit))
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" required")
		return
	}
	if fh.Size > limit {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, fmt.Sprintf("file exceeds %d bytes", limit))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file")
		return
	}

	doc, err := h.docs.Upload(c.Request.Context(), services.UploadInput{
		PersonaID:   id,
		Filename:    fh.Filename,
		Content:     content,
		Description: c.PostForm("description"),
	})
	if err != nil {
		if doc != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Uint("document_id", doc.ID).Msg("document recorded but index rebuild failed")
		}
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, doc)
}

// ReindexPersona godoc
// @ID          reindexPersona
// @Summary     Rebuild a persona's index
// @Description Re-embeds every stored document of the persona and publishes a new index version.
// @Tags        Documents
// @Produce     json
//
// @Param       id  path  int  true  "Persona ID"  minimum(1)
//
// @Success     200  {object} handlers.ReindexResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Persona not found"
// @Failure     502  {object} handlers.ErrorResponse "Index rebuild failed"
// @Failure     504  {object} handlers.ErrorResponse "Embedding timed out"
// @Router      /personas/{id}/reindex [post]
func (h *Handlers) ReindexPersona(c *gin.Context) {
	id, valid := personaID(c)
	if !valid {
		return
	}
	if err := h.docs.Reindex(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ReindexResponse{PersonaID: id, Status: "reindexed"})
}
