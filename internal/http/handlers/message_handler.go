// Message HTTP handlers.
//
//   - POST /personas/{id}/messages  (answer a user message as the persona)
//   - GET  /personas/{id}/turns     (list stored turns, paginated, ETag support)
//
// Idempotency:
// When the client sends an Idempotency-Key and the same user already got a
// reply from this persona under that key, the recorded reply is returned with
// `Idempotency-Replayed: true` and nothing new is written.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-rag-backend/internal/chain"
	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/http/middleware"
	"github.com/tbourn/persona-rag-backend/internal/services"
	"github.com/tbourn/persona-rag-backend/internal/utils"
)

// PostMessageRequest is the JSON payload for sending a user message.
type PostMessageRequest struct {
	// UserID identifies the end user; history is kept per (user, persona).
	UserID int64 `json:"user_id" binding:"required" example:"42"`
	// ConversationID is echoed to the downstream notification as ai_chat_id.
	ConversationID int64 `json:"conversation_id" example:"7"`
	// Message is the user's text.
	Message string `json:"message" binding:"required" example:"What is the powerhouse of the cell?"`
}

// PostMessageResponse carries the persona's reply.
type PostMessageResponse struct {
	Reply      string         `json:"reply"        example:"The mitochondria is the powerhouse of the cell."`
	TurnID     uint           `json:"turn_id"      example:"12"`
	UserTurnID uint           `json:"user_turn_id,omitempty" example:"11"`
	Grounded   bool           `json:"grounded"     example:"true"`
	Sources    []chain.Source `json:"sources"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTurnsResponse wraps a page of turns, oldest first.
type ListTurnsResponse struct {
	Turns      []domain.Turn `json:"turns"`
	Pagination Pagination    `json:"pagination"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF, collapses blank-line runs and trims.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message to a persona
// @Description Appends the user turn, answers from the persona's documents and appends the reply turn.
// @Description Supports idempotency via the Idempotency-Key header (same key from the same user → same reply).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    int     true  "Persona ID"  minimum(1)
// @Param       body             body    handlers.PostMessageRequest  true  "User message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse  "Persona reply"
// @Header      200  {string}  Idempotency-Replayed  "true when the reply was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Persona or index not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "Model call failed"
// @Failure     504  {object}  handlers.ErrorResponse  "Model call timed out"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /personas/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	id, valid := personaID(c)
	if !valid {
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id and message required")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	r, err := h.convo.HandleMessage(c.Request.Context(), services.MessageInput{
		UserID:         req.UserID,
		PersonaID:      id,
		ConversationID: req.ConversationID,
		Text:           sanitizeContent(req.Message),
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	if r.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	sources := r.Sources
	if sources == nil {
		sources = []chain.Source{}
	}
	ok(c, http.StatusOK, PostMessageResponse{
		Reply:      r.Text,
		TurnID:     r.TurnID,
		UserTurnID: r.UserTurnID,
		Grounded:   r.Grounded,
		Sources:    sources,
	})
}

// ListTurns godoc
// @ID          listTurns
// @Summary     List conversation turns
// @Description Returns the stored turns between a user and a persona, oldest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
//
// @Param       id             path    int     true  "Persona ID"      minimum(1)
// @Param       user_id        query   int     true  "User ID"         minimum(1)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object} handlers.ListTurnsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Persona not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /personas/{id}/turns [get]
func (h *Handlers) ListTurns(c *gin.Context) {
	id, valid := personaID(c)
	if !valid {
		return
	}
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id query parameter must be a positive integer")
		return
	}
	ctx := c.Request.Context()
	page := utils.AtoiDefault(c.Query("page"), 1)
	pageSize := utils.AtoiDefault(c.Query("page_size"), 0)

	// ETag pre-check (best effort). The page is part of the tag because the
	// body differs per page.
	if n, maxID, err := h.turns.Stats(ctx, userID, id); err == nil {
		etag := fmt.Sprintf(`W/"turns:%d:%d:%d:%d:%d:%d"`, id, userID, n, maxID, page, pageSize)
		if notModified(c, etag) {
			return
		}
	}

	items, total, size, err := h.turns.ListPage(ctx, userID, id, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	if page < 1 {
		page = 1
	}
	totalPages := utils.TotalPages(total, size)
	ok(c, http.StatusOK, ListTurnsResponse{
		Turns: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
