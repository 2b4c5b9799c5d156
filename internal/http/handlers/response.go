// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the error envelope and the mapping from service errors to
// HTTP statuses:
//
//	services.ErrValidation            400 bad_request
//	services.ErrPersonaNotFound       404 not_found
//	vectorindex.ErrIndexNotFound      404 index_not_found
//	services.ErrSlugConflict          409 conflict
//	*vectorindex.IngestionError       502 ingestion_failed (504 on deadline)
//	*services.ModelInvocationError    502 model_failed (504 on deadline)
//	anything else                     500 internal_error
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-rag-backend/internal/http/middleware"
	"github.com/tbourn/persona-rag-backend/internal/services"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"persona not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto the envelope.
func failErr(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal server error"
	}
	fail(c, status, code, msg)
}

func classify(err error) (int, string) {
	var ie *vectorindex.IngestionError
	var me *services.ModelInvocationError
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, vectorindex.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrPersonaNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, vectorindex.ErrIndexNotFound):
		return http.StatusNotFound, ErrCodeIndexNotFound
	case errors.Is(err, services.ErrSlugConflict):
		return http.StatusConflict, ErrCodeConflict
	case errors.As(err, &me):
		return upstreamStatus(err), ErrCodeModelFailed
	case errors.As(err, &ie):
		return upstreamStatus(err), ErrCodeIngestionFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func upstreamStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
