package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/persona-rag-backend/internal/services"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

func Test_fail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "kaboom")
	})
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusInternalServerError || resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal || resp.Message != "kaboom" {
		t.Fatalf("unexpected: %d %+v", w.Code, resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound || buf.Len() != 0 {
		t.Fatalf("4xx should not log: %d %q", w.Code, buf.String())
	}
}

func TestClassify(t *testing.T) {
	deadline := fmt.Errorf("answer: %w", context.DeadlineExceeded)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: name is required", services.ErrValidation), 400, ErrCodeBadRequest},
		{"ingest input", fmt.Errorf("%w: slug", vectorindex.ErrInvalidInput), 400, ErrCodeBadRequest},
		{"persona", services.ErrPersonaNotFound, 404, ErrCodeNotFound},
		{"index", fmt.Errorf("open: %w", vectorindex.ErrIndexNotFound), 404, ErrCodeIndexNotFound},
		{"slug", services.ErrSlugConflict, 409, ErrCodeConflict},
		{"model", &services.ModelInvocationError{PersonaID: 1, Err: errors.New("503")}, 502, ErrCodeModelFailed},
		{"model deadline", &services.ModelInvocationError{PersonaID: 1, Err: deadline}, 504, ErrCodeModelFailed},
		{"ingest", &vectorindex.IngestionError{Slug: "a", Op: "embed", Err: errors.New("x")}, 502, ErrCodeIngestionFailed},
		{"ingest deadline", &vectorindex.IngestionError{Slug: "a", Op: "embed", Err: deadline}, 504, ErrCodeIngestionFailed},
		{"other", errors.New("disk on fire"), 500, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := classify(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("classify = %d %s, want %d %s", status, code, tc.status, tc.code)
			}
		})
	}
}

func TestFailErr_HidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { failErr(c, errors.New("sql: secret table")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusInternalServerError || strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("internal detail leaked: %d %s", w.Code, w.Body.String())
	}
}
