// Package httpapi wires the HTTP transport (Gin) to the persona services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, request logging with redaction, panic recovery,
// metrics, compression, CORS, security headers, idempotency keys and rate
// limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/persona-rag-backend/docs"
	"github.com/tbourn/persona-rag-backend/internal/config"
	"github.com/tbourn/persona-rag-backend/internal/http/handlers"
	"github.com/tbourn/persona-rag-backend/internal/http/middleware"
)

// jsonBodyLimit caps every non-upload request body.
const jsonBodyLimit = 1 << 20

// Services are the application services behind the public API.
type Services struct {
	Personas      handlers.PersonaService
	Documents     handlers.DocumentService
	Conversations handlers.ConversationService
	Turns         handlers.TurnService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the persona API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. gzip, CORS and security headers
//
// The API group adds idempotency key validation and the per-client rate
// limiter; /health and /metrics are never throttled.
func RegisterRoutes(r *gin.Engine, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Response compression, skipping the scrape endpoint
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Personas, svc.Documents, svc.Conversations, svc.Turns)
	h.MaxUploadBytes = cfg.MaxUploadBytes

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}))
	api.Use(rl.Handler())
	{
		small := limitBody(jsonBodyLimit)

		// Personas
		api.GET("/personas", h.ListPersonas)
		api.POST("/personas", small, h.CreatePersona)
		api.GET("/personas/:id", h.GetPersona)

		// Documents; multipart overhead on top of the file cap
		api.POST("/personas/:id/documents", limitBody(uploadBodyLimit(cfg.MaxUploadBytes)), h.UploadDocument)
		api.POST("/personas/:id/reindex", small, h.ReindexPersona)

		// Conversation
		api.POST("/personas/:id/messages", small, h.PostMessage)
		api.GET("/personas/:id/turns", h.ListTurns)
	}
}

// corsMiddleware allows every origin when none are configured; otherwise
// only the allowlist is echoed back.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", middleware.HeaderIdempotencyReplayed, "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

// uploadBodyLimit is the request cap for the multipart upload route.
func uploadBodyLimit(maxFile int64) int64 {
	if maxFile <= 0 {
		maxFile = 10 << 20
	}
	return maxFile + jsonBodyLimit
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Requests exceeding the cap will cause
// downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
