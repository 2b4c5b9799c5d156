// Command server runs the persona RAG HTTP API.
//
//	@title			Persona RAG API
//	@version		1.0
//	@description	Per-persona retrieval-augmented conversations over uploaded documents.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/chain"
	"github.com/tbourn/persona-rag-backend/internal/config"
	"github.com/tbourn/persona-rag-backend/internal/history"
	httpapi "github.com/tbourn/persona-rag-backend/internal/http"
	"github.com/tbourn/persona-rag-backend/internal/llm"
	"github.com/tbourn/persona-rag-backend/internal/loader"
	"github.com/tbourn/persona-rag-backend/internal/notify"
	"github.com/tbourn/persona-rag-backend/internal/observability"
	"github.com/tbourn/persona-rag-backend/internal/platform/rabbitmq"
	"github.com/tbourn/persona-rag-backend/internal/platform/redis"
	"github.com/tbourn/persona-rag-backend/internal/repo"
	"github.com/tbourn/persona-rag-backend/internal/services"
	"github.com/tbourn/persona-rag-backend/internal/sysutil"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
	"github.com/tbourn/persona-rag-backend/internal/watch"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer flush(logger, "otel", shutdownOTel)

	closeLoop, err := llm.SetupCozeLoop(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer closeLoop(context.Background())

	for _, dir := range []string{filepath.Dir(cfg.Storage.DBPath), cfg.Storage.DocsRoot, cfg.Storage.IndexRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	db, err := repo.OpenSQLite(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	if cfg.OTEL.Enabled {
		if err := repo.InstrumentTracing(db); err != nil {
			return err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	// Retrieval
	ld := loader.New(cfg.Storage.DocsRoot, loader.ChunkConfig{Size: cfg.Index.ChunkSize, Overlap: cfg.Index.ChunkOverlap}, logger)
	emb, err := llm.NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return err
	}
	indexes := vectorindex.New(ld, emb, vectorindex.Options{
		IndexRoot:    cfg.Storage.IndexRoot,
		EmbedderName: llm.EmbedderName(cfg.Embedding),
		BatchSize:    cfg.Embedding.BatchSize,
		EmbedTimeout: cfg.Embedding.Timeout,
		CacheSize:    cfg.Index.CacheSize,
		KeepVersions: cfg.Index.KeepVersions,
	}, logger)
	defer indexes.Close()

	chatModel, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	answerer, err := chain.New(ctx, chatModel, cfg.LLM.Timeout)
	if err != nil {
		return err
	}

	// History window, optionally cached in Redis
	var cache history.Cache
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = history.NewRedisCache(rdb, cfg.History.CacheTTL)
	}
	windower := history.New(db, cache, logger)

	// Downstream notifications
	sender, closeSender, err := newSender(ctx, cfg.Notify, logger)
	if err != nil {
		return err
	}
	defer closeSender()
	dispatcher := notify.NewDispatcher(sender, notify.Options{
		QueueSize: cfg.Notify.QueueSize,
		Workers:   cfg.Notify.Workers,
		Timeout:   cfg.Notify.Timeout,
	}, logger)
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dispatcher.Close(dctx); err != nil {
			logger.Warn().Err(err).Msg("notify queue not drained")
		}
	}()

	engine := &services.ConversationEngine{
		DB:              db,
		Index:           indexes,
		History:         windower,
		Chain:           answerer,
		Notifier:        dispatcher,
		Log:             logger.With().Str("component", "conversation").Logger(),
		TopK:            cfg.Index.TopK,
		MaxPairs:        cfg.History.MaxPairs,
		MaxPromptRunes:  cfg.MaxPromptRunes,
		AllowUngrounded: cfg.Index.AllowUngrounded,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}

	if cfg.Watch.Enabled {
		w, err := watch.New(cfg.Storage.DocsRoot, indexes, cfg.Watch.Debounce, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("docs watcher stopped")
			}
		}()
	}
	go purgeIdempotency(ctx, db, cfg.IdempotencyTTL, logger)

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{
		Personas:      services.NewPersonaService(db),
		Documents:     services.NewDocumentService(db, indexes, cfg.MaxUploadBytes),
		Conversations: engine,
		Turns:         services.NewTurnService(db),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newSender builds the notification backend and a func releasing it.
func newSender(ctx context.Context, cfg config.NotifyConfig, logger zerolog.Logger) (notify.Sender, func(), error) {
	nop := func() {}
	switch cfg.Backend {
	case "amqp":
		conn, err := rabbitmq.New(ctx, cfg.RabbitURL, cfg.Queue)
		if err != nil {
			return nil, nop, err
		}
		return notify.NewAMQPSender(conn, cfg.Queue), func() { _ = conn.Close() }, nil
	case "http":
		if cfg.URL == "" {
			logger.Warn().Msg("NOTIFY_URL not set, reply notifications disabled")
			return notify.Nop{}, nop, nil
		}
		return notify.NewHTTPSender(cfg.URL, &http.Client{Timeout: cfg.Timeout}), nop, nil
	default:
		return notify.Nop{}, nop, nil
	}
}

// purgeIdempotency drops expired replay records once per TTL/4 (at most hourly).
func purgeIdempotency(ctx context.Context, db *gorm.DB, ttl time.Duration, logger zerolog.Logger) {
	every := ttl / 4
	if every <= 0 || every > time.Hour {
		every = time.Hour
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				logger.Warn().Err(err).Msg("purge idempotency records")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("rows", n).Msg("expired idempotency records purged")
			}
		}
	}
}

func flush(logger zerolog.Logger, name string, fn observability.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn().Err(err).Str("component", name).Msg("shutdown")
		return
	}
	logger.Debug().Str("component", name).Msg("flushed")
}
