package llm

import (
	"context"

	clc "github.com/cloudwego/eino-ext/callbacks/cozeloop"
	"github.com/cloudwego/eino/callbacks"
	"github.com/coze-dev/cozeloop-go"
	"github.com/rs/zerolog"

	"github.com/tbourn/persona-rag-backend/internal/config"
)

// SetupCozeLoop registers a CozeLoop callback handler for every eino
// component when both token and workspace are configured. The returned
// function flushes and closes the client; it is a no-op when tracing is off.
func SetupCozeLoop(ctx context.Context, cfg config.TracingConfig, log zerolog.Logger) (func(context.Context), error) {
	if cfg.CozeLoopToken == "" || cfg.CozeLoopWorkspace == "" {
		return func(context.Context) {}, nil
	}
	client, err := cozeloop.NewClient(
		cozeloop.WithAPIToken(cfg.CozeLoopToken),
		cozeloop.WithWorkspaceID(cfg.CozeLoopWorkspace),
	)
	if err != nil {
		return nil, err
	}
	callbacks.AppendGlobalHandlers(clc.NewLoopHandler(client))
	log.Info().Str("workspace", cfg.CozeLoopWorkspace).Msg("cozeloop tracing enabled")
	return func(ctx context.Context) { client.Close(ctx) }, nil
}
