// Package services – ConversationEngine
//
// ConversationEngine turns one user message into a grounded persona reply.
// The exchange is persisted as two append-only turns: the user turn is written
// before the model is called and stays in place when the call fails, and the
// persona turn is written only on success. Writes are never rolled back.
//
// Observability: HandleMessage is OpenTelemetry-instrumented and counts
// outcomes in chat_answers_total.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/chain"
	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/history"
	"github.com/tbourn/persona-rag-backend/internal/notify"
	"github.com/tbourn/persona-rag-backend/internal/observability"
	"github.com/tbourn/persona-rag-backend/internal/repo"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

// HistoryBuilder reconstructs the conversation window.
type HistoryBuilder interface {
	BuildContext(ctx context.Context, in history.ContextInput) ([]history.Pair, error)
	Invalidate(ctx context.Context, userID int64, personaID uint)
}

// Answerer runs the retrieval chain.
type Answerer interface {
	Run(ctx context.Context, in chain.Input) (*chain.Answer, error)
}

// Notifier accepts reply notifications without blocking.
type Notifier interface {
	Enqueue(ev notify.Event) error
}

// MessageInput is one incoming user message. IdempotencyKey is optional; a
// repeated key replays the reply recorded for it.
type MessageInput struct {
	UserID         int64
	PersonaID      uint
	ConversationID int64
	Text           string
	IdempotencyKey string
}

// Validate checks identifiers and the message text against maxRunes (0
// disables the length check).
func (in MessageInput) Validate(maxRunes int) error {
	text := strings.TrimSpace(in.Text)
	switch {
	case in.UserID <= 0:
		return invalid("user_id must be positive")
	case in.PersonaID == 0:
		return invalid("persona id is required")
	case in.ConversationID < 0:
		return invalid("conversation_id must not be negative")
	case text == "":
		return invalid("message is required")
	case maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes:
		return invalid("message exceeds %d characters", maxRunes)
	}
	return nil
}

// Reply is the outcome of HandleMessage.
type Reply struct {
	Text       string
	TurnID     uint
	UserTurnID uint
	Sources    []chain.Source
	Grounded   bool
	Replayed   bool
}

// ConversationEngine wires history, retrieval and persistence together.
type ConversationEngine struct {
	DB       *gorm.DB
	Index    IndexManager
	History  HistoryBuilder
	Chain    Answerer
	Notifier Notifier
	Log      zerolog.Logger

	TopK            int
	MaxPairs        int
	MaxPromptRunes  int
	AllowUngrounded bool
	IdempotencyTTL  time.Duration
}

// HandleMessage answers in.Text as the persona:
//
//  1. validate the input (ErrValidation, no side effects)
//  2. build the history window
//  3. resolve the persona (ErrPersonaNotFound, no writes)
//  4. append the user turn
//  5. open the persona's retriever (ErrIndexNotFound unless ungrounded answers are allowed)
//  6. run the chain (*ModelInvocationError; the user turn stays)
//  7. append the persona turn
//  8. enqueue the downstream notification, never failing the call
func (e *ConversationEngine) HandleMessage(ctx context.Context, in MessageInput) (_ *Reply, err error) {
	ctx, span := otel.Tracer("services/ConversationEngine").Start(ctx, "HandleMessage",
		trace.WithAttributes(
			attribute.Int64("user.id", in.UserID),
			attribute.Int64("persona.id", int64(in.PersonaID)),
			attribute.Int64("conversation.id", in.ConversationID),
		),
	)
	defer span.End()

	result := "error"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.ChatAnswers.WithLabelValues(result).Inc()
	}()

	if err := in.Validate(e.MaxPromptRunes); err != nil {
		result = "invalid"
		return nil, err
	}
	text := strings.TrimSpace(in.Text)

	if in.IdempotencyKey != "" {
		if r, ok := e.replay(ctx, in); ok {
			result = "replayed"
			return r, nil
		}
	}

	pairs, err := e.History.BuildContext(ctx, history.ContextInput{
		UserID:    in.UserID,
		PersonaID: in.PersonaID,
		MaxPairs:  e.MaxPairs,
		Order:     history.Chronological,
	})
	if err != nil {
		if errors.Is(err, history.ErrInvalidInput) {
			result = "invalid"
			return nil, invalid("%v", err)
		}
		return nil, err
	}

	persona, err := lookupPersona(ctx, e.DB, in.PersonaID)
	if err != nil {
		if errors.Is(err, ErrPersonaNotFound) {
			result = "not_found"
		}
		return nil, err
	}

	userTurn, err := repo.AppendTurn(ctx, e.DB, persona.ID, in.UserID, in.ConversationID, text, domain.OriginUser)
	if err != nil {
		return nil, err
	}
	e.History.Invalidate(ctx, in.UserID, persona.ID)

	ret, grounded, err := e.retriever(ctx, persona)
	if err != nil {
		if errors.Is(err, vectorindex.ErrIndexNotFound) {
			result = "no_index"
		}
		return nil, err
	}

	ans, err := e.Chain.Run(ctx, chain.Input{
		PersonaName:        persona.Name,
		PersonaDescription: persona.Description,
		Question:           text,
		History:            pairs,
		Retriever:          ret,
	})
	if err != nil {
		result = "model_error"
		return nil, &ModelInvocationError{PersonaID: persona.ID, Err: err}
	}

	replyTurn, err := repo.AppendTurn(ctx, e.DB, persona.ID, in.UserID, in.ConversationID, ans.Text, domain.OriginPersona)
	if err != nil {
		return nil, err
	}
	e.History.Invalidate(ctx, in.UserID, persona.ID)

	if in.IdempotencyKey != "" {
		e.remember(ctx, in, replyTurn.ID)
	}

	if e.Notifier != nil {
		if nerr := e.Notifier.Enqueue(notify.Event{UserID: in.UserID, Message: ans.Text, ChatID: in.ConversationID}); nerr != nil {
			e.Log.Warn().Err(nerr).Int64("user_id", in.UserID).Uint("persona_id", persona.ID).Msg("reply notification not queued")
		}
	}

	result = "ok"
	span.SetAttributes(attribute.Int("sources", len(ans.Sources)), attribute.Bool("grounded", grounded))
	return &Reply{
		Text:       ans.Text,
		TurnID:     replyTurn.ID,
		UserTurnID: userTurn.ID,
		Sources:    ans.Sources,
		Grounded:   grounded,
	}, nil
}

func (e *ConversationEngine) retriever(ctx context.Context, p *domain.Persona) (retriever.Retriever, bool, error) {
	topK := e.TopK
	if topK < 1 {
		topK = 1
	}
	r, err := e.Index.Retriever(ctx, p.Slug, topK)
	if err == nil {
		return r, true, nil
	}
	if errors.Is(err, vectorindex.ErrIndexNotFound) && e.AllowUngrounded {
		e.Log.Info().Str("slug", p.Slug).Msg("no index published, answering ungrounded")
		return vectorindex.Empty(), false, nil
	}
	return nil, false, err
}

// replay returns the reply recorded for in.IdempotencyKey, if any.
func (e *ConversationEngine) replay(ctx context.Context, in MessageInput) (*Reply, bool) {
	rec, err := repo.GetIdempotency(ctx, e.DB, in.UserID, in.PersonaID, in.IdempotencyKey, time.Now().UTC())
	if err != nil {
		return nil, false
	}
	t, err := repo.GetTurn(ctx, e.DB, rec.TurnID)
	if err != nil {
		e.Log.Warn().Err(err).Uint("turn_id", rec.TurnID).Msg("idempotency record points at a missing turn")
		return nil, false
	}
	return &Reply{Text: t.Text, TurnID: t.ID, Sources: []chain.Source{}, Replayed: true}, true
}

func (e *ConversationEngine) remember(ctx context.Context, in MessageInput, turnID uint) {
	ttl := e.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, e.DB, in.UserID, in.PersonaID, in.IdempotencyKey, turnID, http.StatusOK, ttl)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		e.Log.Warn().Err(err).Int64("user_id", in.UserID).Msg("idempotency record not stored")
	}
}
