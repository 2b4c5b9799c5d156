// Package chain answers a question from retrieved passages and prior turns
// using two eino compose chains: one condenses a follow-up into a standalone
// question, the other answers it over the retrieved context.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tbourn/persona-rag-backend/internal/history"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

const (
	condenseSystem = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language. Reply with the question only.`

	answerSystem = `You are {persona}. {description}
Use the following pieces of context to answer the user's question. If you don't know the answer, just say that you don't know, don't try to make up an answer.
----------------
{context}`

	historyKey = "chat_history"
)

// Source identifies a passage the answer was grounded on.
type Source struct {
	File  string  `json:"file"`
	Chunk int     `json:"chunk"`
	Score float64 `json:"score"`
}

// Input is one question to answer.
type Input struct {
	PersonaName        string
	PersonaDescription string
	Question           string
	History            []history.Pair // oldest first
	Retriever          retriever.Retriever
}

// Answer is the chain's output.
type Answer struct {
	Text       string
	Standalone string
	Sources    []Source
}

// Chain is safe for concurrent use once built.
type Chain struct {
	condense compose.Runnable[map[string]any, *schema.Message]
	answer   compose.Runnable[map[string]any, *schema.Message]
	timeout  time.Duration
}

// New compiles both chains over m. timeout bounds each model call; zero
// disables the bound.
func New(ctx context.Context, m model.BaseChatModel, timeout time.Duration) (*Chain, error) {
	if m == nil {
		return nil, errors.New("chain: nil chat model")
	}

	condenseTpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(condenseSystem),
		schema.MessagesPlaceholder(historyKey, true),
		schema.UserMessage("Follow up question: {question}"),
	)
	condense, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(condenseTpl).
		AppendChatModel(m).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile condense chain: %w", err)
	}

	answerTpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(answerSystem),
		schema.MessagesPlaceholder(historyKey, true),
		schema.UserMessage("{question}"),
	)
	answer, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(answerTpl).
		AppendChatModel(m).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile answer chain: %w", err)
	}

	return &Chain{condense: condense, answer: answer, timeout: timeout}, nil
}

// Run condenses (when there is history), retrieves, then answers.
func (c *Chain) Run(ctx context.Context, in Input) (*Answer, error) {
	if in.Retriever == nil {
		return nil, errors.New("chain: nil retriever")
	}
	msgs := Messages(in.History)

	standalone := in.Question
	if len(msgs) > 0 {
		out, err := c.invoke(ctx, c.condense, map[string]any{
			historyKey: msgs,
			"question": in.Question,
		})
		if err != nil {
			return nil, fmt.Errorf("condense question: %w", err)
		}
		if q := strings.TrimSpace(out.Content); q != "" {
			standalone = q
		}
	}

	docs, err := in.Retriever.Retrieve(ctx, standalone)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	out, err := c.invoke(ctx, c.answer, map[string]any{
		"persona":     in.PersonaName,
		"description": in.PersonaDescription,
		"context":     joinDocs(docs),
		historyKey:    msgs,
		"question":    in.Question,
	})
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}

	return &Answer{
		Text:       strings.TrimSpace(out.Content),
		Standalone: standalone,
		Sources:    sources(docs),
	}, nil
}

func (c *Chain) invoke(ctx context.Context, r compose.Runnable[map[string]any, *schema.Message], vars map[string]any) (*schema.Message, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := r.Invoke(ctx, vars)
	if err != nil {
		// Some providers swallow the context error; surface the deadline.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, err
	}
	if out == nil {
		return nil, errors.New("empty model response")
	}
	return out, nil
}

// Messages renders pairs as alternating user and assistant messages.
func Messages(pairs []history.Pair) []*schema.Message {
	out := make([]*schema.Message, 0, 2*len(pairs))
	for _, p := range pairs {
		out = append(out, schema.UserMessage(p.User), schema.AssistantMessage(p.Reply, nil))
	}
	return out
}

func joinDocs(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d == nil || strings.TrimSpace(d.Content) == "" {
			continue
		}
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n\n")
}

func sources(docs []*schema.Document) []Source {
	out := make([]Source, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		s := Source{Score: d.Score()}
		if v, ok := d.MetaData[vectorindex.MetaSource].(string); ok {
			s.File = v
		}
		if v, ok := d.MetaData[vectorindex.MetaChunk].(int); ok {
			s.Chunk = v
		}
		out = append(out, s)
	}
	return out
}
