package chain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/tbourn/persona-rag-backend/internal/history"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

// fakeModel replies with the next scripted answer and records every prompt.
type fakeModel struct {
	mu      sync.Mutex
	replies []string
	calls   [][]*schema.Message
	err     error
	block   bool
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	n := len(f.calls)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	reply := "ok"
	if n-1 < len(f.replies) {
		reply = f.replies[n-1]
	}
	return schema.AssistantMessage(reply, nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

type fakeRetriever struct {
	queries []string
	docs    []*schema.Document
	err     error
}

func (r *fakeRetriever) Retrieve(_ context.Context, q string, _ ...retriever.Option) ([]*schema.Document, error) {
	r.queries = append(r.queries, q)
	return r.docs, r.err
}

func mitochondria() *fakeRetriever {
	d := &schema.Document{
		ID:      "bio-tutor/cell.md#0",
		Content: "The mitochondria is the powerhouse of the cell.",
		MetaData: map[string]any{
			vectorindex.MetaSource: "bio-tutor/cell.md",
			vectorindex.MetaChunk:  0,
		},
	}
	return &fakeRetriever{docs: []*schema.Document{d.WithScore(0.9)}}
}

func newChain(t *testing.T, m model.BaseChatModel, timeout time.Duration) *Chain {
	t.Helper()
	c, err := New(context.Background(), m, timeout)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRun_NoHistorySkipsCondense(t *testing.T) {
	m := &fakeModel{replies: []string{"  It is the mitochondria.  "}}
	r := mitochondria()
	c := newChain(t, m, time.Second)

	ans, err := c.Run(context.Background(), Input{
		PersonaName: "Bio Tutor",
		Question:    "What is the powerhouse of the cell?",
		Retriever:   r,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("expected a single model call, got %d", len(m.calls))
	}
	if ans.Text != "It is the mitochondria." || ans.Standalone != "What is the powerhouse of the cell?" {
		t.Fatalf("answer unexpected: %+v", ans)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].File != "bio-tutor/cell.md" || ans.Sources[0].Score != 0.9 {
		t.Fatalf("sources unexpected: %+v", ans.Sources)
	}

	prompt := m.calls[0]
	if prompt[0].Role != schema.System || !strings.Contains(prompt[0].Content, "powerhouse of the cell") ||
		!strings.Contains(prompt[0].Content, "You are Bio Tutor.") {
		t.Fatalf("system prompt missing context: %q", prompt[0].Content)
	}
	last := prompt[len(prompt)-1]
	if last.Role != schema.User || last.Content != "What is the powerhouse of the cell?" {
		t.Fatalf("last message should be the question, got %+v", last)
	}
}

func TestRun_WithHistoryCondensesThenAnswers(t *testing.T) {
	m := &fakeModel{replies: []string{"What does the mitochondria produce?", "ATP."}}
	r := mitochondria()
	c := newChain(t, m, time.Second)

	ans, err := c.Run(context.Background(), Input{
		PersonaName: "Bio Tutor",
		Question:    "What does it produce?",
		History:     []history.Pair{{User: "What is the mitochondria?", Reply: "An organelle."}},
		Retriever:   r,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.calls) != 2 {
		t.Fatalf("expected condense and answer calls, got %d", len(m.calls))
	}
	if len(r.queries) != 1 || r.queries[0] != "What does the mitochondria produce?" {
		t.Fatalf("retriever should see the standalone question, got %v", r.queries)
	}
	if ans.Text != "ATP." || ans.Standalone != "What does the mitochondria produce?" {
		t.Fatalf("answer unexpected: %+v", ans)
	}

	// Answer prompt: system, user, assistant, question.
	p := m.calls[1]
	if len(p) != 4 || p[1].Role != schema.User || p[2].Role != schema.Assistant || p[2].Content != "An organelle." {
		t.Fatalf("history not rendered as alternating messages: %+v", p)
	}
	if p[3].Content != "What does it produce?" {
		t.Fatalf("answer should use the original question, got %q", p[3].Content)
	}
}

func TestRun_EmptyCondenseFallsBackToQuestion(t *testing.T) {
	m := &fakeModel{replies: []string{"   ", "fine"}}
	r := mitochondria()
	c := newChain(t, m, time.Second)
	_, err := c.Run(context.Background(), Input{
		Question:  "and then?",
		History:   []history.Pair{{User: "a", Reply: "b"}},
		Retriever: r,
	})
	if err != nil || r.queries[0] != "and then?" {
		t.Fatalf("got queries %v, err %v", r.queries, err)
	}
}

func TestRun_ModelError(t *testing.T) {
	boom := errors.New("provider down")
	c := newChain(t, &fakeModel{err: boom}, time.Second)
	_, err := c.Run(context.Background(), Input{Question: "q", Retriever: mitochondria()})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "answer") {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}

func TestRun_RetrieverError(t *testing.T) {
	boom := errors.New("index gone")
	c := newChain(t, &fakeModel{}, time.Second)
	_, err := c.Run(context.Background(), Input{Question: "q", Retriever: &fakeRetriever{err: boom}})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "retrieve") {
		t.Fatalf("expected wrapped retriever error, got %v", err)
	}
}

func TestRun_ModelTimeout(t *testing.T) {
	c := newChain(t, &fakeModel{block: true}, 20*time.Millisecond)
	_, err := c.Run(context.Background(), Input{Question: "q", Retriever: mitochondria()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRun_UngroundedRetriever(t *testing.T) {
	m := &fakeModel{replies: []string{"I don't know."}}
	c := newChain(t, m, time.Second)
	ans, err := c.Run(context.Background(), Input{Question: "q", Retriever: vectorindex.Empty()})
	if err != nil || len(ans.Sources) != 0 || ans.Text != "I don't know." {
		t.Fatalf("got %+v, %v", ans, err)
	}
}

func TestNew_And_Run_Guards(t *testing.T) {
	if _, err := New(context.Background(), nil, 0); err == nil {
		t.Fatalf("expected error for nil model")
	}
	c := newChain(t, &fakeModel{}, 0)
	if _, err := c.Run(context.Background(), Input{Question: "q"}); err == nil {
		t.Fatalf("expected error for nil retriever")
	}
}

func TestMessages(t *testing.T) {
	msgs := Messages([]history.Pair{{User: "u1", Reply: "r1"}, {User: "u2", Reply: "r2"}})
	want := []struct {
		role    schema.RoleType
		content string
	}{{schema.User, "u1"}, {schema.Assistant, "r1"}, {schema.User, "u2"}, {schema.Assistant, "r2"}}
	if len(msgs) != len(want) {
		t.Fatalf("len = %d", len(msgs))
	}
	for i, w := range want {
		if msgs[i].Role != w.role || msgs[i].Content != w.content {
			t.Fatalf("msg %d = %+v", i, msgs[i])
		}
	}
}
