package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tbourn/persona-rag-backend/internal/chain"
	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/history"
	"github.com/tbourn/persona-rag-backend/internal/notify"
	"github.com/tbourn/persona-rag-backend/internal/observability"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

const cellNotes = `Cell biology basics.

The mitochondria is the powerhouse of the cell. It produces ATP through cellular respiration.`

func TestHandleMessage_BioTutorScenario(t *testing.T) {
	s := newStack(t)
	p := s.persona(t, "Bio Tutor")
	if p.Slug != "bio-tutor" {
		t.Fatalf("slug = %q", p.Slug)
	}
	s.upload(t, p.ID, "cell.md", cellNotes)
	ok := testutil.ToFloat64(observability.ChatAnswers.WithLabelValues("ok"))

	r, err := s.engine.HandleMessage(context.Background(), MessageInput{
		UserID: 42, PersonaID: p.ID, ConversationID: 7, Text: "What is the powerhouse of the cell?",
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(strings.ToLower(r.Text), "mitochondria") {
		t.Fatalf("reply should reference mitochondria, got %q", r.Text)
	}
	if !r.Grounded || len(r.Sources) != 1 || r.Sources[0].File != "bio-tutor/cell.md" {
		t.Fatalf("sources unexpected: %+v", r)
	}
	if n := countTurns(t, s.db, ""); n != 2 {
		t.Fatalf("expected exactly two turns, got %d", n)
	}
	if r.UserTurnID >= r.TurnID {
		t.Fatalf("user turn %d should precede reply turn %d", r.UserTurnID, r.TurnID)
	}
	if got := testutil.ToFloat64(observability.ChatAnswers.WithLabelValues("ok")) - ok; got != 1 {
		t.Fatalf("ok metric delta = %v", got)
	}
}

func TestHandleMessage_ModelFailureKeepsOnlyUserTurn(t *testing.T) {
	s := newStack(t)
	p := s.persona(t, "Bio Tutor")
	s.upload(t, p.ID, "cell.md", cellNotes)
	boom := errors.New("provider unavailable")
	s.model.err = boom

	_, err := s.engine.HandleMessage(context.Background(), MessageInput{UserID: 1, PersonaID: p.ID, Text: "hi"})
	var mie *ModelInvocationError
	if !errors.As(err, &mie) || mie.PersonaID != p.ID || !errors.Is(err, boom) {
		t.Fatalf("expected ModelInvocationError wrapping the provider error, got %v", err)
	}
	if n := countTurns(t, s.db, domain.OriginUser); n != 1 {
		t.Fatalf("expected one user turn, got %d", n)
	}
	if n := countTurns(t, s.db, domain.OriginPersona); n != 0 {
		t.Fatalf("expected no reply turn, got %d", n)
	}
}

func TestHandleMessage_NoIndex(t *testing.T) {
	s := newStack(t)
	p := s.persona(t, "Empty")

	_, err := s.engine.HandleMessage(context.Background(), MessageInput{UserID: 1, PersonaID: p.ID, Text: "hi"})
	if !errors.Is(err, vectorindex.ErrIndexNotFound) || !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
	if n := countTurns(t, s.db, domain.OriginUser); n != 1 {
		t.Fatalf("user turn should remain, got %d", n)
	}
	if s.model.calls != 0 {
		t.Fatalf("model must not be called without an index")
	}
}

func TestHandleMessage_AllowUngrounded(t *testing.T) {
	s := newStack(t)
	s.engine.AllowUngrounded = true
	p := s.persona(t, "Empty")

	r, err := s.engine.HandleMessage(context.Background(), MessageInput{UserID: 1, PersonaID: p.ID, Text: "hi"})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if r.Grounded || len(r.Sources) != 0 || r.Text != "I don't know." {
		t.Fatalf("reply unexpected: %+v", r)
	}
}

func TestHandleMessage_PersonaNotFoundWritesNothing(t *testing.T) {
	s := newStack(t)
	_, err := s.engine.HandleMessage(context.Background(), MessageInput{UserID: 1, PersonaID: 999, Text: "hi"})
	if !errors.Is(err, ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound, got %v", err)
	}
	if n := countTurns(t, s.db, ""); n != 0 {
		t.Fatalf("expected no turns, got %d", n)
	}
}

func TestHandleMessage_Validation(t *testing.T) {
	s := newStack(t)
	p := s.persona(t, "Bio Tutor")
	s.engine.MaxPromptRunes = 5
	bad := []MessageInput{
		{UserID: 0, PersonaID: p.ID, Text: "hi"},
		{UserID: 1, PersonaID: 0, Text: "hi"},
		{UserID: 1, PersonaID: p.ID, ConversationID: -1, Text: "hi"},
		{UserID: 1, PersonaID: p.ID, Text: "   "},
		{UserID: 1, PersonaID: p.ID, Text: "too long"},
	}
	for _, in := range bad {
		if _, err := s.engine.HandleMessage(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Fatalf("HandleMessage(%+v) = %v, want ErrValidation", in, err)
		}
	}
	if n := countTurns(t, s.db, ""); n != 0 {
		t.Fatalf("validation failures must not write, got %d turns", n)
	}
}

// recordingAnswerer captures the chain input and replies with a fixed text.
type recordingAnswerer struct {
	inputs []chain.Input
}

func (a *recordingAnswerer) Run(_ context.Context, in chain.Input) (*chain.Answer, error) {
	a.inputs = append(a.inputs, in)
	return &chain.Answer{Text: "reply to " + in.Question}, nil
}

func TestHandleMessage_PassesHistoryWindow(t *testing.T) {
	s := newStack(t)
	p := s.persona(t, "Bio Tutor")
	s.upload(t, p.ID, "cell.md", cellNotes)
	a := &recordingAnswerer{}
	s.engine.Chain = a
	ctx := context.Background()

	for _, q := range []string{"first", "second", "third"} {
		if _, err := s.engine.HandleMessage(ctx, MessageInput{UserID: 3, PersonaID: p.ID, Text: q}); err != nil {
			t.Fatalf("HandleMessage(%q): %v", q, err)
		}
	}
	last := a.inputs[2]
	want := []history.Pair{{User: "first", Reply: "reply to first"}, {User: "second", Reply: "reply to second"}}
	if len(last.History) != 2 || last.History[0] != want[0] || last.History[1] != want[1] {
		t.Fatalf("history window = %+v", last.History)
	}
	if last.PersonaName != "Bio Tutor" || last.Retriever == nil {
		t.Fatalf("chain input unexpected: %+v", last)
	}
}

func TestHandleMessage_IdempotencyReplay(t *testing.T) {
	s := newStack(t)
	p := s.persona(t, "Bio Tutor")
	s.upload(t, p.ID, "cell.md", cellNotes)
	ctx := context.Background()
	in := MessageInput{UserID: 5, PersonaID: p.ID, Text: "What is the powerhouse of the cell?", IdempotencyKey: "k-1"}

	first, err := s.engine.HandleMessage(ctx, in)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := s.engine.HandleMessage(ctx, in)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Replayed || second.TurnID != first.TurnID || second.Text != first.Text {
		t.Fatalf("expected replay of %+v, got %+v", first, second)
	}
	if n := countTurns(t, s.db, ""); n != 2 {
		t.Fatalf("replay must not add turns, got %d", n)
	}

	// Another user with the same key is not a replay.
	other := in
	other.UserID = 6
	r, err := s.engine.HandleMessage(ctx, other)
	if err != nil || r.Replayed {
		t.Fatalf("unexpected replay for another user: %+v %v", r, err)
	}
}

type blockingSender struct {
	release chan struct{}
	sent    atomic.Int32
}

func (b *blockingSender) Send(ctx context.Context, _ notify.Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.sent.Add(1)
	return nil
}

func TestHandleMessage_FullNotifyQueueDoesNotBlock(t *testing.T) {
	s := newStack(t)
	p := s.persona(t, "Bio Tutor")
	s.upload(t, p.ID, "cell.md", cellNotes)

	snd := &blockingSender{release: make(chan struct{})}
	var buf bytes.Buffer
	d := notify.NewDispatcher(snd, notify.Options{QueueSize: 1, Workers: 1, Timeout: 5 * time.Second}, zerolog.Nop())
	s.engine.Notifier = d
	s.engine.Log = zerolog.New(&buf)

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 5; i++ {
			if _, err := s.engine.HandleMessage(context.Background(), MessageInput{UserID: 1, PersonaID: p.ID, Text: "hi"}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("HandleMessage blocked on a full notify queue")
	}
	if !strings.Contains(buf.String(), "reply notification not queued") {
		t.Fatalf("expected dropped notification to be logged, got %q", buf.String())
	}

	close(snd.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := snd.sent.Load(); n < 1 || n > 2 {
		t.Fatalf("expected one or two delivered notifications, got %d", n)
	}
}

func TestModelInvocationError_UnwrapsDeadline(t *testing.T) {
	err := error(&ModelInvocationError{PersonaID: 3, Err: context.DeadlineExceeded})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("errors.Is should see through ModelInvocationError")
	}
	if !strings.Contains(err.Error(), "persona 3") {
		t.Fatalf("message = %q", err.Error())
	}
}
