// Package notify delivers persona replies to a downstream system after the
// request that produced them has returned. Delivery is best-effort: a full
// queue drops the event, a failed send is logged, and nothing is retried.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/persona-rag-backend/internal/observability"
)

var (
	// ErrQueueFull is returned by Enqueue when every queue slot is taken.
	ErrQueueFull = errors.New("notify queue full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("notify dispatcher closed")
)

// Event is the downstream payload for one reply.
type Event struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
	ChatID  int64  `json:"ai_chat_id"`
}

// Sender delivers one event.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// Options sizes the dispatcher.
type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration // per send
}

// Dispatcher fans events out to a fixed pool of workers.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

// NewDispatcher starts opts.Workers goroutines draining a queue of
// opts.QueueSize events.
func NewDispatcher(sender Sender, opts Options, log zerolog.Logger) *Dispatcher {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	d := &Dispatcher{
		sender:  sender,
		timeout: opts.Timeout,
		log:     log.With().Str("component", "notify").Logger(),
		queue:   make(chan Event, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Enqueue hands ev to the workers without blocking.
func (d *Dispatcher) Enqueue(ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		observability.NotifyEvents.WithLabelValues("dropped").Inc()
		return ErrClosed
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		observability.NotifyEvents.WithLabelValues("dropped").Inc()
		d.log.Warn().Int64("user_id", ev.UserID).Int64("ai_chat_id", ev.ChatID).Msg("notify queue full, dropping event")
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be sent, or for
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.send(ev)
	}
}

func (d *Dispatcher) send(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, ev); err != nil {
		observability.NotifyEvents.WithLabelValues("failed").Inc()
		d.log.Error().Err(err).Int64("user_id", ev.UserID).Int64("ai_chat_id", ev.ChatID).Msg("notify send failed")
		return
	}
	observability.NotifyEvents.WithLabelValues("sent").Inc()
	d.log.Debug().Int64("user_id", ev.UserID).Int64("ai_chat_id", ev.ChatID).Msg("notify sent")
}

// Nop discards every event.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }
