// Package history rebuilds the bounded conversational window a chat model sees
// from the append-only turn log.
//
// Turns for a (user, persona) pair are paired as (user text, the reply that
// followed it). A user turn fills a single pending slot, overwriting any
// unanswered earlier turn; a persona turn emits a pair when the slot is
// filled and is discarded otherwise. A trailing unanswered user turn never
// appears in the window.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/repo"
)

// ErrInvalidInput is returned by ContextInput.Validate.
var ErrInvalidInput = errors.New("invalid history input")

// fetchFactor sets how many turns the first read fetches per requested pair.
// Unanswered and overwritten user turns can push the ratio past two, so
// BuildContext doubles the read until the window is full or the log ends.
const fetchFactor = 4

// Pair is one completed exchange.
type Pair struct {
	User  string `json:"user"`
	Reply string `json:"reply"`
}

// Order selects how BuildContext returns pairs.
type Order int

const (
	// Chronological returns the oldest pair first, the order a chat model
	// consumes.
	Chronological Order = iota
	// NewestFirst returns the most recent pair first.
	NewestFirst
)

// ContextInput identifies the conversation whose window is requested.
// MaxPairs keeps the most recent N pairs; 0 means unbounded.
type ContextInput struct {
	UserID    int64
	PersonaID uint
	MaxPairs  int
	Order     Order
}

// Validate checks the identifiers and bounds.
func (in ContextInput) Validate() error {
	switch {
	case in.UserID <= 0:
		return fmt.Errorf("%w: user_id must be positive", ErrInvalidInput)
	case in.PersonaID == 0:
		return fmt.Errorf("%w: persona_id must be positive", ErrInvalidInput)
	case in.MaxPairs < 0:
		return fmt.Errorf("%w: max_pairs must be >= 0", ErrInvalidInput)
	case in.Order != Chronological && in.Order != NewestFirst:
		return fmt.Errorf("%w: unknown order %d", ErrInvalidInput, in.Order)
	}
	return nil
}

// Window is a computed set of pairs tagged with the newest turn id it was
// built from.
type Window struct {
	Pairs      []Pair `json:"pairs"`
	LastTurnID uint   `json:"last_turn_id"`
}

// Cache stores computed windows. Implementations are best-effort; a cached
// window is only served while its LastTurnID is still the newest turn.
type Cache interface {
	Get(ctx context.Context, userID int64, personaID uint, maxPairs int) (Window, bool, error)
	Set(ctx context.Context, userID int64, personaID uint, maxPairs int, win Window) error
	Invalidate(ctx context.Context, userID int64, personaID uint) error
}

// Windower builds conversation windows from the turn log.
type Windower struct {
	db    *gorm.DB
	cache Cache
	log   zerolog.Logger
}

// New returns a Windower. cache may be nil.
func New(db *gorm.DB, cache Cache, log zerolog.Logger) *Windower {
	return &Windower{db: db, cache: cache, log: log.With().Str("component", "history").Logger()}
}

// BuildContext returns the completed pairs for (UserID, PersonaID), bounded to
// the most recent MaxPairs and ordered per in.Order.
func (w *Windower) BuildContext(ctx context.Context, in ContextInput) ([]Pair, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if win, ok := w.cached(ctx, in); ok {
		latest, err := repo.LatestTurnID(ctx, w.db, in.UserID, in.PersonaID)
		if err != nil {
			return nil, fmt.Errorf("latest turn: %w", err)
		}
		if latest == win.LastTurnID {
			return arrange(win.Pairs, in.Order), nil
		}
	}

	win, err := w.load(ctx, in)
	if err != nil {
		return nil, err
	}

	if w.cache != nil {
		if err := w.cache.Set(ctx, in.UserID, in.PersonaID, in.MaxPairs, win); err != nil {
			w.log.Warn().Err(err).Int64("user_id", in.UserID).Uint("persona_id", in.PersonaID).Msg("history cache set failed")
		}
	}
	return arrange(win.Pairs, in.Order), nil
}

// load reads the newest turns and pairs them. With MaxPairs set the read
// starts at MaxPairs*fetchFactor turns and doubles while the window is short
// and older turns remain.
func (w *Windower) load(ctx context.Context, in ContextInput) (Window, error) {
	limit := 0
	if in.MaxPairs > 0 {
		limit = in.MaxPairs * fetchFactor
	}
	for {
		turns, err := repo.ListRecentTurns(ctx, w.db, in.UserID, in.PersonaID, limit)
		if err != nil {
			return Window{}, fmt.Errorf("list turns: %w", err)
		}
		pairs := Pairs(reverse(turns))
		if limit > 0 && len(pairs) < in.MaxPairs && len(turns) == limit {
			limit *= 2
			continue
		}
		if in.MaxPairs > 0 && len(pairs) > in.MaxPairs {
			pairs = pairs[len(pairs)-in.MaxPairs:]
		}
		win := Window{Pairs: pairs}
		if len(turns) > 0 {
			win.LastTurnID = turns[0].ID
		}
		return win, nil
	}
}

// Invalidate drops any cached window for (userID, personaID). It never fails
// the caller; errors are logged.
func (w *Windower) Invalidate(ctx context.Context, userID int64, personaID uint) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Invalidate(ctx, userID, personaID); err != nil {
		w.log.Warn().Err(err).Int64("user_id", userID).Uint("persona_id", personaID).Msg("history cache invalidate failed")
	}
}

func (w *Windower) cached(ctx context.Context, in ContextInput) (Window, bool) {
	if w.cache == nil {
		return Window{}, false
	}
	win, ok, err := w.cache.Get(ctx, in.UserID, in.PersonaID, in.MaxPairs)
	if err != nil {
		w.log.Warn().Err(err).Int64("user_id", in.UserID).Uint("persona_id", in.PersonaID).Msg("history cache get failed")
		return Window{}, false
	}
	return win, ok
}

// Pairs applies the pending-slot rule to turns given in authoring order and
// returns the pairs oldest first.
func Pairs(turns []domain.Turn) []Pair {
	out := []Pair{}
	pending, filled := "", false
	for _, t := range turns {
		if !t.FromPersona() {
			pending, filled = t.Text, true
			continue
		}
		if filled {
			out = append(out, Pair{User: pending, Reply: t.Text})
			pending, filled = "", false
		}
	}
	return out
}

func reverse(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(turns))
	for i, t := range turns {
		out[len(turns)-1-i] = t
	}
	return out
}

func arrange(pairs []Pair, order Order) []Pair {
	out := make([]Pair, len(pairs))
	copy(out, pairs)
	if order == NewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
