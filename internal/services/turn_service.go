// Package services – TurnService
//
// TurnService pages through the stored conversation between one user and one
// persona in chronological order.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/repo"
	"github.com/tbourn/persona-rag-backend/internal/utils"
)

const (
	defaultTurnPageSize = 20
	maxTurnPageSize     = 100
)

// TurnService lists persisted turns.
type TurnService struct {
	DB *gorm.DB
}

func NewTurnService(db *gorm.DB) *TurnService { return &TurnService{DB: db} }

// ListPage returns one page of turns oldest first, the total count and the
// clamped page size actually used.
func (s *TurnService) ListPage(ctx context.Context, userID int64, personaID uint, page, pageSize int) ([]domain.Turn, int64, int, error) {
	ctx, span := otel.Tracer("services/TurnService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int64("user.id", userID),
			attribute.Int64("persona.id", int64(personaID)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if userID <= 0 {
		return nil, 0, 0, invalid("user_id must be positive")
	}
	if _, err := lookupPersona(ctx, s.DB, personaID); err != nil {
		return nil, 0, 0, err
	}
	page, pageSize, offset := utils.Paginate(page, pageSize, defaultTurnPageSize, maxTurnPageSize)

	total, err := repo.CountTurns(ctx, s.DB, userID, personaID)
	if err != nil {
		return nil, 0, pageSize, err
	}
	if total == 0 {
		return []domain.Turn{}, 0, pageSize, nil
	}
	items, err := repo.ListTurnsPage(ctx, s.DB, userID, personaID, offset, pageSize)
	return items, total, pageSize, err
}

// Stats returns the turn count and newest turn id for (userID, personaID),
// enough to build a weak ETag for the listing.
func (s *TurnService) Stats(ctx context.Context, userID int64, personaID uint) (int64, uint, error) {
	return repo.TurnsStats(ctx, s.DB, userID, personaID)
}
