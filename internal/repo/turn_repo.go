package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/domain"
)

// AppendTurn inserts one turn. Ordering within a (user, persona) pair comes
// from the autoincrement id, which SQLite assigns under its single-writer lock.
func AppendTurn(ctx context.Context, db *gorm.DB, personaID uint, userID, conversationID int64, text, origin string) (*domain.Turn, error) {
	pid := personaID
	t := &domain.Turn{
		PersonaID:      &pid,
		UserID:         userID,
		ConversationID: conversationID,
		Text:           text,
		Origin:         origin,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListRecentTurns returns turns for (userID, personaID) newest first.
// limit <= 0 returns the whole history.
func ListRecentTurns(ctx context.Context, db *gorm.DB, userID int64, personaID uint, limit int) ([]domain.Turn, error) {
	out := []domain.Turn{}
	q := db.WithContext(ctx).
		Where("user_id = ? AND persona_id = ?", userID, personaID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// LatestTurnID returns the id of the newest turn for (userID, personaID), or 0
// when there is none.
func LatestTurnID(ctx context.Context, db *gorm.DB, userID int64, personaID uint) (uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Model(&domain.Turn{}).
		Where("user_id = ? AND persona_id = ?", userID, personaID).
		Order("id DESC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[0], nil
}

// CountTurns uses a raw COUNT so a missing table surfaces as an error.
func CountTurns(ctx context.Context, db *gorm.DB, userID int64, personaID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM turns WHERE user_id = ? AND persona_id = ?", userID, personaID).
		Scan(&total).Error
	return total, err
}

// ListTurnsPage returns a chronological page of turns for (userID, personaID).
func ListTurnsPage(ctx context.Context, db *gorm.DB, userID int64, personaID uint, offset, limit int) ([]domain.Turn, error) {
	out := []domain.Turn{}
	err := db.WithContext(ctx).
		Where("user_id = ? AND persona_id = ?", userID, personaID).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetTurn fetches a turn by id.
func GetTurn(ctx context.Context, db *gorm.DB, id uint) (*domain.Turn, error) {
	var t domain.Turn
	if err := db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
