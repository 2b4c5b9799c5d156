package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/domain"
)

// PersonasStats returns the persona count plus the newest UpdatedAt and the
// highest document id, which together change whenever the list response would.
func PersonasStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, maxDocID uint, err error) {
	q := db.WithContext(ctx).Model(&domain.Persona{}).Session(&gorm.Session{})
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, 0, err
	}
	if count == 0 {
		return 0, nil, 0, nil
	}

	// Avoid MAX() on timestamps: SQLite returns TEXT for it.
	var row struct{ UpdatedAt time.Time }
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, 0, err
	}
	var doc struct{ ID uint }
	if err = db.WithContext(ctx).Model(&domain.Document{}).Select("id").Order("id DESC").Limit(1).Scan(&doc).Error; err != nil {
		return 0, nil, 0, err
	}
	return count, &row.UpdatedAt, doc.ID, nil
}

// TurnsStats returns the number of turns for (userID, personaID) and the id of
// the newest one. Turns are append-only, so the pair identifies a version.
func TurnsStats(ctx context.Context, db *gorm.DB, userID int64, personaID uint) (count int64, maxID uint, err error) {
	q := db.WithContext(ctx).Model(&domain.Turn{}).
		Where("user_id = ? AND persona_id = ?", userID, personaID).
		Session(&gorm.Session{})
	if err = q.Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}
	var row struct{ ID uint }
	if err = q.Select("id").Order("id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return count, row.ID, nil
}
