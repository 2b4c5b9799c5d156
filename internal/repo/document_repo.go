package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/domain"
)

// CreateDocument records an uploaded file for a persona. file is the path
// relative to the docs root ("<slug>/<filename>").
func CreateDocument(ctx context.Context, db *gorm.DB, personaID uint, file, description string, size int64, sum string) (*domain.Document, error) {
	d := &domain.Document{
		PersonaID:   personaID,
		File:        file,
		Description: description,
		Size:        size,
		SHA256:      sum,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// ListDocuments returns a persona's documents in upload order.
func ListDocuments(ctx context.Context, db *gorm.DB, personaID uint) ([]domain.Document, error) {
	out := []domain.Document{}
	err := db.WithContext(ctx).
		Where("persona_id = ?", personaID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
