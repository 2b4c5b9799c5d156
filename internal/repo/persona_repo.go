package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/persona-rag-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can use either.
var ErrNotFound = gorm.ErrRecordNotFound

// CreatePersona inserts a persona. A name or slug that already exists yields
// ErrDuplicate.
func CreatePersona(ctx context.Context, db *gorm.DB, name, slug, description string) (*domain.Persona, error) {
	p := &domain.Persona{
		Name:        name,
		Slug:        slug,
		Description: description,
		Documents:   []domain.Document{},
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// GetPersona fetches a persona by id without its documents.
func GetPersona(ctx context.Context, db *gorm.DB, id uint) (*domain.Persona, error) {
	var p domain.Persona
	if err := db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPersonaWithDocuments fetches a persona by id and preloads its documents
// in upload order.
func GetPersonaWithDocuments(ctx context.Context, db *gorm.DB, id uint) (*domain.Persona, error) {
	var p domain.Persona
	err := db.WithContext(ctx).
		Preload("Documents", func(tx *gorm.DB) *gorm.DB { return tx.Order("documents.id ASC") }).
		First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPersonaBySlug fetches a persona by its partition key.
func GetPersonaBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Persona, error) {
	var p domain.Persona
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// SlugExists reports whether any persona already owns slug.
func SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Persona{}).Where("slug = ?", slug).Count(&n).Error
	return n > 0, err
}

// ListPersonas returns every persona ordered by id, each with its documents.
func ListPersonas(ctx context.Context, db *gorm.DB) ([]domain.Persona, error) {
	out := []domain.Persona{}
	err := db.WithContext(ctx).
		Preload("Documents", func(tx *gorm.DB) *gorm.DB { return tx.Order("documents.id ASC") }).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// isUniqueViolation matches both gorm's translated error and the plain-text
// errors glebarez/sqlite returns for UNIQUE failures.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
