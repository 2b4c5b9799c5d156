// Package domain defines the persistence models for personas, their source
// documents and the append-only conversation log. These types are mapped with
// GORM and shared by the repository, service and HTTP layers.
package domain

import (
	"time"
)

// Turn origins. Stored verbatim and enforced by a CHECK constraint.
const (
	OriginUser    = "user"
	OriginPersona = "persona"
)

// Persona is a named AI identity with its own document corpus and index
// partition.
//
// Fields:
//   - ID: autoincrement primary key, exposed to clients as ai_id.
//   - Name: unique display name.
//   - Slug: unique partition key derived from Name at creation time. It is
//     stored rather than recomputed so that a change to the slug function
//     can never desynchronize documents from their index.
//   - Documents: uploaded source files, cascade-deleted with the persona.
type Persona struct {
	ID          uint       `json:"id"          gorm:"primaryKey"`
	Name        string     `json:"name"        gorm:"type:varchar(255);not null;uniqueIndex:ux_personas_name"`
	Slug        string     `json:"slug"        gorm:"type:varchar(255);not null;uniqueIndex:ux_personas_slug"`
	Description string     `json:"description" gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Documents   []Document `json:"documents"   gorm:"foreignKey:PersonaID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Persona.
func (Persona) TableName() string { return "personas" }

// Document is one uploaded source file. File holds the path relative to the
// docs root ("<slug>/<filename>"), so the partition is visible in the record.
type Document struct {
	ID          uint      `json:"id"          gorm:"primaryKey"`
	PersonaID   uint      `json:"-"           gorm:"not null;index:idx_documents_persona"`
	File        string    `json:"file"        gorm:"type:varchar(1024);not null"`
	Description string    `json:"description" gorm:"type:text;not null;default:''"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"      gorm:"column:sha256;type:char(64)"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }

// Turn is one message in a conversation, persisted append-only. Turns for a
// (user, persona) pair are totally ordered by ID; CreatedAt is informational.
//
// PersonaID is nullable for legacy/system rows and is set to NULL when the
// persona is deleted, so history survives independently of the index.
type Turn struct {
	ID             uint      `json:"id"              gorm:"primaryKey"`
	PersonaID      *uint     `json:"persona_id"      gorm:"index:idx_turns_user_persona,priority:2"`
	UserID         int64     `json:"user_id"         gorm:"not null;index:idx_turns_user_persona,priority:1"`
	ConversationID int64     `json:"conversation_id" gorm:"not null;index"`
	Text           string    `json:"message"         gorm:"type:text;not null"`
	Origin         string    `json:"origin"          gorm:"type:varchar(16);not null;check:origin IN ('user','persona')"`
	CreatedAt      time.Time `json:"timestamp"`

	Persona *Persona `json:"-" gorm:"foreignKey:PersonaID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Turn.
func (Turn) TableName() string { return "turns" }

// FromPersona reports whether the turn was authored by the persona.
func (t Turn) FromPersona() bool { return t.Origin == OriginPersona }
