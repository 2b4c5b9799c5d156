package domain

import "time"

// Idempotency records the reply turn produced for a postMessage call carrying
// an Idempotency-Key, keyed by (user_id, persona_id, key). A retry with the
// same key replays TurnID instead of appending duplicate turns.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    int64     `gorm:"not null;uniqueIndex:ux_idem_user_persona_key,priority:1"`
	PersonaID uint      `gorm:"not null;uniqueIndex:ux_idem_user_persona_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_user_persona_key,priority:3"`
	TurnID    uint      `gorm:"not null"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
