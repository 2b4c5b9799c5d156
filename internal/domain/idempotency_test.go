package domain

import (
	"testing"
	"time"
)

func TestIdempotency_UniquePerUserPersonaKey(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	first := &Idempotency{ID: "a", UserID: 1, PersonaID: 2, Key: "k", TurnID: 10, Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be set by autoCreateTime")
	}

	dup := &Idempotency{ID: "b", UserID: 1, PersonaID: 2, Key: "k", TurnID: 11, Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation for same (user, persona, key)")
	}

	otherPersona := &Idempotency{ID: "c", UserID: 1, PersonaID: 3, Key: "k", TurnID: 12, Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(otherPersona).Error; err != nil {
		t.Fatalf("same key on another persona should be allowed: %v", err)
	}
}
