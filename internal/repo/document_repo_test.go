package repo

import (
	"context"
	"testing"
)

func TestCreateDocument_AndList(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDB(t)
	p := mustPersona(t, db, "Ada", "ada")

	d, err := CreateDocument(ctx, db, p.ID, "ada/notes.md", "lab notes", 12, "abc")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if d.ID == 0 || d.CreatedAt.IsZero() {
		t.Fatalf("unexpected document: %+v", d)
	}

	docs, err := ListDocuments(ctx, db, p.ID)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].Description != "lab notes" || docs[0].SHA256 != "abc" {
		t.Fatalf("unexpected docs: %+v", docs)
	}

	empty, err := ListDocuments(ctx, db, p.ID+1)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v %v", empty, err)
	}
}

func TestCreateDocument_UnknownPersonaRejected(t *testing.T) {
	db := newMigratedDB(t)
	if _, err := CreateDocument(context.Background(), db, 404, "x/y.txt", "", 1, ""); err == nil {
		t.Fatalf("expected foreign key error")
	}
}
