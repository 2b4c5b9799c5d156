package vectorindex

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskStore_WritePublishRead(t *testing.T) {
	fixed := time.Unix(0, 42)
	s := &diskStore{root: t.TempDir(), now: func() time.Time { return fixed }}

	if _, err := s.current("p"); !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound before publish, got %v", err)
	}

	v1, err := s.write(&manifest{Slug: "p", Passages: []storedPassage{{Source: "p/a.txt", Text: "x", Hash: "h"}}})
	if err != nil || v1 != "v42" {
		t.Fatalf("write = %q %v", v1, err)
	}
	// Same clock reading must not collide.
	v2, err := s.write(&manifest{Slug: "p"})
	if err != nil || v2 != "v43" {
		t.Fatalf("second write = %q %v", v2, err)
	}

	// Unpublished versions are invisible.
	if _, err := s.readCurrent("p"); !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}

	if err := s.publish("p", v1); err != nil {
		t.Fatalf("publish: %v", err)
	}
	m, err := s.readCurrent("p")
	if err != nil || m.Version != "v42" || len(m.Passages) != 1 {
		t.Fatalf("readCurrent = %+v %v", m, err)
	}

	s.discard("p", v2)
	vs, _ := s.versions("p")
	if len(vs) != 1 || vs[0] != "v42" {
		t.Fatalf("versions after discard = %v", vs)
	}

	// No temp files are left next to CURRENT.
	entries, _ := os.ReadDir(s.slugDir("p"))
	for _, e := range entries {
		if !e.IsDir() && e.Name() != currentFile {
			t.Fatalf("unexpected file %q in partition", e.Name())
		}
	}
}

func TestDiskStore_PruneKeepsLive(t *testing.T) {
	n := int64(0)
	s := &diskStore{root: t.TempDir(), now: func() time.Time { n++; return time.Unix(0, n) }}
	var vs []string
	for i := 0; i < 4; i++ {
		v, err := s.write(&manifest{Slug: "p"})
		if err != nil {
			t.Fatalf("write: %v", err)
		}
		vs = append(vs, v)
	}
	// Publish the oldest; prune must keep it even though it is outside keep.
	if err := s.publish("p", vs[0]); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := s.prune("p", 1); err != nil {
		t.Fatalf("prune: %v", err)
	}
	left, _ := s.versions("p")
	if len(left) != 2 || left[0] != vs[3] || left[1] != vs[0] {
		t.Fatalf("prune left %v", left)
	}
}

func TestDiskStore_CorruptIndex(t *testing.T) {
	s := &diskStore{root: t.TempDir(), now: time.Now}
	v, err := s.write(&manifest{Slug: "p"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.slugDir("p"), v, indexFile), []byte("{"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if err := s.publish("p", v); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := s.readCurrent("p"); err == nil || errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDiskStore_VersionsIgnoresStrays(t *testing.T) {
	s := &diskStore{root: t.TempDir(), now: time.Now}
	for _, d := range []string{"v10", "v2", "vx", "tmp"} {
		if err := os.MkdirAll(filepath.Join(s.slugDir("p"), d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	vs, err := s.versions("p")
	if err != nil || len(vs) != 2 || vs[0] != "v10" || vs[1] != "v2" {
		t.Fatalf("versions = %v %v", vs, err)
	}
	if vs, err := s.versions("missing"); err != nil || vs != nil {
		t.Fatalf("missing slug: %v %v", vs, err)
	}
}
