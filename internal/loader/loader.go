// Package loader owns the on-disk document partitions. It stores uploaded
// files under <root>/<slug>/, enumerates them, parses each by extension and
// splits the text into passages ready for embedding.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidFilename is returned by Store for names that cannot be placed
// safely inside a partition.
var ErrInvalidFilename = errors.New("invalid filename")

// Passage is one chunk of one source file.
type Passage struct {
	Source string // "<slug>/<file>", relative to the docs root
	Chunk  int    // position within Source
	Text   string
	Hash   string // sha256 of Text, hex
}

// Loader reads and writes persona partitions below a root directory.
type Loader struct {
	root  string
	chunk ChunkConfig
	log   zerolog.Logger
}

// New returns a Loader rooted at root.
func New(root string, cfg ChunkConfig, log zerolog.Logger) *Loader {
	return &Loader{root: root, chunk: cfg.normalized(), log: log}
}

// Root returns the docs root.
func (l *Loader) Root() string { return l.root }

// Dir returns the partition directory for slug.
func (l *Loader) Dir(slug string) string { return filepath.Join(l.root, slug) }

// Store writes content to <root>/<slug>/<name> through a temp file and a
// hard link, so a concurrent Load never sees a half-written file. Stored
// files are never replaced: when name is taken a short random suffix is
// added before the extension. It returns the path relative to root.
func (l *Loader) Store(slug, filename string, content []byte) (string, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	dir := l.Dir(slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	// Link fails with ErrExist instead of replacing the target.
	target := name
	for attempt := 0; ; attempt++ {
		err := os.Link(tmpName, filepath.Join(dir, target))
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) || attempt >= maxNameAttempts {
			return "", fmt.Errorf("store %s/%s: %w", slug, name, err)
		}
		target = suffixed(name)
	}
	if target != name {
		l.log.Debug().Str("slug", slug).Str("requested", name).Str("stored", target).Msg("file name taken, stored under a new name")
	}
	return filepath.ToSlash(filepath.Join(slug, target)), nil
}

const maxNameAttempts = 8

// suffixed returns name with "_<8 hex>" inserted before the extension.
func suffixed(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return stem + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + ext
}

// SanitizeFilename keeps the base name of an uploaded file and rejects names
// that are empty, hidden or traverse directories.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := strings.TrimSpace(filepath.Base(filepath.FromSlash(name)))
	switch {
	case base == "", base == ".", base == "..", base == string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	case strings.HasPrefix(base, "."):
		return "", fmt.Errorf("%w: hidden file %q", ErrInvalidFilename, name)
	case strings.ContainsRune(base, 0):
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return base, nil
}

// Files lists the regular, non-hidden files of a partition as paths relative
// to root, sorted. A missing partition yields an empty list.
func (l *Loader) Files(slug string) ([]string, error) {
	dir := l.Dir(slug)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	pattern := filepath.Join(escapeMeta(dir), "**", "*")
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(l.root, m)
		if err != nil {
			continue
		}
		if hidden(rel) {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out, nil
}

// Load parses and chunks every file in the partition. Read and parse errors
// fail the load; files that are not valid UTF-8 text are skipped with a
// warning. Passages with identical text are kept once.
func (l *Loader) Load(ctx context.Context, slug string) ([]Passage, error) {
	files, err := l.Files(slug)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []Passage
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		text, err := Parse(rel, data)
		if errors.Is(err, ErrUnsupported) {
			l.log.Warn().Str("file", rel).Msg("skipping non-text document")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", rel, err)
		}
		for i, c := range Chunk(text, l.chunk) {
			h := hashText(c)
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, Passage{Source: rel, Chunk: i, Text: c, Hash: h})
		}
	}
	return out, nil
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// escapeMeta protects glob metacharacters that may appear in the root path.
func escapeMeta(p string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `{`, `\{`)
	return r.Replace(p)
}
