package vectorindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	currentFile = "CURRENT"
	indexFile   = "index.json"
)

// storedPassage is one embedded chunk as persisted in index.json.
type storedPassage struct {
	Source string    `json:"source"`
	Chunk  int       `json:"chunk"`
	Text   string    `json:"text"`
	Hash   string    `json:"hash"`
	Vector []float64 `json:"vector"`
}

// manifest is the content of one version's index.json.
type manifest struct {
	Slug     string          `json:"slug"`
	Version  string          `json:"version"`
	BuiltAt  time.Time       `json:"built_at"`
	Embedder string          `json:"embedder"`
	Files    []string        `json:"files"`
	Passages []storedPassage `json:"passages"`
}

// diskStore lays versions out as <root>/<slug>/v<unixnano>/index.json with a
// CURRENT file naming the live version.
type diskStore struct {
	root string
	now  func() time.Time
}

func (s *diskStore) slugDir(slug string) string { return filepath.Join(s.root, slug) }

// current returns the published version name, or ErrIndexNotFound.
func (s *diskStore) current(slug string) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.slugDir(slug), currentFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrIndexNotFound
	}
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", ErrIndexNotFound
	}
	return v, nil
}

func (s *diskStore) read(slug, version string) (*manifest, error) {
	b, err := os.ReadFile(filepath.Join(s.slugDir(slug), version, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", slug, version, err)
	}
	return &m, nil
}

// readCurrent loads the published manifest.
func (s *diskStore) readCurrent(slug string) (*manifest, error) {
	v, err := s.current(slug)
	if err != nil {
		return nil, err
	}
	return s.read(slug, v)
}

// write persists m as a new, unpublished version directory and returns its
// name. On error the partial directory is removed.
func (s *diskStore) write(m *manifest) (string, error) {
	dir := s.slugDir(m.Slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	version := "v" + strconv.FormatInt(s.now().UnixNano(), 10)
	vdir := filepath.Join(dir, version)
	for {
		err := os.Mkdir(vdir, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		// Same nanosecond as an earlier build; bump until free.
		n, _ := strconv.ParseInt(strings.TrimPrefix(version, "v"), 10, 64)
		version = "v" + strconv.FormatInt(n+1, 10)
		vdir = filepath.Join(dir, version)
	}

	m.Version = version
	b, err := json.Marshal(m)
	if err == nil {
		err = os.WriteFile(filepath.Join(vdir, indexFile), b, 0o644)
	}
	if err != nil {
		os.RemoveAll(vdir)
		return "", err
	}
	return version, nil
}

// publish points CURRENT at version through a temp file and a rename.
func (s *diskStore) publish(slug, version string) error {
	dir := s.slugDir(slug)
	tmp, err := os.CreateTemp(dir, ".current-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(version + "\n"); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, filepath.Join(dir, currentFile)); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// discard removes an unpublished version.
func (s *diskStore) discard(slug, version string) {
	if version != "" {
		os.RemoveAll(filepath.Join(s.slugDir(slug), version))
	}
}

// versions lists version directory names, newest first.
func (s *diskStore) versions(slug string) ([]string, error) {
	entries, err := os.ReadDir(s.slugDir(slug))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	type ver struct {
		name string
		n    int64
	}
	var vs []ver
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "v") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), "v"), 10, 64)
		if err != nil {
			continue
		}
		vs = append(vs, ver{e.Name(), n})
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].n > vs[j].n })
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.name
	}
	return out, nil
}

// prune deletes all but the newest keep versions. The live version is never
// removed.
func (s *diskStore) prune(slug string, keep int) error {
	live, _ := s.current(slug)
	vs, err := s.versions(slug)
	if err != nil {
		return err
	}
	kept := 0
	var errs []error
	for _, v := range vs {
		if v == live || kept < keep {
			kept++
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.slugDir(slug), v)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
