// Package watch rebuilds persona indexes when files change under the docs
// root. Events are grouped per persona partition and debounced, so a burst of
// writes to one partition costs a single rebuild.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

// Rebuilder rebuilds the index of one partition.
type Rebuilder interface {
	Rebuild(ctx context.Context, slug string) error
}

// Watcher monitors <root>/<slug>/... recursively.
type Watcher struct {
	root     string
	rebuild  Rebuilder
	debounce time.Duration
	log      zerolog.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// New creates a watcher over root. debounce defaults to 2s.
func New(root string, r Rebuilder, debounce time.Duration, log zerolog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     filepath.Clean(root),
		rebuild:  r,
		debounce: debounce,
		log:      log.With().Str("component", "watch").Logger(),
		fsw:      fsw,
		pending:  map[string]*time.Timer{},
	}, nil
}

// Run watches until ctx is done, then waits for in-flight rebuilds and
// releases the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.log.Info().Str("root", w.root).Dur("debounce", w.debounce).Msg("watching docs root")

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.stop()
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.stop()
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	slug, ok := w.slugOf(ev.Name)
	if !ok {
		if ev.Has(fsnotify.Create) {
			_ = w.addTree(ev.Name)
		}
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addTree(ev.Name)
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.schedule(ctx, slug)
}

// slugOf returns the partition a path belongs to. Paths directly under root,
// and hidden files such as in-progress uploads, have none.
func (w *Watcher) slugOf(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return "", false
	}
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return "", false
		}
	}
	return parts[0], true
}

func (w *Watcher) schedule(ctx context.Context, slug string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[slug]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[slug] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, slug)
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()
		w.run(ctx, slug)
	})
}

func (w *Watcher) run(ctx context.Context, slug string) {
	if ctx.Err() != nil {
		return
	}
	err := w.rebuild.Rebuild(ctx, slug)
	switch {
	case err == nil:
		w.log.Info().Str("slug", slug).Msg("index rebuilt after file change")
	case errors.Is(err, vectorindex.ErrNoDocuments):
		w.log.Info().Str("slug", slug).Msg("partition has no documents, index left unchanged")
	default:
		w.log.Error().Err(err).Str("slug", slug).Msg("rebuild after file change failed")
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for slug, t := range w.pending {
		t.Stop()
		delete(w.pending, slug)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}
