// Package vectorindex builds, publishes and serves per-persona vector indexes.
//
// Each persona owns a partition under the index root. A rebuild embeds every
// passage of the persona's documents, writes a complete new version
// directory, and then flips the CURRENT pointer with an atomic rename, so a
// query only ever sees a fully published version. Loaded versions are cached
// in a bounded LRU and exposed as eino retrievers.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/persona-rag-backend/internal/loader"
	"github.com/tbourn/persona-rag-backend/internal/observability"
)

var tracer = otel.Tracer("vectorindex")

// Options tunes a Manager. Zero values fall back to the defaults noted.
type Options struct {
	IndexRoot    string
	EmbedderName string        // recorded in each version; vectors are reused only when it matches
	BatchSize    int           // passages per embedding call (64)
	Concurrency  int           // embedding calls in flight (4)
	EmbedTimeout time.Duration // per embedding call (30s)
	CacheSize    int           // loaded indexes kept in memory (64)
	KeepVersions int           // published versions kept on disk (2)
}

func (o Options) withDefaults() Options {
	if o.BatchSize < 1 {
		o.BatchSize = 64
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = 30 * time.Second
	}
	if o.CacheSize < 1 {
		o.CacheSize = 64
	}
	if o.KeepVersions < 1 {
		o.KeepVersions = 2
	}
	return o
}

// IngestInput is one document to store in a persona partition.
type IngestInput struct {
	PersonaID uint
	Slug      string
	Filename  string
	Content   []byte
}

// Validate checks that the input names a usable partition and file.
func (in IngestInput) Validate() error {
	s := strings.TrimSpace(in.Slug)
	switch {
	case s == "" || s == "." || s == "..":
		return fmt.Errorf("%w: slug is required", ErrInvalidInput)
	case strings.ContainsAny(s, `/\`) || s != in.Slug:
		return fmt.Errorf("%w: slug %q is not a partition key", ErrInvalidInput, in.Slug)
	case strings.TrimSpace(in.Filename) == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidInput)
	case len(in.Content) == 0:
		return fmt.Errorf("%w: document is empty", ErrInvalidInput)
	}
	if _, err := loader.SanitizeFilename(in.Filename); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

type slugLocks struct {
	rw    sync.RWMutex // pointer swap and cache invalidation vs. loads
	build sync.Mutex   // one rebuild per slug at a time
}

// Manager owns every persona index below Options.IndexRoot.
type Manager struct {
	opts     Options
	loader   *loader.Loader
	embedder embedding.Embedder
	store    *diskStore
	cache    *lru
	sf       singleflight.Group
	log      zerolog.Logger

	mu     sync.Mutex
	locks  map[string]*slugLocks
	closed atomic.Bool
}

// New returns a Manager reading documents through l and embedding them with e.
func New(l *loader.Loader, e embedding.Embedder, opts Options, log zerolog.Logger) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts:     opts,
		loader:   l,
		embedder: e,
		store:    &diskStore{root: opts.IndexRoot, now: time.Now},
		cache:    newLRU(opts.CacheSize),
		log:      log.With().Str("component", "vectorindex").Logger(),
		locks:    make(map[string]*slugLocks),
	}
}

func (m *Manager) locksFor(slug string) *slugLocks {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[slug]
	if !ok {
		l = &slugLocks{}
		m.locks[slug] = l
	}
	return l
}

// Ingest stores a document in the persona's partition and rebuilds the
// persona's index from every document now in it. It returns the stored path
// relative to the docs root. Failures are *IngestionError values; a failed
// rebuild leaves the stored file and the previously published index in place.
func (m *Manager) Ingest(ctx context.Context, in IngestInput) (string, error) {
	rel, err := m.Store(in)
	if err != nil {
		return "", err
	}
	if err := m.Rebuild(ctx, in.Slug); err != nil {
		return rel, err
	}
	return rel, nil
}

// Store writes a document into the persona's partition without rebuilding.
// It returns the path relative to the docs root.
func (m *Manager) Store(in IngestInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	if m.closed.Load() {
		return "", ErrClosed
	}
	rel, err := m.loader.Store(in.Slug, in.Filename, in.Content)
	if err != nil {
		return "", ingestErr(in.Slug, "store", err)
	}
	m.log.Info().Str("slug", in.Slug).Str("file", rel).Uint("persona_id", in.PersonaID).Msg("document stored")
	return rel, nil
}

// Rebuild re-indexes a persona partition from scratch and publishes the
// result as a new version. Rebuilds of the same slug are serialized.
func (m *Manager) Rebuild(ctx context.Context, slug string) (err error) {
	if m.closed.Load() {
		return ErrClosed
	}
	ctx, span := tracer.Start(ctx, "vectorindex.Rebuild")
	span.SetAttributes(attribute.String("persona.slug", slug))
	defer span.End()

	locks := m.locksFor(slug)
	locks.build.Lock()
	defer locks.build.Unlock()

	start := time.Now()
	defer func() {
		observability.IndexRebuildDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			observability.IndexRebuilds.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "rebuild failed")
			m.log.Error().Err(err).Str("slug", slug).Msg("index rebuild failed")
		} else {
			observability.IndexRebuilds.WithLabelValues("ok").Inc()
		}
	}()

	passages, err := m.loader.Load(ctx, slug)
	if err != nil {
		return ingestErr(slug, "load", err)
	}
	if len(passages) == 0 {
		return ingestErr(slug, "load", ErrNoDocuments)
	}

	man := &manifest{
		Slug:     slug,
		BuiltAt:  time.Now().UTC(),
		Embedder: m.opts.EmbedderName,
		Passages: make([]storedPassage, len(passages)),
	}
	seenFile := map[string]bool{}
	for i, p := range passages {
		man.Passages[i] = storedPassage{Source: p.Source, Chunk: p.Chunk, Text: p.Text, Hash: p.Hash}
		if !seenFile[p.Source] {
			seenFile[p.Source] = true
			man.Files = append(man.Files, p.Source)
		}
	}

	reused, err := m.fillVectors(ctx, slug, man.Passages)
	if err != nil {
		return ingestErr(slug, "embed", err)
	}

	version, err := m.store.write(man)
	if err != nil {
		return ingestErr(slug, "write", err)
	}

	locks.rw.Lock()
	err = m.store.publish(slug, version)
	if err == nil {
		m.cache.remove(slug)
	}
	locks.rw.Unlock()
	if err != nil {
		m.store.discard(slug, version)
		return ingestErr(slug, "publish", err)
	}

	if perr := m.store.prune(slug, m.opts.KeepVersions); perr != nil {
		m.log.Warn().Err(perr).Str("slug", slug).Msg("pruning old index versions failed")
	}
	observability.IndexPassages.WithLabelValues(slug).Set(float64(len(man.Passages)))
	span.SetAttributes(attribute.Int("index.passages", len(man.Passages)), attribute.Int("index.reused", reused))
	m.log.Info().
		Str("slug", slug).
		Str("version", version).
		Int("passages", len(man.Passages)).
		Int("reused", reused).
		Dur("took", time.Since(start)).
		Msg("index published")
	return nil
}

// fillVectors sets Vector on every passage, reusing vectors from the
// published version when the content hash and embedder match. It returns how
// many vectors were reused.
func (m *Manager) fillVectors(ctx context.Context, slug string, ps []storedPassage) (int, error) {
	prev := map[string][]float64{}
	if old, err := m.store.readCurrent(slug); err == nil && old.Embedder == m.opts.EmbedderName {
		for _, p := range old.Passages {
			prev[p.Hash] = p.Vector
		}
	}

	var todo []int
	for i := range ps {
		if v, ok := prev[ps[i].Hash]; ok && len(v) > 0 {
			ps[i].Vector = v
			continue
		}
		todo = append(todo, i)
	}
	if len(todo) == 0 {
		return len(ps), nil
	}

	texts := make([]string, len(todo))
	for i, idx := range todo {
		texts[i] = ps[idx].Text
	}
	vecs, err := m.embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i, idx := range todo {
		ps[idx].Vector = vecs[i]
	}
	return len(ps) - len(todo), nil
}

// embed runs batches concurrently, each bounded by EmbedTimeout.
func (m *Manager) embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for start := 0; start < len(texts); start += m.opts.BatchSize {
		end := min(start+m.opts.BatchSize, len(texts))
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, m.opts.EmbedTimeout)
			defer cancel()
			vecs, err := m.embedder.EmbedStrings(bctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Retriever returns a retriever over the persona's published index, loading
// it on first use. topK below 1 is treated as 1. It fails with
// ErrIndexNotFound when nothing has been published for slug.
func (m *Manager) Retriever(ctx context.Context, slug string, topK int) (retriever.Retriever, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if topK < 1 {
		topK = 1
	}
	ix, err := m.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &indexRetriever{ix: ix, embedder: m.embedder, topK: topK}, nil
}

func (m *Manager) load(ctx context.Context, slug string) (*index, error) {
	if ix, ok := m.cache.get(slug); ok {
		return ix, nil
	}
	v, err, _ := m.sf.Do(slug, func() (any, error) {
		_, span := tracer.Start(ctx, "vectorindex.Load")
		defer span.End()

		locks := m.locksFor(slug)
		locks.rw.RLock()
		defer locks.rw.RUnlock()

		if ix, ok := m.cache.get(slug); ok {
			return ix, nil
		}
		man, err := m.store.readCurrent(slug)
		if err != nil {
			return nil, err
		}
		ix := &index{slug: slug, version: man.Version, passages: man.Passages}
		m.cache.put(slug, ix)
		m.log.Debug().Str("slug", slug).Str("version", man.Version).Int("passages", len(ix.passages)).Msg("index loaded")
		return ix, nil
	})
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("load index %s: %w", slug, err)
	}
	return v.(*index), nil
}

// Version reports the published version of slug.
func (m *Manager) Version(slug string) (string, error) {
	return m.store.current(slug)
}

// Evict drops slug from the in-memory cache; the next query reloads it.
func (m *Manager) Evict(slug string) {
	m.cache.remove(slug)
}

// Close releases cached indexes. Subsequent calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.closed.Store(true)
	m.cache.clear()
	return nil
}

// PartitionDir returns the index directory of slug.
func (m *Manager) PartitionDir(slug string) string {
	return filepath.Join(m.opts.IndexRoot, slug)
}
