// Package search holds the text primitives shared by ingestion and retrieval:
// a Unicode-aware tokenizer, paragraph splitting, markdown table flattening,
// and a deterministic feature-hashing embedder.
//
// The embedder implements eino's embedding.Embedder so it can stand in for a
// remote embedding model in development, offline deployments and tests:
//
//   - No network and no state: the same text always maps to the same vector.
//   - Vectors are L2-normalized, so a dot product is a cosine similarity.
//   - Tokens are hashed into Dim buckets with a sign bit (the "hashing trick").
//   - Stop words are removed before hashing when configured.
package search

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudwego/eino/components/embedding"
)

// DefaultStopwords is a small English stop list. It keeps function words from
// dominating short passages.
var DefaultStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "do", "does", "for",
	"from", "has", "have", "how", "i", "in", "is", "it", "its", "me", "my", "of",
	"on", "or", "so", "that", "the", "their", "this", "to", "was", "we", "what",
	"when", "where", "which", "who", "why", "will", "with", "you", "your",
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	dim       int
	stopwords map[string]struct{}
}

func defaultConfig() config {
	return config{dim: 512}
}

// WithDim sets the vector size. Values below 8 are ignored.
func WithDim(n int) Option {
	return func(c *config) {
		if n >= 8 {
			c.dim = n
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// ----------------------------------------------------------------------------
// Embedder

// HashEmbedder maps text to a fixed-size vector by hashing its tokens.
// It is immutable after construction and safe for concurrent use.
type HashEmbedder struct {
	cfg config
}

var _ embedding.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder builds an embedder. Without options it uses 512 dimensions
// and no stop words.
func NewHashEmbedder(opts ...Option) *HashEmbedder {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &HashEmbedder{cfg: cfg}
}

// Dim reports the length of every vector the embedder returns.
func (e *HashEmbedder) Dim() int { return e.cfg.dim }

// EmbedStrings returns one vector per input text. A text without tokens maps
// to the zero vector. Cancellation is checked between texts.
func (e *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float64 {
	v := make([]float64, e.cfg.dim)
	words := Tokenize(text, e.cfg.stopwords)
	for _, w := range words {
		h := xxhash.Sum64String(w)
		idx := int(h % uint64(e.cfg.dim))
		if h>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// Tokenize lowercases s and returns its words in order, minus stop words.
// Repeated words are kept so term frequency survives hashing.
func Tokenize(s string, stop map[string]struct{}) []string {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := words[:0]
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeWhitespace collapses runs of spaces, tabs and carriage returns
// into one space. Newlines are preserved.
func NormalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var paraSplitRE = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs splits on blank lines and drops empty paragraphs.
func SplitParagraphs(s string) []string {
	chunks := paraSplitRE.Split(s, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
