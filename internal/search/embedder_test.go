package search

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// ---------- Options + defaultConfig ----------
func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.dim != 512 || def.stopwords != nil {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithDim(64)(&cfg)
	if cfg.dim != 64 {
		t.Fatalf("WithDim failed: %d", cfg.dim)
	}
	WithDim(4)(&cfg) // no-op
	if cfg.dim != 64 {
		t.Fatalf("dim below 8 should be ignored")
	}

	WithStopwords([]string{"  The ", "", "An"})(&cfg)
	if _, ok := cfg.stopwords["the"]; !ok {
		t.Fatalf("WithStopwords failed (missing 'the'): %#v", cfg.stopwords)
	}
	if _, ok := cfg.stopwords["an"]; !ok {
		t.Fatalf("WithStopwords failed (missing 'an'): %#v", cfg.stopwords)
	}

	cfg2 := def
	WithStopwords(nil)(&cfg2)
	if cfg2.stopwords != nil {
		t.Fatalf("empty stopwords should remain nil")
	}
}

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(WithDim(64))
	if e.Dim() != 64 {
		t.Fatalf("Dim = %d", e.Dim())
	}
	vs, err := e.EmbedStrings(context.Background(), []string{"mitochondria cell energy", "mitochondria cell energy", "$$$"})
	if err != nil {
		t.Fatalf("EmbedStrings: %v", err)
	}
	if len(vs) != 3 || len(vs[0]) != 64 {
		t.Fatalf("unexpected shape: %d x %d", len(vs), len(vs[0]))
	}
	if !reflect.DeepEqual(vs[0], vs[1]) {
		t.Fatalf("same text should embed identically")
	}
	if n := dot(vs[0], vs[0]); math.Abs(n-1) > 1e-9 {
		t.Fatalf("expected unit vector, |v|^2=%v", n)
	}
	if n := dot(vs[2], vs[2]); n != 0 {
		t.Fatalf("tokenless text should be the zero vector, got %v", n)
	}
}

func TestHashEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewHashEmbedder(WithStopwords(DefaultStopwords))
	vs, err := e.EmbedStrings(context.Background(), []string{
		"what is the mitochondria",
		"The mitochondria is the powerhouse of the cell.",
		"Photosynthesis happens in chloroplasts of plant leaves.",
	})
	if err != nil {
		t.Fatalf("EmbedStrings: %v", err)
	}
	if dot(vs[0], vs[1]) <= dot(vs[0], vs[2]) {
		t.Fatalf("related passage should outscore unrelated one: %v vs %v", dot(vs[0], vs[1]), dot(vs[0], vs[2]))
	}
}

func TestHashEmbedder_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder().EmbedStrings(ctx, []string{"x"}); err == nil {
		t.Fatalf("expected context error")
	}
}

// ---------- Helpers ----------
func TestTokenize(t *testing.T) {
	if got := Tokenize("Hello HELLO 123 world abc123", nil); !reflect.DeepEqual(got, []string{"hello", "hello", "123", "world", "abc123"}) {
		t.Fatalf("Tokenize = %#v", got)
	}
	stop := map[string]struct{}{"hello": {}}
	if got := Tokenize("Hello world", stop); !reflect.DeepEqual(got, []string{"world"}) {
		t.Fatalf("Tokenize(stop) = %#v", got)
	}
	if Tokenize("$$$ !!!", nil) != nil {
		t.Fatalf("Tokenize should return nil when no words")
	}
	if Tokenize("hello", stop) != nil {
		t.Fatalf("Tokenize should return nil when every word is a stop word")
	}
	// stop != nil branch with no entries behaves like nil
	if got := Tokenize("alpha", map[string]struct{}{}); len(got) != 1 {
		t.Fatalf("expected 'alpha' with empty stop map: %#v", got)
	}
}

func TestNormalizeWhitespace_And_SplitParagraphs(t *testing.T) {
	if got := NormalizeWhitespace("alpha\t beta\r  gamma\nx"); got != "alpha beta gamma\nx" {
		t.Fatalf("NormalizeWhitespace failed: %q", got)
	}
	ps := SplitParagraphs("p1\n\n\n  \n p2 \n\np3")
	if !reflect.DeepEqual(ps, []string{"p1", "p2", "p3"}) {
		t.Fatalf("SplitParagraphs failed: %#v", ps)
	}
	if got := SplitParagraphs("  \n\n "); len(got) != 0 {
		t.Fatalf("blank input should yield no paragraphs: %#v", got)
	}
}
