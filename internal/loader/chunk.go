package loader

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/persona-rag-backend/internal/search"
)

// ChunkConfig bounds passage size in runes.
type ChunkConfig struct {
	Size    int // maximum runes per passage
	Overlap int // runes carried over from the previous passage
}

func (c ChunkConfig) normalized() ChunkConfig {
	if c.Size <= 0 {
		c.Size = 1000
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		c.Overlap = 0
	}
	return c
}

type piece struct {
	text string
	sep  string // separator placed before text when it joins a passage
}

var sentenceRE = regexp.MustCompile(`[^.!?]*[.!?]+["')\]]*\s*|[^.!?]+$`)

// Chunk splits text into passages of at most cfg.Size runes. Paragraph
// boundaries are preferred, then sentence boundaries, then a hard wrap.
// Text shorter than cfg.Size comes back as a single passage.
func Chunk(text string, cfg ChunkConfig) []string {
	cfg = cfg.normalized()

	var pieces []piece
	for _, para := range search.SplitParagraphs(search.NormalizeWhitespace(text)) {
		sep := "\n\n"
		for _, p := range splitParagraph(para, cfg.Size) {
			pieces = append(pieces, piece{text: p, sep: sep})
			sep = " "
		}
	}
	if len(pieces) == 0 {
		return nil
	}

	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, strings.TrimSpace(cur.String()))
		}
		cur.Reset()
		n = 0
	}
	for _, p := range pieces {
		pl := utf8.RuneCountInString(p.text)
		sl := utf8.RuneCountInString(p.sep)
		if n > 0 && n+sl+pl > cfg.Size {
			prev := cur.String()
			flush()
			if tail := tailRunes(prev, cfg.Overlap); tail != "" && utf8.RuneCountInString(tail)+sl+pl <= cfg.Size {
				cur.WriteString(tail)
				n = utf8.RuneCountInString(tail)
			}
		}
		if n > 0 {
			cur.WriteString(p.sep)
			n += sl
		}
		cur.WriteString(p.text)
		n += pl
	}
	flush()
	return out
}

// splitParagraph returns para unchanged when it fits, otherwise its sentences,
// hard-wrapping any sentence that is still too long.
func splitParagraph(para string, size int) []string {
	if utf8.RuneCountInString(para) <= size {
		return []string{para}
	}
	var out []string
	for _, s := range sentenceRE.FindAllString(para, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if utf8.RuneCountInString(s) <= size {
			out = append(out, s)
			continue
		}
		out = append(out, hardWrap(s, size)...)
	}
	return out
}

func hardWrap(s string, size int) []string {
	r := []rune(s)
	out := make([]string, 0, len(r)/size+1)
	for len(r) > 0 {
		n := size
		if n > len(r) {
			n = len(r)
		}
		if part := strings.TrimSpace(string(r[:n])); part != "" {
			out = append(out, part)
		}
		r = r[n:]
	}
	return out
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[len(r)-n:]))
}
