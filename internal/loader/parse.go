package loader

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/tbourn/persona-rag-backend/internal/search"
)

// ErrUnsupported marks content the loader cannot treat as text.
var ErrUnsupported = errors.New("unsupported document")

// Parse extracts plain text from a file's bytes, choosing the parser by the
// extension of name.
func Parse(name string, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", ErrUnsupported
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return parseMarkdown(data)
	case ".html", ".htm":
		return parseHTML(data)
	default:
		if bytes.IndexByte(data, 0) >= 0 {
			return "", ErrUnsupported
		}
		return string(data), nil
	}
}

func parseMarkdown(data []byte) (string, error) {
	out, err := search.FlattenMarkdownTables(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// parseHTML drops non-content elements and converts the body to markdown so
// headings and lists keep their paragraph boundaries for chunking.
func parseHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, noscript, iframe").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	html, err := body.Html()
	if err != nil {
		return "", err
	}

	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" && !strings.Contains(text, title) {
		text = title + "\n\n" + text
	}
	return text, nil
}
