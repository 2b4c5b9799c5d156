// Package slug derives the storage partition key for a persona from its
// display name.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	invalidRE = regexp.MustCompile(`[^\w\s-]`)
	dashRE    = regexp.MustCompile(`[-\s]+`)
)

// Make lowercases name, folds accents to ASCII, drops characters that are not
// letters, digits, underscores, spaces or hyphens, and joins words with single
// hyphens. It returns "" when nothing usable remains.
//
//	Make("Bio Tutor")     == "bio-tutor"
//	Make("  Café  Noir!") == "cafe-noir"
func Make(name string) string {
	s := foldASCII(name)
	s = invalidRE.ReplaceAllString(strings.ToLower(s), "")
	s = dashRE.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}

// foldASCII decomposes s, strips combining marks and drops anything still
// outside ASCII.
func foldASCII(s string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}
