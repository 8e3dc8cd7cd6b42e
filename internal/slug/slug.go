// Package slug turns heading text into URL-safe anchor identifiers.
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
	contraction  = regexp.MustCompile(`([A-Za-z0-9]+)['’]([ts])(\s|$)`)
	camelAcronym = regexp.MustCompile(`([A-Z]{2,})([0-9]+)`)
	camelTail    = regexp.MustCompile(`([a-z0-9]+)([A-Z]{2,})`)
	camelWord    = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	camelRun     = regexp.MustCompile(`([A-Z]+)([A-Z][a-rt-z0-9]+)`)

	replacements = strings.NewReplacer(
		"&", " and ",
		"ß", "ss",
		"æ", "ae", "Æ", "AE",
		"œ", "oe", "Œ", "OE",
		"ø", "o", "Ø", "O",
		"đ", "d", "Đ", "D",
		"ł", "l", "Ł", "L",
		"þ", "th", "Þ", "TH",
	)
)

// Slugify returns a lowercase, dash-separated ASCII token for text.
// Diacritics are folded, camelCase is split, and "&" reads as "and".
// Text with no letters or digits yields "".
func Slugify(text string) string {
	s := replacements.Replace(text)
	s = fold(s)
	s = contraction.ReplaceAllString(s, "$1$2$3")
	s = decamelize(s)
	s = strings.ToLower(s)

	var b strings.Builder
	pendingDash := false
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func decamelize(s string) string {
	s = camelAcronym.ReplaceAllString(s, "$1 $2")
	s = camelTail.ReplaceAllString(s, "$1 $2")
	s = camelWord.ReplaceAllString(s, "$1 $2")
	return camelRun.ReplaceAllString(s, "$1 $2")
}
