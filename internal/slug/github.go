package slug

import (
	"strconv"
	"strings"
	"unicode"
)

// GitHub produces GitHub-style heading anchors: lowercase, punctuation removed,
// each space replaced with a dash. Results never collide with each other or with
// ids passed to Reserve.
type GitHub struct {
	occurrences map[string]int
}

// NewGitHub returns an empty slugger.
func NewGitHub() *GitHub {
	return &GitHub{occurrences: make(map[string]int)}
}

// Reserve marks id as taken.
func (g *GitHub) Reserve(id string) {
	if _, ok := g.occurrences[id]; !ok {
		g.occurrences[id] = 0
	}
}

// Slug returns a unique anchor for text.
func (g *GitHub) Slug(text string) string {
	original := GitHubSlug(text)
	result := original
	for {
		if _, taken := g.occurrences[result]; !taken {
			break
		}
		g.occurrences[original]++
		result = original + "-" + strconv.Itoa(g.occurrences[original])
	}
	g.occurrences[result] = 0
	return result
}

// GitHubSlug converts text without any deduplication.
func GitHubSlug(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
