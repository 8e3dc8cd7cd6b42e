package slug

import "strconv"

// Fallback is the base used for headings whose text has nothing to slugify.
const Fallback = "section"

// Counter hands out unique slugs within one document. Repeats of the same base
// slug are numbered x, x-1, x-2 in the order they are requested.
//
// A Counter is not safe for concurrent use; create one per document.
type Counter struct {
	seen map[string]int
}

// NewCounter returns an empty registry.
func NewCounter() *Counter {
	return &Counter{seen: make(map[string]int)}
}

// Slug slugifies text and disambiguates it against earlier calls.
func (c *Counter) Slug(text string) string {
	base := Slugify(text)
	if base == "" {
		base = Fallback
	}
	n := c.seen[base]
	c.seen[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}

// Count returns how many times base has been handed out.
func (c *Counter) Count(base string) int {
	return c.seen[base]
}
