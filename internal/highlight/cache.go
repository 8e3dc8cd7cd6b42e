package highlight

import (
	"sync"
)

// Factory builds a tokenizer for a theme.
type Factory func(theme string) (Tokenizer, error)

// Cache builds at most one tokenizer per theme and hands the same instance to
// every caller. It is safe for concurrent use.
type Cache struct {
	factory Factory
	mu      sync.Mutex
	byTheme map[string]Tokenizer
}

// NewCache returns a cache that builds tokenizers with factory.
// A nil factory builds Chroma tokenizers.
func NewCache(factory Factory) *Cache {
	if factory == nil {
		factory = func(theme string) (Tokenizer, error) {
			return NewChroma(theme)
		}
	}
	return &Cache{factory: factory, byTheme: make(map[string]Tokenizer)}
}

// Get returns the tokenizer for theme, building it on first use.
// A failed build is not cached.
func (c *Cache) Get(theme string) (Tokenizer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tok, ok := c.byTheme[theme]; ok {
		return tok, nil
	}
	tok, err := c.factory(theme)
	if err != nil {
		return nil, err
	}
	c.byTheme[theme] = tok
	return tok, nil
}

var (
	defaultOnce  sync.Once
	defaultCache *Cache
)

// Default returns the process-wide cache.
func Default() *Cache {
	defaultOnce.Do(func() {
		defaultCache = NewCache(nil)
	})
	return defaultCache
}
