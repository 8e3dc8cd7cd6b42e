package hast

import "fmt"

// Properties is an insertion-ordered attribute map.
// Reads on a nil *Properties behave like an empty map.
type Properties struct {
	values map[string]any
	keys   []string
}

// NewProperties returns an empty property map.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]any)}
}

// Props builds a property map from alternating key/value pairs.
func Props(kv ...any) *Properties {
	if len(kv)%2 != 0 {
		panic("hast.Props requires key/value pairs")
	}
	p := NewProperties()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("hast.Props key %v is not a string", kv[i]))
		}
		p.Set(key, kv[i+1])
	}
	return p
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// String returns the value under key when it is a string.
func (p *Properties) String(key string) string {
	v, ok := p.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Has reports whether key is present.
func (p *Properties) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Set stores value under key, keeping the original position of existing keys.
func (p *Properties) Set(key string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Delete removes key.
func (p *Properties) Delete(key string) {
	if p == nil {
		return
	}
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}
