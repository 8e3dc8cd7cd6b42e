package pipeline

// Bindings is an ordered mapping of export name to literal source.
// Setting an existing name replaces its source and keeps its position.
type Bindings struct {
	sources map[string]string
	names   []string
}

// NewBindings returns an empty binding set.
func NewBindings() *Bindings {
	return &Bindings{sources: make(map[string]string)}
}

// Set stores the literal source for name.
func (b *Bindings) Set(name, source string) *Bindings {
	if b.sources == nil {
		b.sources = make(map[string]string)
	}
	if _, ok := b.sources[name]; !ok {
		b.names = append(b.names, name)
	}
	b.sources[name] = source
	return b
}

// Get returns the literal source for name.
func (b *Bindings) Get(name string) (string, bool) {
	if b == nil {
		return "", false
	}
	s, ok := b.sources[name]
	return s, ok
}

// Names returns the names in insertion order.
func (b *Bindings) Names() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.names...)
}

// Len returns the number of bindings.
func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return len(b.names)
}
