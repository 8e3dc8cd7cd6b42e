// Package hast models a parsed content document as a tree of HTML-shaped nodes.
//
// The tree shape is fixed once the markup parser has produced it. Pipeline stages
// rewrite node properties and text values in place but never add, remove or
// reorder nodes, with the single exception of top-level ESM nodes appended by the
// export injector.
package hast

import (
	"slices"
	"strings"
)

// Kind identifies what a node represents.
type Kind uint8

// Node kinds.
const (
	KindRoot Kind = iota
	KindElement
	KindText
	KindRaw
	KindESM
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindRaw:
		return "raw"
	case KindESM:
		return "esm"
	default:
		return "unknown"
	}
}

// Node is a single entry in the document tree.
//
// Element nodes carry a Tag and Props. Text, raw and ESM nodes carry Value.
// Data holds sidecar values that never render (frontmatter on the root, the
// parsed program on ESM nodes).
type Node struct {
	Props    *Properties
	Data     map[string]any
	Tag      string
	Value    string
	Children []*Node
	Kind     Kind
}

// Root returns a root node holding children.
func Root(children ...*Node) *Node {
	return &Node{Kind: KindRoot, Children: children}
}

// Element returns an element node. props may be nil.
func Element(tag string, props *Properties, children ...*Node) *Node {
	return &Node{Kind: KindElement, Tag: tag, Props: props, Children: children}
}

// Text returns a text node.
func Text(value string) *Node {
	return &Node{Kind: KindText, Value: value}
}

// Raw returns a node whose value is emitted as markup without escaping.
func Raw(value string) *Node {
	return &Node{Kind: KindRaw, Value: value}
}

// ESM returns a top-level module statement node (`export`/`import`).
func ESM(value string) *Node {
	return &Node{Kind: KindESM, Value: value}
}

// IsElement reports whether n is an element with one of the given tags.
// With no tags it reports whether n is any element.
func (n *Node) IsElement(tags ...string) bool {
	if n == nil || n.Kind != KindElement {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	return slices.Contains(tags, n.Tag)
}

// Prop returns a string property, or "" when absent or not a string.
func (n *Node) Prop(key string) string {
	if n == nil {
		return ""
	}
	return n.Props.String(key)
}

// HasProp reports whether the property is set.
func (n *Node) HasProp(key string) bool {
	if n == nil {
		return false
	}
	return n.Props.Has(key)
}

// SetProp sets a property, allocating the property map on first use.
func (n *Node) SetProp(key string, value any) {
	if n.Props == nil {
		n.Props = NewProperties()
	}
	n.Props.Set(key, value)
}

// SetData stores a sidecar value on the node.
func (n *Node) SetData(key string, value any) {
	if n.Data == nil {
		n.Data = make(map[string]any)
	}
	n.Data[key] = value
}

// FirstChild returns the first child or nil.
func (n *Node) FirstChild() *Node {
	if n == nil || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// HeadingRank returns 1-6 for h1-h6 elements and 0 otherwise.
func HeadingRank(n *Node) int {
	if !n.IsElement() || len(n.Tag) != 2 || n.Tag[0] != 'h' {
		return 0
	}
	if r := int(n.Tag[1] - '0'); r >= 1 && r <= 6 {
		return r
	}
	return 0
}

// ToString concatenates the text of every descendant text node.
func ToString(n *Node) string {
	if n == nil {
		return ""
	}
	if n.Kind == KindText {
		return n.Value
	}
	var b strings.Builder
	writeText(&b, n)
	return b.String()
}

func writeText(b *strings.Builder, n *Node) {
	for _, child := range n.Children {
		if child.Kind == KindText {
			b.WriteString(child.Value)
			continue
		}
		writeText(b, child)
	}
}

// ClassList returns the className property as a list of tokens.
// It accepts either a []string or a space-delimited string.
func ClassList(n *Node) []string {
	if n == nil {
		return nil
	}
	v, ok := n.Props.Get("className")
	if !ok {
		return nil
	}
	switch classes := v.(type) {
	case []string:
		return classes
	case string:
		return strings.Fields(classes)
	default:
		return nil
	}
}
