package pipeline

import (
	"errors"
	"fmt"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/hast"
	"github.com/sirily11/msbd5017-docs/internal/markup"
)

// BindingFunc computes the exports for a transformed document.
type BindingFunc func(doc *Document) (*Bindings, error)

// Exports appends `export const <name> = <literal>` nodes to the tree root for
// every binding the document does not already author. A `frontmatter` binding
// holding the document's frontmatter as JSON is always part of the set.
type Exports struct {
	Bindings BindingFunc
}

// Name implements Stage.
func (Exports) Name() string { return "exports" }

// Apply implements Stage.
func (e Exports) Apply(doc *Document) error {
	bindings := NewBindings()
	if e.Bindings != nil {
		computed, err := e.Bindings(doc)
		if err != nil {
			return fmt.Errorf("compute exports: %w", err)
		}
		for _, name := range computed.Names() {
			source, _ := computed.Get(name)
			bindings.Set(name, source)
		}
	}
	if _, ok := bindings.Get("frontmatter"); !ok {
		bindings.Set("frontmatter", esm.JSON(markup.Frontmatter(doc.Tree)))
	}
	doc.Bindings = bindings

	for _, name := range bindings.Names() {
		if authored(doc.Tree, name) {
			continue
		}
		literal, _ := bindings.Get(name)
		source := "export const " + name + " = " + literal
		binding, err := esm.ParseBinding(source)
		if err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		node := hast.ESM(source)
		node.SetData(markup.DataBinding, binding)
		doc.Tree.Children = append(doc.Tree.Children, node)
	}
	return nil
}

func authored(root *hast.Node, name string) bool {
	for _, child := range root.Children {
		if child.Kind == hast.KindESM && esm.Exports(child.Value, name) {
			return true
		}
	}
	return false
}

// ErrNotExported is returned by Exported when no top-level binding declares a name.
var ErrNotExported = errors.New("not exported")

// Exported evaluates the literal bound to name by a top-level ESM node,
// authored or injected.
func Exported(root *hast.Node, name string) (esm.Value, error) {
	for _, child := range root.Children {
		if child.Kind != hast.KindESM {
			continue
		}
		binding, ok := child.Data[markup.DataBinding].(*esm.Binding)
		if !ok {
			continue
		}
		for _, declared := range binding.Names {
			if declared == name {
				return binding.Lookup(name)
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotExported)
}
