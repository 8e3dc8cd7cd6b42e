package pipeline

import (
	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/hast"
)

// Section describes one h2 heading.
type Section struct {
	Annotation *esm.Object
	Title      string
	ID         string
}

// Value returns the section as {title, id, ...annotation}. Annotation keys
// override title and id.
func (s Section) Value() *esm.Object {
	obj := esm.NewObject().
		Set("title", esm.String(s.Title)).
		Set("id", esm.String(s.ID))
	return obj.Merge(s.Annotation)
}

// Sections lists every h2 in document order, including headings nested in
// other elements. Duplicates are kept.
func Sections(tree *hast.Node) []Section {
	var sections []Section
	_ = hast.Walk(tree, hast.VisitorFuncs{
		Element: func(el, _ *hast.Node) (hast.WalkStatus, error) {
			if el.Tag != "h2" {
				return hast.WalkContinue, nil
			}
			section := Section{Title: hast.ToString(el), ID: el.Prop("id")}
			if v, ok := el.Props.Get("annotation"); ok {
				if obj, ok := v.(*esm.Object); ok {
					section.Annotation = obj
				}
			}
			sections = append(sections, section)
			return hast.WalkSkipChildren, nil
		},
	})
	return sections
}

// SectionsValue converts sections to an array literal value.
func SectionsValue(sections []Section) esm.Array {
	arr := make(esm.Array, 0, len(sections))
	for _, s := range sections {
		arr = append(arr, s.Value())
	}
	return arr
}

// SectionExports is the binding function producing the `sections` export.
func SectionExports(doc *Document) (*Bindings, error) {
	return NewBindings().Set("sections", esm.Serialize(SectionsValue(Sections(doc.Tree)))), nil
}
