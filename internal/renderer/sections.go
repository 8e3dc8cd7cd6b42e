package renderer

import (
	"errors"
	"fmt"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/pipeline"
)

// ErrSectionsShape is returned when a `sections` export is not an array of objects.
var ErrSectionsShape = errors.New("sections export must be an array of objects")

// Section is one entry of a document's `sections` export.
type Section struct {
	// Attributes is the full exported object, including title and id.
	Attributes *esm.Object
	Title      string
	ID         string
}

// Attribute returns a string-valued annotation such as "tag" or "label".
func (s Section) Attribute(key string) string {
	return s.Attributes.String(key)
}

// MarshalJSON emits the exported object unchanged.
func (s Section) MarshalJSON() ([]byte, error) {
	if s.Attributes == nil {
		return esm.NewObject().
			Set("title", esm.String(s.Title)).
			Set("id", esm.String(s.ID)).
			MarshalJSON()
	}
	return s.Attributes.MarshalJSON()
}

// SectionsFromValue converts an evaluated `sections` export.
func SectionsFromValue(v esm.Value) ([]Section, error) {
	arr, ok := v.(esm.Array)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrSectionsShape, esm.Serialize(v))
	}
	sections := make([]Section, 0, len(arr))
	for i, item := range arr {
		obj, ok := item.(*esm.Object)
		if !ok {
			return nil, fmt.Errorf("%w: element %d", ErrSectionsShape, i)
		}
		sections = append(sections, Section{
			Attributes: obj,
			Title:      obj.String("title"),
			ID:         obj.String("id"),
		})
	}
	return sections, nil
}

// SectionsFromPipeline converts extracted headings.
func SectionsFromPipeline(in []pipeline.Section) []Section {
	out := make([]Section, 0, len(in))
	for _, s := range in {
		out = append(out, Section{Attributes: s.Value(), Title: s.Title, ID: s.ID})
	}
	return out
}
