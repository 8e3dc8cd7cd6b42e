package search

// Record is one entry of the client-side search.json index.
type Record struct {
	URL         string `json:"url"`
	Route       string `json:"route"`
	Title       string `json:"title"`
	Section     string `json:"section,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Records flattens the index into one record per page followed by one per
// section.
func (i *Index) Records() []Record {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]Record, 0, len(i.docs))
	for _, d := range i.docs {
		out = append(out, Record{
			URL:         d.URL,
			Route:       d.Route,
			Title:       d.Title,
			Description: d.Description,
			Text:        d.Text,
		})
		for _, s := range d.Sections {
			out = append(out, Record{
				URL:     d.URL + "#" + s.ID,
				Route:   d.Route,
				Title:   d.Title,
				Section: s.Title,
			})
		}
	}
	return out
}
