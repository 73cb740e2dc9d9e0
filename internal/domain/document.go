package domain

import "context"

// Element is a snapshot of a DOM node taken at query time: its visible text
// and attribute map. The href attribute is always absolute when present.
type Element struct {
	Text  string
	Attrs map[string]string
}

// Attr returns the named attribute and whether it was present.
func (e Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// DocumentProvider is the page-rendering and navigation layer. The crawl
// surface behind it is a single live document: Navigate and Advance replace or
// mutate the whole document state, so callers must serialize access — no two
// pipeline stages may drive the provider concurrently.
type DocumentProvider interface {
	// Navigate loads the given URL and waits for the document to settle.
	Navigate(ctx context.Context, url string) error
	// QuerySelectorAll returns snapshots of every element matching the CSS
	// selector in the current document.
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	// Advance triggers loading of more content on the current document
	// (scroll / paginate / load-more).
	Advance(ctx context.Context) error
}
