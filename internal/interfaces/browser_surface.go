package interfaces

import (
	"context"
	"time"
)

// Element is a snapshot of one node matched by a selector on the rendered page.
// Selector and Index together address the node for later interaction.
type Element struct {
	Selector string
	Index    int
	Text     string
	HTML     string
	Attrs    map[string]string
}

// Attr returns the named attribute or "" when absent
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// BrowserSurface is the remote automation surface the harvesting engine drives.
// Absence of an element is never an error: Query returns an empty slice and
// WaitFor returns false. Errors are reserved for surface faults (timeouts,
// stale handles, a dead browser).
type BrowserSurface interface {
	// Navigate loads url and waits for it to settle
	Navigate(ctx context.Context, url string) error

	// Reload performs a full reload of the current page
	Reload(ctx context.Context) error

	// Markup returns the current rendered document
	Markup(ctx context.Context) (string, error)

	// Query returns every element matching the CSS selector in document order
	Query(ctx context.Context, selector string) ([]Element, error)

	// Click simulates a user click on a previously queried element
	Click(ctx context.Context, element Element) error

	// WaitFor blocks until selector matches or timeout elapses
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	// Close releases the underlying browser
	Close() error
}
