// Package driver abstracts the browser-automation backend behind a small
// interface: load a URL and query the current document by CSS selector.
//
// Three backends are available: rod (default), chromedp, and a static HTTP
// driver that parses server-rendered HTML without a browser.
package driver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/use-agent/browserkit/config"
)

// Driver controls one page.
//
// FindElements returns an empty slice, not an error, when nothing matches.
// A selector the backend cannot parse yields an error wrapping
// ErrInvalidSelector. A Driver is not safe for concurrent use.
type Driver interface {
	Name() string
	Navigate(ctx context.Context, url string) error
	FindElements(ctx context.Context, selector string) ([]Element, error)
	Close() error
}

// Element is a handle to a DOM element returned by FindElements.
type Element interface {
	// Attribute returns the named attribute. URL-valued attributes such as
	// href are resolved against the document base URL (the first <base href>,
	// else the page URL), the way a browser reports the DOM property. ok is false when the element has no such attribute.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)

	// Text returns the element's text content with surrounding whitespace
	// trimmed.
	Text(ctx context.Context) (string, error)
}

// ErrInvalidSelector is wrapped by FindElements when the backend rejects the
// selector's syntax. Browsers and the static driver accept different CSS
// dialects, so validity is decided by the backend in use.
var ErrInvalidSelector = errors.New("invalid css selector")

// selectorSyntaxMarkers are the messages Chrome reports for an unparsable
// selector: the DOMException thrown by querySelectorAll (rod evaluates JS)
// and the CDP error from DOM.querySelectorAll (chromedp).
var selectorSyntaxMarkers = []string{
	"is not a valid selector",
	"DOM Error while querying",
}

// classifyQueryError wraps err with ErrInvalidSelector when it reports a
// selector syntax error.
func classifyQueryError(backend, selector string, err error) error {
	msg := err.Error()
	for _, m := range selectorSyntaxMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%s: %w %q: %v", backend, ErrInvalidSelector, selector, err)
		}
	}
	return fmt.Errorf("%s: query %q: %w", backend, selector, err)
}

// New creates the backend named by cfg.Driver.
func New(cfg config.BrowserConfig) (Driver, error) {
	switch cfg.Driver {
	case "", "rod":
		return NewRod(cfg)
	case "chromedp":
		return NewChromedp(cfg)
	case "http":
		return NewHTTP(cfg), nil
	default:
		return nil, fmt.Errorf("driver: unknown backend %q", cfg.Driver)
	}
}

// urlAttributes are reported as absolute URLs.
var urlAttributes = map[string]bool{
	"href":   true,
	"src":    true,
	"action": true,
}

// resolveReference resolves ref against base when name is URL-valued.
// Unparsable references are returned unchanged.
func resolveReference(base *url.URL, name, ref string) string {
	if base == nil || !urlAttributes[strings.ToLower(name)] {
		return ref
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
