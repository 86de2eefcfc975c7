// Package dom defines the minimal browser capability surface the
// extractor and harvester are written against. Two implementations
// exist: internal/browser drives a live Chrome session over CDP, and
// internal/dom/static walks parsed HTML for offline extraction and
// tests.
package dom

import (
	"errors"
	"strings"
)

// ErrNoSuchElement is returned when a selector matches nothing.
var ErrNoSuchElement = errors.New("no such element")

// ErrStale is returned when an element reference has been invalidated
// by the page re-rendering underneath it.
var ErrStale = errors.New("stale element reference")

// Element is an opaque handle to one rendered node.
//
// ID is a per-render identity: stable for as long as the underlying
// node exists, fresh if the page discards and re-creates the node.
type Element interface {
	// Find returns the first descendant matching the CSS selector,
	// or ErrNoSuchElement.
	Find(selector string) (Element, error)
	// FindAll returns all descendants matching the CSS selector.
	// An empty result is not an error.
	FindAll(selector string) ([]Element, error)
	// Children returns direct children matching the CSS selector,
	// in document order.
	Children(selector string) ([]Element, error)
	// Parent returns the parent element, or ErrNoSuchElement at the root.
	Parent() (Element, error)

	Tag() (string, error)
	Text() (string, error)
	// Attr returns the attribute value; ok is false when the
	// attribute is absent.
	Attr(name string) (value string, ok bool, err error)

	Click() error
	Hover() error
	ScrollIntoView() error

	// Y is the vertical position of the element on the page.
	Y() (float64, error)

	ID() string
}

// Page is a navigable document.
type Page interface {
	Navigate(url string) error
	Find(selector string) (Element, error)
	FindAll(selector string) ([]Element, error)
	ScrollToBottom() error
	ScrollHeight() (float64, error)
}

// FindByText returns the first element matching selector whose exact
// text content equals text. CSS has no text predicate, so the filter
// runs here over the interface.
func FindByText(root Element, selector, text string) (Element, error) {
	els, err := root.FindAll(selector)
	if err != nil {
		return nil, err
	}
	return firstByText(els, text, false)
}

// FindByTextOnPage is FindByText rooted at the document.
func FindByTextOnPage(p Page, selector, text string) (Element, error) {
	els, err := p.FindAll(selector)
	if err != nil {
		return nil, err
	}
	return firstByText(els, text, false)
}

// FindByTextContains returns the first element matching selector whose
// text content contains substr.
func FindByTextContains(root Element, selector, substr string) (Element, error) {
	els, err := root.FindAll(selector)
	if err != nil {
		return nil, err
	}
	return firstByText(els, substr, true)
}

// FilterByTextContains keeps the elements whose text contains substr,
// preserving order. Elements whose text cannot be read are skipped.
func FilterByTextContains(els []Element, substr string) []Element {
	var out []Element
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			continue
		}
		if strings.Contains(t, substr) {
			out = append(out, el)
		}
	}
	return out
}

func firstByText(els []Element, want string, contains bool) (Element, error) {
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			if errors.Is(err, ErrStale) {
				return nil, err
			}
			continue
		}
		if (contains && strings.Contains(t, want)) || (!contains && t == want) {
			return el, nil
		}
	}
	return nil, ErrNoSuchElement
}
