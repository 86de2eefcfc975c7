// Package static implements dom.Page over a parsed HTML document.
// It backs the offline `extract` command (saved feed pages) and the
// test fakes for the extractor and harvester.
package static

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"xharvest/internal/dom"
)

// Page is an in-memory document. The On* hooks let tests script page
// behavior (a clicked button disappearing, a scroll appending cards);
// all hooks are optional.
type Page struct {
	doc        *goquery.Document
	generation int
	height     float64

	NavigatedURL string

	OnNavigate func(url string) error
	OnClick    func(el dom.Element) error
	OnHover    func(el dom.Element) error
	OnScroll   func(p *Page) error
}

// Parse builds a Page from an HTML stream.
func Parse(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Page{doc: doc, height: 1}, nil
}

// ParseString builds a Page from an HTML string.
func ParseString(s string) (*Page, error) {
	return Parse(strings.NewReader(s))
}

// ParseFile builds a Page from a saved HTML file.
func ParseFile(path string) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// SetHTML replaces the document, invalidating every element handed
// out so far. Handles obtained before the swap report dom.ErrStale,
// mirroring a live page re-render.
func (p *Page) SetHTML(s string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	p.doc = doc
	p.generation++
	return nil
}

// SetScrollHeight sets the value reported by ScrollHeight.
func (p *Page) SetScrollHeight(h float64) { p.height = h }

func (p *Page) Navigate(url string) error {
	p.NavigatedURL = url
	if p.OnNavigate != nil {
		return p.OnNavigate(url)
	}
	return nil
}

func (p *Page) Find(selector string) (dom.Element, error) {
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		return nil, dom.ErrNoSuchElement
	}
	return p.element(sel.Get(0)), nil
}

func (p *Page) FindAll(selector string) ([]dom.Element, error) {
	return p.elements(p.doc.Find(selector)), nil
}

func (p *Page) ScrollToBottom() error {
	if p.OnScroll != nil {
		return p.OnScroll(p)
	}
	return nil
}

func (p *Page) ScrollHeight() (float64, error) { return p.height, nil }

func (p *Page) element(n *html.Node) *Element {
	return &Element{page: p, node: n, generation: p.generation}
}

func (p *Page) elements(sel *goquery.Selection) []dom.Element {
	out := make([]dom.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, p.element(s.Get(0)))
	})
	return out
}

// Element is a handle to one node of a Page. Identity is the node
// pointer: re-parsing the document yields fresh handles even for
// byte-identical markup, which is exactly how a virtualized feed
// behaves.
type Element struct {
	page       *Page
	node       *html.Node
	generation int
}

func (e *Element) sel() (*goquery.Selection, error) {
	if e.generation != e.page.generation {
		return nil, dom.ErrStale
	}
	return e.page.doc.FindNodes(e.node), nil
}

func (e *Element) Find(selector string) (dom.Element, error) {
	s, err := e.sel()
	if err != nil {
		return nil, err
	}
	found := s.Find(selector)
	if found.Length() == 0 {
		return nil, dom.ErrNoSuchElement
	}
	return e.page.element(found.Get(0)), nil
}

func (e *Element) FindAll(selector string) ([]dom.Element, error) {
	s, err := e.sel()
	if err != nil {
		return nil, err
	}
	return e.page.elements(s.Find(selector)), nil
}

func (e *Element) Children(selector string) ([]dom.Element, error) {
	s, err := e.sel()
	if err != nil {
		return nil, err
	}
	return e.page.elements(s.ChildrenFiltered(selector)), nil
}

func (e *Element) Parent() (dom.Element, error) {
	s, err := e.sel()
	if err != nil {
		return nil, err
	}
	parent := s.Parent()
	if parent.Length() == 0 {
		return nil, dom.ErrNoSuchElement
	}
	return e.page.element(parent.Get(0)), nil
}

func (e *Element) Tag() (string, error) {
	if e.generation != e.page.generation {
		return "", dom.ErrStale
	}
	return e.node.Data, nil
}

func (e *Element) Text() (string, error) {
	s, err := e.sel()
	if err != nil {
		return "", err
	}
	return s.Text(), nil
}

func (e *Element) Attr(name string) (string, bool, error) {
	if e.generation != e.page.generation {
		return "", false, dom.ErrStale
	}
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

func (e *Element) Click() error {
	if e.generation != e.page.generation {
		return dom.ErrStale
	}
	if e.page.OnClick != nil {
		return e.page.OnClick(e)
	}
	return nil
}

func (e *Element) Hover() error {
	if e.generation != e.page.generation {
		return dom.ErrStale
	}
	if e.page.OnHover != nil {
		return e.page.OnHover(e)
	}
	return nil
}

func (e *Element) ScrollIntoView() error {
	if e.generation != e.page.generation {
		return dom.ErrStale
	}
	return nil
}

// Y approximates vertical position by document order: a node further
// down the document reports a larger value. Sufficient for the
// boundary-marker comparison, which only needs relative order.
func (e *Element) Y() (float64, error) {
	if e.generation != e.page.generation {
		return 0, dom.ErrStale
	}
	index := 0
	found := false
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n == e.node {
			found = true
			return
		}
		if n.Type == html.ElementNode {
			index++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, root := range e.page.doc.Nodes {
		walk(root)
	}
	return float64(index), nil
}

func (e *Element) ID() string {
	return fmt.Sprintf("%d:%p", e.generation, e.node)
}
