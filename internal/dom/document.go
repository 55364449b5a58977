// Package dom is the page model the capture engine observes: an HTML tree with
// per-element runtime state (current value, listeners, focus), a synchronous
// event system, mutation observers and an unload hook.
//
// Everything in a Document runs on the caller's goroutine. A Document must not
// be shared between goroutines.
package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Rect is the rendered size of an element.
type Rect struct {
	Width  float64
	Height float64
}

// LayoutFunc reports the rendered box of an element. Returning ok == false
// falls back to the inline width/height of the element.
type LayoutFunc func(el *Element) (r Rect, ok bool)

// Mutation describes one structural change of the tree.
type Mutation struct {
	Added   []*Element
	Removed []*Element
}

// Option configures a Document.
type Option func(*Document)

// WithLayout installs a layout source used by Element.Visible.
func WithLayout(fn LayoutFunc) Option {
	return func(d *Document) { d.layout = fn }
}

type listenerEntry struct {
	id int
	fn Listener
}

type observerEntry struct {
	id int
	fn func([]Mutation)
}

// Document is a parsed page and its runtime state.
type Document struct {
	url    *url.URL
	rawURL string
	root   *goquery.Document
	layout LayoutFunc

	values    map[*html.Node]string
	listeners map[*html.Node]map[EventType][]listenerEntry
	observers []observerEntry
	unloadFns []func()
	unloaded  bool
	focused   *html.Node
	nextID    int
}

// Parse reads an HTML page served from pageURL.
func Parse(r io.Reader, pageURL string, opts ...Option) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	root, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{
		url:       u,
		rawURL:    pageURL,
		root:      root,
		values:    make(map[*html.Node]string),
		listeners: make(map[*html.Node]map[EventType][]listenerEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ParseString is Parse for an in-memory page.
func ParseString(page, pageURL string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(page), pageURL, opts...)
}

// URL returns the full page address.
func (d *Document) URL() string { return d.rawURL }

// Hostname returns the bare hostname of the page.
func (d *Document) Hostname() string { return d.url.Hostname() }

// Find returns the elements matching a CSS selector in document order.
// An invalid selector matches nothing.
func (d *Document) Find(selector string) []*Element {
	return d.wrapAll(d.root.Find(selector).Nodes)
}

// FindMatcher returns the elements accepted by m in document order.
func (d *Document) FindMatcher(m goquery.Matcher) []*Element {
	return d.wrapAll(d.root.FindMatcher(m).Nodes)
}

// FindWithin returns the descendants of el accepted by m in document order.
func (d *Document) FindWithin(el *Element, m goquery.Matcher) []*Element {
	if el == nil {
		return nil
	}
	return d.wrapAll(d.root.FindNodes(el.node).FindMatcher(m).Nodes)
}

// Body returns the body element, or nil for a fragment without one.
func (d *Document) Body() *Element {
	nodes := d.root.Find("body").Nodes
	if len(nodes) == 0 {
		return nil
	}
	return d.wrap(nodes[0])
}

// Focused returns the element holding focus, if any.
func (d *Document) Focused() *Element {
	if d.focused == nil {
		return nil
	}
	return d.wrap(d.focused)
}

// Observe registers fn for structural mutations and returns its canceller.
func (d *Document) Observe(fn func([]Mutation)) (stop func()) {
	d.nextID++
	id := d.nextID
	d.observers = append(d.observers, observerEntry{id: id, fn: fn})
	return func() {
		for i, o := range d.observers {
			if o.id == id {
				d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

// AppendHTML parses fragment in the context of parent, appends the result and
// notifies observers. It returns the top-level elements that were added.
func (d *Document) AppendHTML(parent *Element, fragment string) ([]*Element, error) {
	if parent == nil {
		return nil, errors.New("append html: nil parent")
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent.node)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	var added []*Element
	for _, n := range nodes {
		parent.node.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, d.wrap(n))
		}
	}
	d.notify(Mutation{Added: added})
	return added, nil
}

// Remove detaches el from the tree and notifies observers.
func (d *Document) Remove(el *Element) {
	if el == nil || el.node.Parent == nil {
		return
	}
	el.node.Parent.RemoveChild(el.node)
	if d.focused != nil && el.Contains(d.wrap(d.focused)) {
		d.focused = nil
	}
	d.notify(Mutation{Removed: []*Element{el}})
}

func (d *Document) notify(m Mutation) {
	observers := append([]observerEntry(nil), d.observers...)
	for _, o := range observers {
		o.fn([]Mutation{m})
	}
}

// OnUnload registers fn to run when the page unloads.
func (d *Document) OnUnload(fn func()) {
	d.unloadFns = append(d.unloadFns, fn)
}

// Unload runs the unload listeners synchronously, once. No listener or
// observer runs after Unload returns.
func (d *Document) Unload() {
	if d.unloaded {
		return
	}
	d.unloaded = true
	fns := d.unloadFns
	d.unloadFns = nil
	for _, fn := range fns {
		fn()
	}
	d.listeners = make(map[*html.Node]map[EventType][]listenerEntry)
	d.observers = nil
}

// Unloaded reports whether Unload has run.
func (d *Document) Unloaded() bool { return d.unloaded }

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{doc: d, node: n}
}

func (d *Document) wrapAll(nodes []*html.Node) []*Element {
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.wrap(n))
	}
	return out
}
