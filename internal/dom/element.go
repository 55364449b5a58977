package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Element is a handle to a node of a Document. Handles are cheap and not
// unique: compare them with Is.
type Element struct {
	doc  *Document
	node *html.Node
}

// Node returns the underlying HTML node.
func (e *Element) Node() *html.Node { return e.node }

// Document returns the owning document.
func (e *Element) Document() *Document { return e.doc }

// Tag returns the lower-case tag name.
func (e *Element) Tag() string { return strings.ToLower(e.node.Data) }

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the named attribute or def when it is absent.
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// Type returns the lower-case input type; inputs without one are "text".
func (e *Element) Type() string {
	t := strings.ToLower(strings.TrimSpace(e.AttrOr("type", "")))
	if t == "" && e.Tag() == "input" {
		return "text"
	}
	return t
}

// Label is a short human description used in logs.
func (e *Element) Label() string {
	if e == nil {
		return ""
	}
	if v := e.AttrOr("name", ""); v != "" {
		return e.Tag() + "[name=" + v + "]"
	}
	if v := e.AttrOr("id", ""); v != "" {
		return e.Tag() + "#" + v
	}
	return e.Tag()
}

// Value returns the current value of a form control. Until something sets it,
// this is the value attribute from the markup.
func (e *Element) Value() string {
	if v, ok := e.doc.values[e.node]; ok {
		return v
	}
	return e.AttrOr("value", "")
}

// SetValue replaces the value without dispatching any event.
func (e *Element) SetValue(v string) {
	e.doc.values[e.node] = v
}

// Is reports whether both handles point at the same node.
func (e *Element) Is(other *Element) bool {
	if e == nil || other == nil {
		return e == nil && other == nil
	}
	return e.node == other.node
}

// Parent returns the parent element, or nil at the top of the tree.
func (e *Element) Parent() *Element {
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

// Ancestor walks up levels parents. It returns nil when the tree is not that
// deep.
func (e *Element) Ancestor(levels int) *Element {
	cur := e
	for i := 0; i < levels && cur != nil; i++ {
		cur = cur.Parent()
	}
	return cur
}

// Closest returns the nearest element with the given tag, starting at e.
func (e *Element) Closest(tag string) *Element {
	for cur := e; cur != nil; cur = cur.Parent() {
		if cur.Tag() == tag {
			return cur
		}
	}
	return nil
}

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	if e == nil || other == nil {
		return false
	}
	for n := other.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

// Connected reports whether the element is still attached to its document.
func (e *Element) Connected() bool {
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}
