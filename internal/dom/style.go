package dom

import (
	"strconv"
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// inlineStyle holds the declarations that affect visibility.
type inlineStyle struct {
	display    string
	visibility string
	opacity    string
	width      string
	height     string
}

func styleOf(n *html.Node) inlineStyle {
	var st inlineStyle
	var raw string
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "style") {
			raw = a.Val
			break
		}
	}
	if strings.TrimSpace(raw) == "" {
		return st
	}
	// The parser drops the value of a last declaration without ";".
	raw = strings.TrimSpace(raw)
	if !strings.HasSuffix(raw, ";") {
		raw += ";"
	}
	decls, err := parser.ParseDeclarations(raw)
	if err != nil {
		return st
	}
	for _, decl := range decls {
		v := strings.ToLower(strings.TrimSpace(decl.Value))
		switch strings.ToLower(decl.Property) {
		case "display":
			st.display = v
		case "visibility":
			st.visibility = v
		case "opacity":
			st.opacity = v
		case "width":
			st.width = v
		case "height":
			st.height = v
		}
	}
	return st
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

// Visible reports whether the element is rendered: no hidden attribute, no
// display:none or zero opacity on it or an ancestor, not visibility:hidden
// after inheritance, and a non-zero box. It is computed on every call.
func (e *Element) Visible() bool {
	if e == nil || !e.Connected() {
		return false
	}
	if e.Tag() == "input" && e.Type() == "hidden" {
		return false
	}

	visibility := ""
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if hasAttr(n, "hidden") {
			return false
		}
		st := styleOf(n)
		if st.display == "none" || isZeroNumber(st.opacity) {
			return false
		}
		if visibility == "" && st.visibility != "" && st.visibility != "inherit" {
			visibility = st.visibility
		}
	}
	if visibility == "hidden" || visibility == "collapse" {
		return false
	}

	r := e.box()
	return r.Width > 0 && r.Height > 0
}

func (e *Element) box() Rect {
	if e.doc.layout != nil {
		if r, ok := e.doc.layout(e); ok {
			return r
		}
	}
	st := styleOf(e.node)
	r := Rect{Width: 1, Height: 1}
	if isZeroNumber(st.width) {
		r.Width = 0
	}
	if isZeroNumber(st.height) {
		r.Height = 0
	}
	return r
}

// isZeroNumber reports whether a CSS number or length is exactly zero.
// Missing or unparsable values are not zero.
func isZeroNumber(v string) bool {
	v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
	if v == "" {
		return false
	}
	v = strings.TrimRight(v, "abcdefghijklmnopqrstuvwxyz%")
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && f == 0
}
