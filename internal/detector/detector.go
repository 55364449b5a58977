// Package detector locates login fields in a page with ranked heuristics.
package detector

import (
	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/dom"
)

// Role of a detected field.
type Role string

const (
	RoleUsername Role = "username"
	RolePassword Role = "password"
)

// nearbyLevels is how many parents up two fields may share a container.
const nearbyLevels = 3

// Candidate is a detected field. It is only valid for the detection pass that
// produced it.
type Candidate struct {
	Role    Role
	Element *dom.Element
	Rule    Rule
	// Proximity is the tree distance to the paired field, -1 when unpaired.
	Proximity int
}

// Result of one detection pass. Any part may be nil.
type Result struct {
	Username *Candidate
	Password *Candidate
	Form     *dom.Element
	// FormRule is the first login-form rule the owning form satisfies.
	FormRule *Rule
}

// Found reports whether at least one field was detected.
func (r Result) Found() bool {
	return r.Username != nil || r.Password != nil
}

// Fields returns the detected field elements, username first.
func (r Result) Fields() []*dom.Element {
	var out []*dom.Element
	if r.Username != nil {
		out = append(out, r.Username.Element)
	}
	if r.Password != nil {
		out = append(out, r.Password.Element)
	}
	return out
}

// Detector runs the rule tables against a document. The zero value is not
// usable; use New.
type Detector struct {
	Username []Rule
	Password []Rule
	Form     []Rule
	Submit   []Rule

	log *zap.Logger
}

// New returns a Detector with the default rule tables.
func New(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		Username: UsernameRules,
		Password: PasswordRules,
		Form:     FormRules,
		Submit:   SubmitRules,
		log:      logger,
	}
}

// Detect finds the password field first, then a username field near it, then
// the owning form. Only visible elements are ever selected. It keeps no state
// between calls.
func (d *Detector) Detect(doc *dom.Document) Result {
	var res Result
	if doc == nil {
		return res
	}

	if el, rule, ok := d.first(doc, d.Password, func(*dom.Element, Rule) bool { return true }); ok {
		res.Password = &Candidate{Role: RolePassword, Element: el, Rule: rule, Proximity: -1}
	}

	accept := func(el *dom.Element, rule Rule) bool {
		if res.Password != nil && el.Is(res.Password.Element) {
			return false
		}
		if !rule.Generic {
			return true
		}
		return res.Password != nil && Nearby(el, res.Password.Element)
	}
	if el, rule, ok := d.first(doc, d.Username, accept); ok {
		res.Username = &Candidate{Role: RoleUsername, Element: el, Rule: rule, Proximity: -1}
	}

	if res.Username != nil && res.Password != nil {
		p := Distance(res.Username.Element, res.Password.Element)
		res.Username.Proximity = p
		res.Password.Proximity = p
	}

	switch {
	case res.Password != nil:
		res.Form = res.Password.Element.Closest("form")
	case res.Username != nil:
		res.Form = res.Username.Element.Closest("form")
	}
	if res.Form != nil {
		for _, r := range d.Form {
			if r.Match.Match(res.Form.Node()) {
				rule := r
				res.FormRule = &rule
				break
			}
		}
	}

	if res.Found() {
		d.log.Debug("login fields detected",
			zap.String("host", doc.Hostname()),
			zap.String("username", candidateLabel(res.Username)),
			zap.String("password", candidateLabel(res.Password)),
			zap.Bool("form", res.Form != nil),
		)
	}
	return res
}

// first walks the rules in rank order and returns the first visible match in
// document order that accept allows.
func (d *Detector) first(doc *dom.Document, rules []Rule, accept func(*dom.Element, Rule) bool) (*dom.Element, Rule, bool) {
	for _, rule := range rules {
		for _, el := range doc.FindMatcher(rule.Match) {
			if el.Visible() && accept(el, rule) {
				return el, rule, true
			}
		}
	}
	return nil, Rule{}, false
}

// SubmitControls returns the visible controls matching the submit rules plus
// every button-like control inside the owning form, without duplicates.
func (d *Detector) SubmitControls(doc *dom.Document, res Result) []*dom.Element {
	if doc == nil {
		return nil
	}
	var out []*dom.Element
	add := func(el *dom.Element) {
		for _, have := range out {
			if have.Is(el) {
				return
			}
		}
		out = append(out, el)
	}
	for _, rule := range d.Submit {
		for _, el := range doc.FindMatcher(rule.Match) {
			if el.Visible() {
				add(el)
			}
		}
	}
	if res.Form != nil {
		for _, el := range doc.FindWithin(res.Form, formControls) {
			add(el)
		}
	}
	return out
}

// Nearby reports whether two fields share a form or a container at most
// three levels up from either.
func Nearby(a, b *dom.Element) bool {
	if a == nil || b == nil {
		return false
	}
	if fa := a.Closest("form"); fa != nil && fa.Is(b.Closest("form")) {
		return true
	}
	if pa := a.Ancestor(nearbyLevels); pa != nil && pa.Contains(b) {
		return true
	}
	if pb := b.Ancestor(nearbyLevels); pb != nil && pb.Contains(a) {
		return true
	}
	return false
}

// Distance counts the edges between a and b through their lowest common
// ancestor, or -1 when they are in different trees.
func Distance(a, b *dom.Element) int {
	if a == nil || b == nil {
		return -1
	}
	var chain []*dom.Element
	for cur := a; cur != nil; cur = cur.Parent() {
		chain = append(chain, cur)
	}
	for cur, j := b, 0; cur != nil; cur, j = cur.Parent(), j+1 {
		for i, c := range chain {
			if c.Is(cur) {
				return i + j
			}
		}
	}
	return -1
}

func candidateLabel(c *Candidate) string {
	if c == nil {
		return ""
	}
	return c.Element.Label()
}
