package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Rule is one entry of a ranked heuristic table. Lower Rank is more specific.
type Rule struct {
	Name  string
	Rank  int
	Match goquery.Matcher
	// Generic marks the low-specificity fallback that only counts when the
	// candidate sits next to the password field.
	Generic bool
}

// foldContains matches elements accepted by base whose attr contains substr,
// ignoring case.
type foldContains struct {
	base   cascadia.Selector
	attr   string
	substr string
}

func (f foldContains) Match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || !f.base.Match(n) {
		return false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, f.attr) {
			return strings.Contains(strings.ToLower(a.Val), f.substr)
		}
	}
	return false
}

func (f foldContains) MatchAll(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if f.Match(c) {
			out = append(out, c)
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return out
}

func (f foldContains) Filter(nodes []*html.Node) []*html.Node {
	var out []*html.Node
	for _, n := range nodes {
		if f.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

// ruleDef is the declarative form of a rule before compilation: either a CSS
// selector, or a base selector plus a case-insensitive attribute substring.
type ruleDef struct {
	css     string
	attr    string
	substr  string
	generic bool
}

func sel(css string) ruleDef { return ruleDef{css: css} }

func fold(base, attr, substr string) ruleDef {
	return ruleDef{css: base, attr: attr, substr: strings.ToLower(substr)}
}

func compile(defs []ruleDef) []Rule {
	rules := make([]Rule, 0, len(defs))
	for i, s := range defs {
		r := Rule{Rank: i, Generic: s.generic}
		base := cascadia.MustCompile(s.css)
		if s.attr != "" {
			r.Name = s.css + "[" + s.attr + "*=" + `"` + s.substr + `" i]`
			r.Match = foldContains{base: base, attr: s.attr, substr: s.substr}
		} else {
			r.Name = s.css
			r.Match = base
		}
		rules = append(rules, r)
	}
	return rules
}

var usernameDefs = []ruleDef{
	sel(`input[type="email"]`),
	sel(`input[type="tel"]`),
	sel(`input[type="text"][name*="user"]`),
	sel(`input[type="text"][name*="login"]`),
	sel(`input[type="text"][name*="email"]`),
	sel(`input[type="text"][name*="phone"]`),
	sel(`input[type="text"][name*="account"]`),
	sel(`input[type="text"][id*="user"]`),
	sel(`input[type="text"][id*="login"]`),
	sel(`input[type="text"][id*="email"]`),
	sel(`input[type="text"][id*="phone"]`),
	sel(`input[autocomplete="username"]`),
	sel(`input[autocomplete="email"]`),
	sel(`input[autocomplete="tel"]`),
	sel(`input[name="username"]`),
	sel(`input[name="email"]`),
	sel(`input[name="login"]`),
	sel(`input[name="identifier"]`),
	sel(`input[name="session[username_or_email]"]`),
	sel(`input[name="loginfmt"]`),
	sel(`input[id="username"]`),
	sel(`input[id="email"]`),
	sel(`input[id="login"]`),
	sel(`input[id="identifierId"]`),
	sel(`input[id="login_field"]`),
	sel(`input[id="ap_email"]`),
	sel(`input[data-testid="login-input"]`),
	fold("input", "placeholder", "email"),
	fold("input", "placeholder", "user"),
	fold("input", "placeholder", "phone"),
	fold("input", "placeholder", "mobile"),
	fold("input", "aria-label", "email"),
	fold("input", "aria-label", "user"),
	fold("input", "aria-label", "phone"),
	{css: `input[type="text"], input:not([type])`, generic: true},
}

var passwordDefs = []ruleDef{
	sel(`input[type="password"]`),
	sel(`input[autocomplete="current-password"]`),
	sel(`input[autocomplete="password"]`),
	sel(`input[name="password"]`),
	sel(`input[name="pass"]`),
	sel(`input[name="passwd"]`),
	sel(`input[name="pwd"]`),
	sel(`input[name="session[password]"]`),
	sel(`input[id="password"]`),
	sel(`input[id="pass"]`),
	sel(`input[id="passwd"]`),
	sel(`input[id="login_password"]`),
	sel(`input[id="ap_password"]`),
	sel(`input[data-testid="password-input"]`),
	fold("input", "aria-label", "password"),
	fold("input", "placeholder", "password"),
}

var formDefs = []ruleDef{
	sel(`form[action*="login"]`),
	sel(`form[action*="signin"]`),
	sel(`form[action*="sign-in"]`),
	sel(`form[action*="auth"]`),
	sel(`form[action*="session"]`),
	sel(`form[id*="login"]`),
	sel(`form[id*="signin"]`),
	sel(`form[id*="sign-in"]`),
	sel(`form[class*="login"]`),
	sel(`form[class*="signin"]`),
	sel(`form[class*="sign-in"]`),
	sel(`form[data-testid*="login"]`),
	sel(`form[name="login"]`),
	sel(`form[name="signin"]`),
	{css: `form`, generic: true},
}

var submitDefs = []ruleDef{
	sel(`button[type="submit"]`),
	sel(`input[type="submit"]`),
	sel(`button[name*="login"]`),
	sel(`button[name*="signin"]`),
	sel(`button[id*="login"]`),
	sel(`button[id*="signin"]`),
	sel(`button[class*="login"]`),
	sel(`button[class*="signin"]`),
	sel(`button[data-testid*="login"]`),
	fold("button", "aria-label", "sign in"),
	fold("button", "aria-label", "log in"),
	sel(`a[role="button"][href*="login"]`),
	fold(`div[role="button"]`, "aria-label", "log in"),
}

// formControls are clicked to submit the owning form even when they match no
// submit rule.
var formControls = cascadia.MustCompile(`button, input[type="submit"], [role="button"]`)

// Default rule tables.
var (
	UsernameRules = compile(usernameDefs)
	PasswordRules = compile(passwordDefs)
	FormRules     = compile(formDefs)
	SubmitRules   = compile(submitDefs)
)
