package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/LoginKeeper/internal/dom"
)

func parse(t *testing.T, page string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(page, "https://accounts.example.com/login")
	require.NoError(t, err)
	return doc
}

func TestRuleTables(t *testing.T) {
	assert.Len(t, UsernameRules, 35)
	assert.Len(t, PasswordRules, 16)
	assert.Len(t, FormRules, 15)
	assert.Len(t, SubmitRules, 13)

	for _, table := range [][]Rule{UsernameRules, PasswordRules, FormRules, SubmitRules} {
		for i, r := range table {
			assert.Equal(t, i, r.Rank)
			if i < len(table)-1 {
				assert.False(t, r.Generic, r.Name)
			}
		}
	}
	assert.True(t, UsernameRules[len(UsernameRules)-1].Generic)
	assert.True(t, FormRules[len(FormRules)-1].Generic)
}

func TestDetect_IgnoresHoneypot(t *testing.T) {
	doc := parse(t, `<html><body>
<form action="/login">
  <input type="password" name="trap" style="display:none">
  <input type="password" name="decoy" style="opacity: 0">
  <div style="visibility:hidden"><input type="password" name="hidden-pw"></div>
  <input type="email" name="email" hidden>
  <input type="email" name="real-email">
  <input type="password" name="real">
</form></body></html>`)

	res := New(nil).Detect(doc)
	require.NotNil(t, res.Password)
	require.NotNil(t, res.Username)
	assert.Equal(t, "real", res.Password.Element.AttrOr("name", ""))
	assert.Equal(t, "real-email", res.Username.Element.AttrOr("name", ""))
	for _, el := range res.Fields() {
		assert.True(t, el.Visible())
	}
}

func TestDetect_GenericUsernameMustBeNearPassword(t *testing.T) {
	doc := parse(t, `<html><body>
<header><div><div><div><input type="text" name="q"></div></div></div></header>
<main>
<form id="f" action="/x">
  <div><input type="text" name="nick"></div>
  <div><div><div><input type="password" name="pw"></div></div></div>
</form>
</main></body></html>`)

	res := New(nil).Detect(doc)
	require.NotNil(t, res.Username)
	assert.Equal(t, "nick", res.Username.Element.AttrOr("name", ""))
	assert.True(t, res.Username.Rule.Generic)
	assert.Equal(t, 6, res.Username.Proximity)
	assert.Equal(t, 6, res.Password.Proximity)
	assert.Equal(t, "f", res.Form.AttrOr("id", ""))
}

func TestDetect_GenericUsernameWithoutPassword(t *testing.T) {
	doc := parse(t, `<html><body><form><input type="text" name="nick"></form></body></html>`)
	res := New(nil).Detect(doc)
	assert.False(t, res.Found())
	assert.Nil(t, res.Form)
}

func TestDetect_RankBeatsDocumentOrder(t *testing.T) {
	doc := parse(t, `<html><body><form>
  <input name="username">
  <input type="email" name="contact">
  <input type="password">
</form></body></html>`)

	res := New(nil).Detect(doc)
	require.NotNil(t, res.Username)
	assert.Equal(t, "contact", res.Username.Element.AttrOr("name", ""))
	assert.Equal(t, 0, res.Username.Rule.Rank)
}

func TestDetect_CaseInsensitivePlaceholder(t *testing.T) {
	doc := parse(t, `<html><body><div>
  <input type="search" placeholder="Your EMAIL address">
  <input type="text" aria-label="PASSWORD">
</div></body></html>`)

	res := New(nil).Detect(doc)
	require.NotNil(t, res.Password)
	require.NotNil(t, res.Username)
	assert.Contains(t, res.Password.Rule.Name, "aria-label")
	assert.Contains(t, res.Username.Rule.Name, "placeholder")
	assert.Nil(t, res.Form)
	assert.Equal(t, 2, res.Username.Proximity)
}

func TestDetect_UsernameNeverSameAsPassword(t *testing.T) {
	doc := parse(t, `<html><body><form><input type="text" name="password"></form></body></html>`)
	res := New(nil).Detect(doc)
	require.NotNil(t, res.Password)
	assert.Nil(t, res.Username)
	assert.Equal(t, -1, res.Password.Proximity)
}

func TestDetect_FormRule(t *testing.T) {
	tests := []struct {
		name    string
		form    string
		rule    string
		generic bool
	}{
		{name: "action", form: `<form action="/session/new">`, rule: `form[action*="session"]`},
		{name: "class", form: `<form class="big-login-box">`, rule: `form[class*="login"]`},
		{name: "plain", form: `<form>`, rule: `form`, generic: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, `<html><body>`+tt.form+`<input type="password"></form></body></html>`)
			res := New(nil).Detect(doc)
			require.NotNil(t, res.FormRule)
			assert.Equal(t, tt.rule, res.FormRule.Name)
			assert.Equal(t, tt.generic, res.FormRule.Generic)
		})
	}
}

func TestDetect_NoStaleReferences(t *testing.T) {
	doc := parse(t, `<html><body><div id="app"><input type="password" name="old"></div></body></html>`)
	d := New(nil)
	first := d.Detect(doc)
	require.NotNil(t, first.Password)

	doc.Remove(first.Password.Element)
	assert.False(t, d.Detect(doc).Found())

	_, err := doc.AppendHTML(doc.Find("#app")[0], `<input type="password" name="new">`)
	require.NoError(t, err)
	res := d.Detect(doc)
	require.NotNil(t, res.Password)
	assert.Equal(t, "new", res.Password.Element.AttrOr("name", ""))
}

func TestSubmitControls(t *testing.T) {
	doc := parse(t, `<html><body>
<form id="f">
  <input type="email"><input type="password">
  <button type="submit" id="go">Go</button>
  <button type="button" id="other">Other</button>
  <span role="button" id="span">Span</span>
</form>
<div role="button" aria-label="Log In Now" id="fb">Log in</div>
<button type="submit" id="ghost" style="display:none">x</button>
<button id="unrelated">Menu</button>
</body></html>`)

	d := New(nil)
	res := d.Detect(doc)
	controls := d.SubmitControls(doc, res)

	var ids []string
	for _, c := range controls {
		ids = append(ids, c.AttrOr("id", ""))
	}
	assert.ElementsMatch(t, []string{"go", "other", "span", "fb"}, ids)
}

func TestNearby(t *testing.T) {
	doc := parse(t, `<html><body>
<section><div><p><input id="a"></p></div><input id="b"></section>
<aside><div><div><div><div><input id="c"></div></div></div></div></aside>
</body></html>`)
	a, b, c := doc.Find("#a")[0], doc.Find("#b")[0], doc.Find("#c")[0]
	assert.True(t, Nearby(a, b))
	assert.True(t, Nearby(b, a))
	assert.False(t, Nearby(a, c))
	assert.False(t, Nearby(nil, a))
	assert.Equal(t, 4, Distance(a, b))
	assert.Equal(t, 0, Distance(a, a))
}
