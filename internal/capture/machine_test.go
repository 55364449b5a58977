package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/LoginKeeper/internal/bridge"
	"github.com/atinyakov/LoginKeeper/internal/client/storage"
	"github.com/atinyakov/LoginKeeper/internal/dom"
	"github.com/atinyakov/LoginKeeper/internal/models"
)

const loginPage = `<html><body><div id="app">
<form id="login" action="/login">
  <input type="email" name="email" id="email">
  <input type="password" name="password" id="pw">
  <button type="submit" id="go">Sign in</button>
</form>
</div></body></html>`

type harness struct {
	doc       *dom.Document
	store     *storage.MemoryStore
	bridge    *bridge.Bridge
	machine   *Machine
	finalized []models.CapturedCredential
}

func newHarness(t *testing.T, page string) *harness {
	t.Helper()
	doc, err := dom.ParseString(page, "https://www.example.com/login")
	require.NoError(t, err)
	h := &harness{doc: doc, store: storage.NewMemoryStore()}
	h.bridge = bridge.New(h.store)
	h.machine = New(doc, Options{
		Bridge:     h.bridge,
		OnFinalize: func(c models.CapturedCredential) { h.finalized = append(h.finalized, c) },
	})
	h.machine.Start()
	return h
}

func (h *harness) el(t *testing.T, id string) *dom.Element {
	t.Helper()
	els := h.doc.Find("#" + id)
	require.Len(t, els, 1, id)
	return els[0]
}

func (h *harness) pending(t *testing.T) (models.CapturedCredential, bool) {
	t.Helper()
	c, ok, err := h.bridge.TakeIfFresh(bridge.ContentMaxAge)
	require.NoError(t, err)
	return c, ok
}

func TestMachine_UnloadAfterTypingOutOfOrder(t *testing.T) {
	h := newHarness(t, loginPage)
	assert.Equal(t, Capturing, h.machine.State())

	h.doc.Type(h.el(t, "pw"), "s3cret!")
	h.doc.Type(h.el(t, "email"), "a@x.com")
	h.doc.Unload()

	assert.Equal(t, Finalized, h.machine.State())
	assert.Equal(t, SignalUnload, h.machine.Trigger())
	require.Len(t, h.finalized, 1)
	got := h.finalized[0]
	assert.Equal(t, "a@x.com", got.Username)
	assert.Equal(t, "s3cret!", got.Password)
	assert.Equal(t, "www.example.com", got.Website)
	assert.Equal(t, "https://www.example.com/login", got.URL)
	assert.False(t, got.Timestamp.IsZero())

	pending, ok := h.pending(t)
	require.True(t, ok, "handoff must be stored before unload returns")
	assert.Equal(t, "a@x.com", pending.Username)
}

func TestMachine_FirstSignalWins(t *testing.T) {
	h := newHarness(t, loginPage)
	h.doc.Type(h.el(t, "email"), "a@x.com")
	h.doc.Type(h.el(t, "pw"), "pw")

	h.doc.Click(h.el(t, "go"))
	h.doc.PressEnter(h.el(t, "pw"))
	h.doc.Unload()

	assert.Equal(t, SignalPointer, h.machine.Trigger())
	assert.Len(t, h.finalized, 1)
}

func TestMachine_EnterOnUsername(t *testing.T) {
	h := newHarness(t, loginPage)
	h.doc.Type(h.el(t, "pw"), "pw")
	h.doc.Type(h.el(t, "email"), "a@x.com")
	h.doc.PressEnter(h.el(t, "email"))

	assert.Equal(t, SignalEnter, h.machine.Trigger())
	require.Len(t, h.finalized, 1)
}

func TestMachine_FormSubmit(t *testing.T) {
	h := newHarness(t, loginPage)
	h.doc.Type(h.el(t, "email"), "a@x.com")
	h.doc.Type(h.el(t, "pw"), "pw")
	h.doc.Dispatch(h.el(t, "login"), dom.Event{Type: dom.Submit})

	assert.Equal(t, SignalSubmit, h.machine.Trigger())
	require.Len(t, h.finalized, 1)
}

func TestMachine_IncompleteReturnsToCapturing(t *testing.T) {
	h := newHarness(t, loginPage)
	h.doc.Type(h.el(t, "pw"), "pw")
	h.doc.Click(h.el(t, "go"))

	assert.Equal(t, Capturing, h.machine.State())
	assert.Empty(t, h.finalized)
	_, ok := h.pending(t)
	assert.False(t, ok)

	h.doc.Type(h.el(t, "email"), "a@x.com")
	h.doc.Click(h.el(t, "go"))
	assert.Equal(t, Finalized, h.machine.State())
	require.Len(t, h.finalized, 1)
}

func TestMachine_UnloadNeedsBothValues(t *testing.T) {
	h := newHarness(t, loginPage)
	h.doc.Type(h.el(t, "email"), "a@x.com")
	h.doc.Unload()

	assert.Equal(t, Capturing, h.machine.State())
	assert.Empty(t, h.finalized)
}

func TestMachine_PrefilledValues(t *testing.T) {
	h := newHarness(t, `<html><body><form>
  <input type="email" id="email" value="saved@x.com">
  <input type="password" id="pw">
</form></body></html>`)
	u, _ := h.machine.Captured()
	assert.Equal(t, "saved@x.com", u)

	h.doc.Type(h.el(t, "pw"), "pw")
	h.doc.Unload()
	require.Len(t, h.finalized, 1)
	assert.Equal(t, "saved@x.com", h.finalized[0].Username)
}

func TestMachine_FinalizeRereadsFields(t *testing.T) {
	h := newHarness(t, loginPage)
	h.doc.Type(h.el(t, "email"), "old@x.com")
	h.doc.Type(h.el(t, "pw"), "pw")
	h.el(t, "email").SetValue("new@x.com")

	h.doc.Click(h.el(t, "go"))
	require.Len(t, h.finalized, 1)
	assert.Equal(t, "new@x.com", h.finalized[0].Username)
}

func TestMachine_SinglePageRerender(t *testing.T) {
	h := newHarness(t, `<html><body><div id="app"></div><div id="side"></div></body></html>`)
	assert.Equal(t, Idle, h.machine.State())

	app := h.el(t, "app")
	_, err := h.doc.AppendHTML(app, `<form id="f1"><input type="email" id="email"><input type="password" id="pw"></form>`)
	require.NoError(t, err)
	assert.Equal(t, Capturing, h.machine.State())
	assert.Equal(t, 1, h.el(t, "pw").ListenerCount(dom.Input))

	_, err = h.doc.AppendHTML(h.el(t, "side"), `<p>ad</p>`)
	require.NoError(t, err)
	assert.Equal(t, 1, h.el(t, "pw").ListenerCount(dom.Input), "unchanged fields are not re-attached")

	oldPw := h.el(t, "pw")
	h.doc.Type(oldPw, "pw")
	h.doc.Remove(h.el(t, "f1"))
	assert.Equal(t, 0, oldPw.ListenerCount(dom.Input))

	_, err = h.doc.AppendHTML(app, `<form id="f2"><input type="email" id="email2"><input type="password" id="pw2"></form>`)
	require.NoError(t, err)
	assert.Equal(t, 1, h.el(t, "pw2").ListenerCount(dom.Input))

	h.doc.Type(h.el(t, "email2"), "a@x.com")
	h.doc.Type(h.el(t, "pw2"), "pw2")
	h.doc.PressEnter(h.el(t, "pw2"))
	require.Len(t, h.finalized, 1)
	assert.Equal(t, "pw2", h.finalized[0].Password)
}

func TestMachine_Fill(t *testing.T) {
	h := newHarness(t, loginPage)
	assert.True(t, h.machine.Fill("a@x.com", "pw"))
	assert.Equal(t, "a@x.com", h.el(t, "email").Value())
	assert.Equal(t, "pw", h.el(t, "pw").Value())

	u, p := h.machine.Captured()
	assert.Equal(t, "a@x.com", u)
	assert.Equal(t, "pw", p)
}

func TestMachine_NoFields(t *testing.T) {
	h := newHarness(t, `<html><body><p>nothing here</p></body></html>`)
	assert.Equal(t, Idle, h.machine.State())
	assert.False(t, h.machine.Fill("u", "p"))
	h.doc.Unload()
	assert.Empty(t, h.finalized)
}

func TestMachine_Clock(t *testing.T) {
	doc, err := dom.ParseString(loginPage, "https://example.com/")
	require.NoError(t, err)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var got models.CapturedCredential
	m := New(doc, Options{
		Now:        func() time.Time { return at },
		OnFinalize: func(c models.CapturedCredential) { got = c },
	})
	m.Start()
	doc.Type(doc.Find("#email")[0], "u")
	doc.Type(doc.Find("#pw")[0], "p")
	doc.Unload()
	assert.True(t, got.Timestamp.Equal(at))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "submit-intent", SubmitIntentDetected.String())
	assert.Equal(t, "state(9)", State(9).String())
}
