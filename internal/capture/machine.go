// Package capture tracks what the user types into detected login fields and
// turns the first submit signal of a page visit into a finalized credential.
package capture

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/detector"
	"github.com/atinyakov/LoginKeeper/internal/dom"
	"github.com/atinyakov/LoginKeeper/internal/models"
	"github.com/atinyakov/LoginKeeper/internal/reconcile"
)

// State of a page visit.
type State int

const (
	Idle State = iota
	Capturing
	SubmitIntentDetected
	Finalized
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case SubmitIntentDetected:
		return "submit-intent"
	case Finalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Signal names the source of a submit intent.
type Signal string

const (
	SignalSubmit  Signal = "submit"
	SignalPointer Signal = "pointer"
	SignalEnter   Signal = "enter"
	SignalUnload  Signal = "unload"
)

// Handoff durably stores a finalized credential.
type Handoff interface {
	Handoff(models.CapturedCredential) error
}

type Options struct {
	Detector *detector.Detector
	// Bridge receives the credential before OnFinalize runs.
	Bridge Handoff
	// OnFinalize is called once per page visit with the finalized credential.
	OnFinalize func(models.CapturedCredential)
	Logger     *zap.Logger
	Now        func() time.Time
}

// Machine is the capture state of one page visit. It is driven by document
// events and must be used from the goroutine that dispatches them.
type Machine struct {
	doc  *dom.Document
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	state    State
	trigger  Signal
	fields   detector.Result
	controls []*dom.Element
	username string
	password string

	detach      []func()
	stopObserve func()
}

func New(doc *dom.Document, opts Options) *Machine {
	if opts.Detector == nil {
		opts.Detector = detector.New(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{
		doc:  doc,
		opts: opts,
		log:  opts.Logger.With(zap.String("host", doc.Hostname())),
	}
}

// Start runs the first detection, re-runs it on every structural mutation and
// arms the unload trigger.
func (m *Machine) Start() {
	m.Rescan()
	m.stopObserve = m.doc.Observe(func([]dom.Mutation) { m.Rescan() })
	m.doc.OnUnload(func() { m.signal(SignalUnload) })
}

// Stop detaches every listener. The captured values are kept.
func (m *Machine) Stop() {
	if m.stopObserve != nil {
		m.stopObserve()
		m.stopObserve = nil
	}
	m.clearListeners()
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Trigger returns the signal that produced the submit intent, if any.
func (m *Machine) Trigger() Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trigger
}

// Captured returns the last values seen in the fields.
func (m *Machine) Captured() (username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.username, m.password
}

// Fields returns the result of the latest detection pass.
func (m *Machine) Fields() detector.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fields
}

// Rescan re-runs detection. When the field set is unchanged it does nothing;
// otherwise every listener is removed and attached again to the new fields.
func (m *Machine) Rescan() {
	if m.State() == Finalized || m.doc.Unloaded() {
		return
	}
	res := m.opts.Detector.Detect(m.doc)
	controls := m.opts.Detector.SubmitControls(m.doc, res)
	if m.sameFields(res, controls) {
		return
	}

	m.clearListeners()
	m.mu.Lock()
	m.fields = res
	m.controls = controls
	if res.Found() && m.state == Idle {
		m.state = Capturing
	}
	m.mu.Unlock()

	if !res.Found() {
		return
	}
	m.attach(res, controls)
	m.log.Debug("capturing login fields",
		zap.Bool("username", res.Username != nil),
		zap.Bool("password", res.Password != nil),
		zap.Int("submitControls", len(controls)),
	)
}

func (m *Machine) sameFields(res detector.Result, controls []*dom.Element) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !sameCandidate(m.fields.Username, res.Username) ||
		!sameCandidate(m.fields.Password, res.Password) ||
		!m.fields.Form.Is(res.Form) ||
		len(m.controls) != len(controls) {
		return false
	}
	for i := range controls {
		if !m.controls[i].Is(controls[i]) {
			return false
		}
	}
	return true
}

func sameCandidate(a, b *detector.Candidate) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Element.Is(b.Element)
}

func (m *Machine) attach(res detector.Result, controls []*dom.Element) {
	on := func(el *dom.Element, t dom.EventType, fn dom.Listener) {
		m.detach = append(m.detach, el.AddEventListener(t, fn))
	}

	field := func(c *detector.Candidate, set func(string)) {
		if c == nil {
			return
		}
		el := c.Element
		record := func(ev dom.Event) { set(el.Value()) }
		on(el, dom.Input, record)
		on(el, dom.Change, record)
		on(el, dom.Blur, record)
		on(el, dom.KeyDown, func(ev dom.Event) {
			if ev.Key == "Enter" {
				m.signal(SignalEnter)
			}
		})
		if v := el.Value(); v != "" {
			set(v)
		}
	}
	field(res.Username, func(v string) { m.mu.Lock(); m.username = v; m.mu.Unlock() })
	field(res.Password, func(v string) { m.mu.Lock(); m.password = v; m.mu.Unlock() })

	if res.Form != nil {
		on(res.Form, dom.Submit, func(dom.Event) { m.signal(SignalSubmit) })
	}
	for _, c := range controls {
		on(c, dom.PointerDown, func(dom.Event) { m.signal(SignalPointer) })
		on(c, dom.Click, func(dom.Event) { m.signal(SignalPointer) })
	}
}

func (m *Machine) clearListeners() {
	for _, remove := range m.detach {
		remove()
	}
	m.detach = nil
}

// signal merges every submit source. The first signal while capturing wins;
// the rest are ignored until an incomplete finalize reopens capturing.
func (m *Machine) signal(s Signal) {
	m.mu.Lock()
	if m.state != Capturing {
		m.mu.Unlock()
		return
	}
	if s == SignalUnload && (m.username == "" || m.password == "") {
		m.mu.Unlock()
		return
	}
	m.state = SubmitIntentDetected
	m.trigger = s
	m.mu.Unlock()

	if err := m.finalize(); err != nil {
		m.log.Info("capture not finalized", zap.String("signal", string(s)), zap.Error(err))
	}
}

// finalize reads the fields one last time and hands the credential off
// before returning, so an unload cannot interrupt it.
func (m *Machine) finalize() error {
	m.mu.Lock()
	if u := m.fields.Username; u != nil {
		m.username = u.Element.Value()
	}
	if p := m.fields.Password; p != nil {
		m.password = p.Element.Value()
	}
	cred := models.CapturedCredential{
		Username: m.username,
		Password: m.password,
		Website:  m.doc.Hostname(),
		URL:      m.doc.URL(),
	}
	if !cred.Complete() {
		m.state = Capturing
		m.trigger = ""
		m.mu.Unlock()
		return fmt.Errorf("finalize: %w", reconcile.ErrValidationIncomplete)
	}
	cred.Timestamp = m.opts.Now()
	m.state = Finalized
	trigger := m.trigger
	m.mu.Unlock()

	if m.opts.Bridge != nil {
		if err := m.opts.Bridge.Handoff(cred); err != nil {
			m.log.Error("pending handoff failed", zap.Error(err))
		}
	}
	m.log.Info("credential captured",
		zap.String("website", cred.Website), zap.String("signal", string(trigger)))
	if m.opts.OnFinalize != nil {
		m.opts.OnFinalize(cred)
	}
	return nil
}

// Fill writes the given values into freshly detected fields, dispatching
// input and change events as a user edit would. It reports whether any
// field was filled.
func (m *Machine) Fill(username, password string) bool {
	res := m.opts.Detector.Detect(m.doc)
	filled := false
	write := func(c *detector.Candidate, v string) {
		if c == nil || v == "" {
			return
		}
		c.Element.SetValue(v)
		m.doc.Dispatch(c.Element, dom.Event{Type: dom.Input})
		m.doc.Dispatch(c.Element, dom.Event{Type: dom.Change})
		filled = true
	}
	write(res.Username, username)
	write(res.Password, password)
	return filled
}
