package dom

import "golang.org/x/net/html"

// EventType names a DOM event.
type EventType string

const (
	Input       EventType = "input"
	Change      EventType = "change"
	Focus       EventType = "focus"
	Blur        EventType = "blur"
	KeyDown     EventType = "keydown"
	PointerDown EventType = "pointerdown"
	Click       EventType = "click"
	Submit      EventType = "submit"
)

// Event is delivered to listeners of the target and of its ancestors.
type Event struct {
	Type   EventType
	Target *Element
	// Key is set for keydown events, e.g. "Enter".
	Key string
}

// Listener handles an event.
type Listener func(Event)

// AddEventListener registers fn for events of type t on e and returns a
// function that removes it again.
func (e *Element) AddEventListener(t EventType, fn Listener) (remove func()) {
	d := e.doc
	d.nextID++
	id := d.nextID
	byType := d.listeners[e.node]
	if byType == nil {
		byType = make(map[EventType][]listenerEntry)
		d.listeners[e.node] = byType
	}
	byType[t] = append(byType[t], listenerEntry{id: id, fn: fn})

	node := e.node
	return func() {
		entries := d.listeners[node][t]
		for i, l := range entries {
			if l.id == id {
				d.listeners[node][t] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns how many listeners of type t are attached to e.
func (e *Element) ListenerCount(t EventType) int {
	return len(e.doc.listeners[e.node][t])
}

// Dispatch delivers ev to target and then bubbles it up to every ancestor.
func (d *Document) Dispatch(target *Element, ev Event) {
	if d.unloaded || target == nil {
		return
	}
	ev.Target = target
	for n := target.node; n != nil; n = n.Parent {
		entries := append([]listenerEntry(nil), d.listeners[n][ev.Type]...)
		for _, l := range entries {
			l.fn(ev)
		}
	}
}

// FocusOn moves focus to el, blurring the previously focused element.
func (d *Document) FocusOn(el *Element) {
	if d.focused == el.node {
		return
	}
	if d.focused != nil {
		prev := d.wrap(d.focused)
		d.focused = nil
		d.Dispatch(prev, Event{Type: Blur})
	}
	d.focused = el.node
	d.Dispatch(el, Event{Type: Focus})
}

// BlurActive removes focus from the focused element, if any.
func (d *Document) BlurActive() {
	if d.focused == nil {
		return
	}
	prev := d.wrap(d.focused)
	d.focused = nil
	d.Dispatch(prev, Event{Type: Blur})
}

// Type focuses el, clears it and types text one character at a time, firing
// an input event per keystroke.
func (d *Document) Type(el *Element, text string) {
	d.FocusOn(el)
	el.SetValue("")
	d.Dispatch(el, Event{Type: Input})
	typed := make([]rune, 0, len(text))
	for _, r := range text {
		typed = append(typed, r)
		el.SetValue(string(typed))
		d.Dispatch(el, Event{Type: Input})
	}
}

// PressEnter fires keydown Enter on el. An Enter inside a form field
// implicitly submits the form, as browsers do.
func (d *Document) PressEnter(el *Element) {
	d.Dispatch(el, Event{Type: KeyDown, Key: "Enter"})
	if el.Tag() == "input" {
		if form := el.Closest("form"); form != nil {
			d.Dispatch(form, Event{Type: Submit})
		}
	}
}

// Click fires pointerdown and click on el. A submit control inside a form
// also submits the form.
func (d *Document) Click(el *Element) {
	d.Dispatch(el, Event{Type: PointerDown})
	d.Dispatch(el, Event{Type: Click})
	if d.unloaded || !isSubmitControl(el.node) {
		return
	}
	if form := el.Closest("form"); form != nil {
		d.Dispatch(form, Event{Type: Submit})
	}
}

func isSubmitControl(n *html.Node) bool {
	el := &Element{node: n}
	switch el.Tag() {
	case "button":
		t := el.Type()
		return t == "" || t == "submit"
	case "input":
		t := el.Type()
		return t == "submit" || t == "image"
	}
	return false
}
