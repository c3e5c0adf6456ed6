package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/stepform/pkg/dispose"
	"github.com/gabrielmiguelok/stepform/pkg/js"
)

// Element is one element node of a Document.
type Element struct {
	doc       *Document
	node      *html.Node
	key       string
	props     map[string]any
	listeners map[string][]*listener
}

// Key returns the element's stable key, or "" for a detached element that
// was never appended.
func (e *Element) Key() string {
	return e.key
}

// TagName returns the lower-case tag name.
func (e *Element) TagName() string {
	return e.node.Data
}

// ID returns the id attribute.
func (e *Element) ID() string {
	return getAttr(e.node, "id")
}

// Connected reports whether the element is part of its document's current
// tree. Mutations of disconnected elements are not sent to the client.
func (e *Element) Connected() bool {
	n := e.node
	for n.Parent != nil {
		n = n.Parent
	}
	return n == e.doc.root
}

// GetAttribute returns an attribute value, or "" when absent.
func (e *Element) GetAttribute(name string) string {
	return getAttr(e.node, name)
}

// HasAttribute reports whether the attribute is present.
func (e *Element) HasAttribute(name string) bool {
	return hasAttr(e.node, name)
}

// SetAttribute sets an attribute.
func (e *Element) SetAttribute(name, value string) {
	setAttr(e.node, name, value)
	e.emit(js.JS.SetAttr(e.key, name, value))
}

// RemoveAttribute removes an attribute.
func (e *Element) RemoveAttribute(name string) {
	if removeAttr(e.node, name) {
		e.emit(js.JS.RemoveAttr(e.key, name))
	}
}

// Classes returns the class list.
func (e *Element) Classes() []string {
	return strings.Fields(getAttr(e.node, "class"))
}

// HasClass reports whether class is in the class list.
func (e *Element) HasClass(class string) bool {
	for _, c := range e.Classes() {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass adds classes that are not already present.
func (e *Element) AddClass(classes ...string) {
	list := e.Classes()
	for _, class := range classes {
		if class == "" || containsString(list, class) {
			continue
		}
		list = append(list, class)
		setAttr(e.node, "class", strings.Join(list, " "))
		e.emit(js.JS.AddClass(e.key, class))
	}
}

// RemoveClass removes classes that are present.
func (e *Element) RemoveClass(classes ...string) {
	list := e.Classes()
	for _, class := range classes {
		idx := indexString(list, class)
		if idx < 0 {
			continue
		}
		list = append(list[:idx], list[idx+1:]...)
		if len(list) == 0 {
			removeAttr(e.node, "class")
		} else {
			setAttr(e.node, "class", strings.Join(list, " "))
		}
		e.emit(js.JS.RemoveClass(e.key, class))
	}
}

// ToggleClass adds class when force is true and removes it otherwise.
func (e *Element) ToggleClass(class string, force bool) {
	if force {
		e.AddClass(class)
	} else {
		e.RemoveClass(class)
	}
}

// Property returns a DOM property previously set on the server or
// reported by the client. For "value" it falls back to the value
// attribute, and for textarea to its text.
func (e *Element) Property(name string) any {
	if v, ok := e.props[name]; ok {
		return v
	}
	if name == "value" {
		if e.node.Data == "textarea" {
			return e.TextContent()
		}
		return getAttr(e.node, "value")
	}
	return nil
}

// SetProperty assigns a DOM property.
func (e *Element) SetProperty(name string, value any) {
	e.setProp(name, value)
	e.emit(js.JS.SetProp(e.key, name, value))
}

func (e *Element) setProp(name string, value any) {
	if e.props == nil {
		e.props = make(map[string]any)
	}
	e.props[name] = value
}

// Value returns the current value of a form control as text.
func (e *Element) Value() string {
	switch v := e.Property("value").(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case nil:
		return ""
	default:
		return ""
	}
}

// NumberValue returns the value as a number, as HTMLProgressElement.value
// does. Unparseable values read as 0.
func (e *Element) NumberValue() float64 {
	switch v := e.Property("value").(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// TextContent returns the concatenated text of all descendants.
func (e *Element) TextContent() string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.node)
	return b.String()
}

// SetTextContent replaces the children with a single text node.
func (e *Element) SetTextContent(text string) {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	e.emit(js.JS.SetProp(e.key, "textContent", text))
}

// QuerySelector returns the first descendant matching sel, or nil.
func (e *Element) QuerySelector(sel string) *Element {
	s, err := Compile(sel)
	if err != nil {
		return nil
	}
	return e.doc.wrap(s.matchFirst(e.node))
}

// QuerySelectorAll returns the descendants matching sel.
func (e *Element) QuerySelectorAll(sel string) []*Element {
	s, err := Compile(sel)
	if err != nil {
		return nil
	}
	return e.doc.wrapAll(s.matchAll(e.node))
}

// AppendChild appends child as the last child of e. Appending a detached
// element keys its subtree and sends the rendered markup to the client.
func (e *Element) AppendChild(child *Element) {
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.AppendChild(child.node)
	e.doc.keySubtree(child.node)

	if e.Connected() {
		var b strings.Builder
		if err := html.Render(&b, child.node); err == nil {
			e.emit(js.JS.Append(e.key, b.String()))
		}
	}
}

// Remove detaches the element from its parent.
func (e *Element) Remove() {
	if e.node.Parent == nil {
		return
	}
	connected := e.Connected()
	e.node.Parent.RemoveChild(e.node)
	if connected {
		e.doc.record(js.JS.Remove(e.key))
	}
}

// Focus moves keyboard focus to the element on the client.
func (e *Element) Focus(opts ...js.FocusOption) {
	e.emit(js.JS.Focus(e.key, opts...))
}

// Submit invokes the browser's native form submission. Like
// HTMLFormElement.submit it fires no submit event.
func (e *Element) Submit() {
	e.emit(js.JS.Submit(e.key))
}

// RequestSubmit dispatches a submit event on the form, as
// HTMLFormElement.requestSubmit does. Listeners decide whether the
// submission proceeds.
func (e *Element) RequestSubmit() {
	e.Dispatch(&Event{Type: EventSubmit})
}

// Click dispatches a click event on the element.
func (e *Element) Click() {
	e.Dispatch(&Event{Type: EventClick})
}

// Disabled reports whether the element carries the disabled attribute.
func (e *Element) Disabled() bool {
	return hasAttr(e.node, "disabled")
}

// AddEventListener registers fn for events of type typ on e. The client
// is told to forward such events while at least one listener remains.
func (e *Element) AddEventListener(typ string, fn Listener, opts ...ListenOption) dispose.Handle {
	l := &listener{fn: fn}
	for _, opt := range opts {
		opt(&l.opts)
	}

	if e.listeners == nil {
		e.listeners = make(map[string][]*listener)
	}
	e.listeners[typ] = append(e.listeners[typ], l)
	e.doc.listenerCount++
	e.syncListen(typ)

	return dispose.Once(func() {
		if removeListener(e.listeners, typ, l) {
			e.doc.listenerCount--
			e.syncListen(typ)
		}
	})
}

// ListenerCount returns the number of listeners registered on e.
func (e *Element) ListenerCount() int {
	n := 0
	for _, ls := range e.listeners {
		n += len(ls)
	}
	return n
}

// Dispatch delivers ev to e's listeners. Click events on disabled
// elements are dropped, as browsers do for disabled form controls.
func (e *Element) Dispatch(ev *Event) {
	ev.Target = e
	if ev.Type == EventClick && e.Disabled() {
		return
	}
	deliver(e.listeners[ev.Type], ev)
}

// syncListen tells the client the merged forwarding options for typ.
func (e *Element) syncListen(typ string) {
	ls := e.listeners[typ]
	if len(ls) == 0 {
		e.emit(js.JS.Unlisten(e.key, typ))
		return
	}
	e.emit(js.JS.Listen(e.key, typ, mergeListenOptions(ls)...))
}

// OuterHTML renders the element.
func (e *Element) OuterHTML() string {
	var b strings.Builder
	if err := html.Render(&b, e.node); err != nil {
		return ""
	}
	return b.String()
}

func (e *Element) emit(c js.Command) {
	if e.key == "" || !e.Connected() {
		return
	}
	e.doc.record(c)
}

// keySubtree assigns keys to newly inserted elements.
func (d *Document) keySubtree(n *html.Node) {
	if n.Type == html.ElementNode && getAttr(n, KeyAttr) == "" {
		key := strconv.Itoa(d.nextKey)
		d.nextKey++
		setAttr(n, KeyAttr, key)
		el := d.wrap(n)
		el.key = key
		d.byKey[key] = el
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.keySubtree(c)
	}
}

func containsString(list []string, s string) bool {
	return indexString(list, s) >= 0
}

func indexString(list []string, s string) int {
	for i, x := range list {
		if x == s {
			return i
		}
	}
	return -1
}
