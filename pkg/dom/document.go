// Package dom is a server-side mirror of the browser DOM for one page.
//
// A Document is parsed from the same HTML the browser received. Every
// element carries a stable key (the data-sf-key attribute) assigned in
// document order, so the server and the client runtime address the same
// nodes. Mutations update the mirror and are recorded as js.Commands that
// the live runtime flushes to the client. Event listeners are registered
// here and return dispose handles; the runtime forwards only the events
// somebody listens for.
//
// A Document is not safe for concurrent use. The live runtime confines
// each document to its connection's event loop.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/gabrielmiguelok/stepform/pkg/dispose"
	"github.com/gabrielmiguelok/stepform/pkg/js"
)

// KeyAttr is the attribute holding each element's stable key.
const KeyAttr = "data-sf-key"

// Common dom errors.
var (
	ErrInvalidSelector = errors.New("invalid selector")
	ErrNoDocument      = errors.New("document has no root element")
)

// Document is the mirror of one page.
type Document struct {
	root     *html.Node
	elements map[*html.Node]*Element
	byKey    map[string]*Element
	nextKey  int

	listeners     map[string][]*listener
	listenerCount int

	patches js.Commands
}

// Parse builds a Document from HTML and assigns element keys.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if root.FirstChild == nil {
		return nil, ErrNoDocument
	}

	d := &Document{
		root:      root,
		elements:  make(map[*html.Node]*Element),
		byKey:     make(map[string]*Element),
		listeners: make(map[string][]*listener),
	}
	d.assignKeys(root)
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Annotate parses HTML and renders it back with element keys. The HTTP
// layer serves annotated pages so the browser sees the same keys the live
// runtime assigns.
func Annotate(src []byte) ([]byte, error) {
	d, err := Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// assignKeys walks n in document order and keys every element node.
func (d *Document) assignKeys(n *html.Node) {
	if n.Type == html.ElementNode {
		key := strconv.Itoa(d.nextKey)
		d.nextKey++
		setAttr(n, KeyAttr, key)
		el := &Element{doc: d, node: n, key: key}
		d.elements[n] = el
		d.byKey[key] = el
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.assignKeys(c)
	}
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// Body returns the body element, or nil.
func (d *Document) Body() *Element {
	return d.QuerySelector("body")
}

// ElementByKey returns the element carrying key, or nil.
func (d *Document) ElementByKey(key string) *Element {
	return d.byKey[key]
}

// GetElementByID returns the first element whose id attribute equals id.
func (d *Document) GetElementByID(id string) *Element {
	var found *html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && getAttr(n, "id") == id {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(d.root)
	return d.wrap(found)
}

// QuerySelector returns the first element matching sel, or nil. An
// invalid selector matches nothing.
func (d *Document) QuerySelector(sel string) *Element {
	s, err := Compile(sel)
	if err != nil {
		return nil
	}
	return d.wrap(s.matchFirst(d.root))
}

// QuerySelectorAll returns every element matching sel, in document order.
func (d *Document) QuerySelectorAll(sel string) []*Element {
	s, err := Compile(sel)
	if err != nil {
		return nil
	}
	return d.wrapAll(s.matchAll(d.root))
}

// CreateElement returns a new detached element. It gets a key when it is
// appended to the document.
func (d *Document) CreateElement(tag string) *Element {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(tag)),
		Data:     tag,
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

// AddEventListener registers a document-level listener, used for page
// lifecycle events.
func (d *Document) AddEventListener(typ string, fn Listener, opts ...ListenOption) dispose.Handle {
	l := &listener{fn: fn}
	for _, opt := range opts {
		opt(&l.opts)
	}
	d.listeners[typ] = append(d.listeners[typ], l)
	d.listenerCount++

	return dispose.Once(func() {
		if removeListener(d.listeners, typ, l) {
			d.listenerCount--
		}
	})
}

// Dispatch delivers a document-level event to its listeners.
func (d *Document) Dispatch(ev *Event) {
	deliver(d.listeners[ev.Type], ev)
}

// ListenerCount returns the number of live registrations on the document
// and all of its elements.
func (d *Document) ListenerCount() int {
	return d.listenerCount
}

// Swap replaces the page content with next's tree, as a client-side
// navigation does. Document-level listeners survive; element listeners
// that were not disposed stay counted against the old elements.
func (d *Document) Swap(next *Document) {
	d.root = next.root
	d.nextKey = next.nextKey
	d.elements = make(map[*html.Node]*Element, len(next.elements))
	d.byKey = make(map[string]*Element, len(next.byKey))
	for n, el := range next.elements {
		el.doc = d
		d.elements[n] = el
		if el.key != "" {
			d.byKey[el.key] = el
		}
	}
}

// SetValues records input values reported by the client, keyed by element
// key. No patches are emitted.
func (d *Document) SetValues(values map[string]string) {
	for key, v := range values {
		if el := d.byKey[key]; el != nil {
			el.setProp("value", v)
		}
	}
}

// TakePatches returns and clears the recorded patch commands.
func (d *Document) TakePatches() js.Commands {
	p := d.patches
	d.patches = nil
	return p
}

// PendingPatches returns the number of recorded, unflushed commands.
func (d *Document) PendingPatches() int {
	return len(d.patches)
}

func (d *Document) record(c js.Command) {
	d.patches = append(d.patches, c)
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n, key: getAttr(n, KeyAttr)}
	d.elements[n] = el
	return el
}

func (d *Document) wrapAll(nodes []*html.Node) []*Element {
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.wrap(n))
	}
	return out
}

func removeListener(m map[string][]*listener, typ string, l *listener) bool {
	ls := m[typ]
	for i, x := range ls {
		if x == l {
			l.removed = true
			m[typ] = append(ls[:i:i], ls[i+1:]...)
			if len(m[typ]) == 0 {
				delete(m, typ)
			}
			return true
		}
	}
	return false
}

// deliver runs listeners over a copy of ls, so listeners may add or remove
// registrations mid-delivery. A listener removed before its turn is
// skipped.
func deliver(ls []*listener, ev *Event) {
	list := make([]*listener, len(ls))
	copy(list, ls)
	for _, l := range list {
		if !l.removed && l.accepts(ev) {
			l.fn(ev)
		}
	}
}

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

func removeAttr(n *html.Node, name string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}
