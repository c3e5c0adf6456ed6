package dom

import (
	"fmt"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector group.
type Selector struct {
	source string
	sel    cascadia.Selector
}

var selectorCache sync.Map // string -> Selector

// Compile parses a CSS selector group such as
// `input[type="text"], input[type="email"]`.
func Compile(source string) (Selector, error) {
	if cached, ok := selectorCache.Load(source); ok {
		return cached.(Selector), nil
	}

	sel, err := cascadia.Compile(source)
	if err != nil {
		return Selector{}, fmt.Errorf("%w %q: %v", ErrInvalidSelector, source, err)
	}

	s := Selector{source: source, sel: sel}
	selectorCache.Store(source, s)
	return s, nil
}

// String returns the selector source.
func (s Selector) String() string {
	return s.source
}

// matchAll returns the element descendants of n matching s, in document
// order. n itself is excluded.
func (s Selector) matchAll(n *html.Node) []*html.Node {
	if s.sel == nil || n == nil {
		return nil
	}
	var out []*html.Node
	for _, m := range s.sel.MatchAll(n) {
		if m != n {
			out = append(out, m)
		}
	}
	return out
}

func (s Selector) matchFirst(n *html.Node) *html.Node {
	all := s.matchAll(n)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// Matches reports whether el matches s.
func (s Selector) Matches(el *Element) bool {
	if s.sel == nil || el == nil {
		return false
	}
	return s.sel.Match(el.node)
}
