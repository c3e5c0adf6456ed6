// Package site renders the marketing site pages. Pages are built from Go
// code with no external CSS framework; the home page carries the stepper
// contact form described by a forms.Definition.
//
// The same bytes feed the HTTP response (after key annotation) and the
// live connection's DOM mirror, so rendering must be deterministic.
package site

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gabrielmiguelok/stepform/pkg/forms"
)

// ErrNotFound is returned for paths the site does not serve.
var ErrNotFound = errors.New("site: page not found")

// ScriptPath is where the client runtime is served.
const ScriptPath = "/_stepform/stepform.js"

// PageConfig holds the metadata rendered into a page head.
type PageConfig struct {
	// Title is the page title (shown in browser tab and search results)
	Title string
	// Description is the meta description for SEO
	Description string
	// URL is the canonical URL of the page
	URL string
	// Language is the page language (default: "es")
	Language string
	// ThemeColor is the mobile browser theme color
	ThemeColor string
}

// NavLink represents a navigation link.
type NavLink struct {
	Label string
	URL   string
}

// Page is one routable page.
type Page struct {
	Path        string
	Title       string
	Description string
	// Body renders the main content.
	Body func(s *Site) string
	// Nav lists the page in the navigation bar.
	Nav bool
}

// Site renders the site's pages.
type Site struct {
	name  string
	def   *forms.Definition
	pages map[string]Page
	order []string
}

// Option configures a Site.
type Option func(*Site)

// WithName sets the brand shown in the navbar and titles.
func WithName(name string) Option {
	return func(s *Site) {
		s.name = name
	}
}

// WithPage adds or replaces a page.
func WithPage(p Page) Option {
	return func(s *Site) {
		s.add(p)
	}
}

// New creates the site with its default pages. def describes the contact
// form on the home page; nil uses the built-in contact form.
func New(def *forms.Definition, opts ...Option) *Site {
	if def == nil {
		def = forms.DefaultDefinition()
	}
	s := &Site{
		name:  "Estudio Norte",
		def:   def,
		pages: make(map[string]Page),
	}
	for _, p := range defaultPages() {
		s.add(p)
	}
	for _, opt := range opts {
		opt(s)
	}

	// A custom form action gets the thank-you page too.
	if strings.HasPrefix(def.Action, "/") && !s.Has(def.Action) {
		thanks := s.pages["/gracias"]
		thanks.Path = normalize(def.Action)
		s.add(thanks)
	}
	return s
}

func (s *Site) add(p Page) {
	if _, ok := s.pages[p.Path]; !ok {
		s.order = append(s.order, p.Path)
	}
	s.pages[p.Path] = p
}

// Definition returns the contact form definition.
func (s *Site) Definition() *forms.Definition {
	return s.def
}

// Paths returns the served paths, sorted.
func (s *Site) Paths() []string {
	paths := make([]string, 0, len(s.pages))
	for p := range s.pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Has reports whether path is served.
func (s *Site) Has(path string) bool {
	_, ok := s.pages[normalize(path)]
	return ok
}

// Render renders the full HTML document for path.
func (s *Site) Render(path string) ([]byte, error) {
	p, ok := s.pages[normalize(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	cfg := PageConfig{
		Title:       p.Title + " | " + s.name,
		Description: p.Description,
		URL:         p.Path,
		Language:    "es",
	}

	var sb strings.Builder
	sb.WriteString(renderNavbar(s.name, s.navLinks(), p.Path))
	sb.WriteString(`<main id="main-content" class="container section">`)
	sb.WriteString("\n")
	sb.WriteString(p.Body(s))
	sb.WriteString("</main>\n")
	sb.WriteString(renderFooter(s.name, s.navLinks()))

	return []byte(RenderDocument(cfg, sb.String())), nil
}

func (s *Site) navLinks() []NavLink {
	var links []NavLink
	for _, path := range s.order {
		if p := s.pages[path]; p.Nav {
			links = append(links, NavLink{Label: p.Title, URL: p.Path})
		}
	}
	return links
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
