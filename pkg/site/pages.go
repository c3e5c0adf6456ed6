package site

import (
	"fmt"
	"html"
	"strings"
)

// SwapAttr marks links the client runtime follows with a body swap
// instead of a full page load.
const SwapAttr = "data-swap"

func defaultPages() []Page {
	return []Page{
		{
			Path:        "/",
			Title:       "Inicio",
			Description: "Diseño y desarrollo web a medida. Escríbenos y cuéntanos tu proyecto.",
			Nav:         true,
			Body: func(s *Site) string {
				return `<h1>Hagamos algo juntos</h1>
<p>Diseñamos y construimos sitios rápidos y accesibles. Cuéntanos tu idea en tres pasos.</p>
` + RenderStepperForm(s.def, DefaultFormLabels())
			},
		},
		{
			Path:        "/servicios",
			Title:       "Servicios",
			Description: "Sitios corporativos, tiendas y aplicaciones web.",
			Nav:         true,
			Body: func(s *Site) string {
				return `<h1>Servicios</h1>
<ul>
<li><h2>Sitios corporativos</h2><p>Presencia clara, rápida y fácil de mantener.</p></li>
<li><h2>Comercio electrónico</h2><p>Catálogos y pagos integrados.</p></li>
<li><h2>Aplicaciones web</h2><p>Herramientas internas y paneles a medida.</p></li>
</ul>
` + swapLink("/", "Escríbenos")
			},
		},
		{
			Path:        "/nosotros",
			Title:       "Nosotros",
			Description: "Un equipo pequeño que cuida cada detalle.",
			Nav:         true,
			Body: func(s *Site) string {
				return `<h1>Nosotros</h1>
<p>Somos un estudio pequeño. Trabajamos con pocos clientes a la vez para dedicar a cada proyecto la atención que merece.</p>
`
			},
		},
		{
			Path:        "/gracias",
			Title:       "Gracias",
			Description: "Mensaje recibido.",
			Body: func(s *Site) string {
				return `<h1>¡Gracias!</h1>
<p>Recibimos tu mensaje y te responderemos muy pronto.</p>
` + swapLink("/", "Volver al inicio")
			},
		},
	}
}

func swapLink(url, label string) string {
	return fmt.Sprintf(`<a href="%s" class="btn btn-ghost" %s>%s</a>`+"\n",
		html.EscapeString(url), SwapAttr, html.EscapeString(label))
}

// renderNavbar generates the navigation bar. The link to current is
// marked with aria-current.
func renderNavbar(logo string, links []NavLink, current string) string {
	var sb strings.Builder

	sb.WriteString(`<a href="#main-content" class="skip-link">Ir al contenido</a>`)
	sb.WriteString("\n")
	sb.WriteString(`<nav class="nav" aria-label="Principal">`)
	sb.WriteString("\n")
	sb.WriteString(`<div class="container nav-inner">`)
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf(`<a href="/" class="logo" %s>%s</a>`, SwapAttr, html.EscapeString(logo)))
	sb.WriteString("\n")

	sb.WriteString(`<div class="nav-links">`)
	sb.WriteString("\n")
	for _, link := range links {
		aria := ""
		if link.URL == current {
			aria = ` aria-current="page"`
		}
		sb.WriteString(fmt.Sprintf(`<a href="%s" class="btn btn-ghost" %s%s>%s</a>`,
			html.EscapeString(link.URL),
			SwapAttr,
			aria,
			html.EscapeString(link.Label)))
		sb.WriteString("\n")
	}
	sb.WriteString("</div>\n")

	sb.WriteString("</div>\n")
	sb.WriteString("</nav>\n")

	return sb.String()
}

// renderFooter generates the page footer.
func renderFooter(name string, links []NavLink) string {
	var sb strings.Builder

	sb.WriteString(`<footer class="footer">`)
	sb.WriteString("\n")
	sb.WriteString(`<nav aria-label="Pie de página">`)
	for _, link := range links {
		sb.WriteString(fmt.Sprintf(`<a href="%s" %s>%s</a>`,
			html.EscapeString(link.URL), SwapAttr, html.EscapeString(link.Label)))
	}
	sb.WriteString("</nav>\n")
	sb.WriteString(fmt.Sprintf(`<p>© %s</p>`, html.EscapeString(name)))
	sb.WriteString("\n</footer>\n")

	return sb.String()
}
