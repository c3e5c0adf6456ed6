package site

import (
	"fmt"
	"sort"
	"strings"
)

// Color palette (WCAG 2.1 AA contrast on the light background)
var Colors = map[string]string{
	"bg":        "#FAFAF7",
	"bgAlt":     "#F1F0EA",
	"text":      "#1C1B18",
	"textMuted": "#55534C",
	"border":    "#D9D6CC",

	"primary":   "#1F4E79",
	"accent":    "#2E7D6B",
	"carnation": "#D6454B", // error messages (5:1 on bg)
}

// Typography uses system font stack for instant loading
var FontFamily = `system-ui, -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif`

// RenderStyles generates the site stylesheet.
func RenderStyles() string {
	var sb strings.Builder
	sb.WriteString(cssReset())
	sb.WriteString(cssVariables(Colors))
	sb.WriteString(cssBase())
	sb.WriteString(cssLayout())
	sb.WriteString(cssButtons())
	sb.WriteString(cssForm())
	sb.WriteString(cssAccessibility())
	return sb.String()
}

func cssReset() string {
	return `
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
html{-webkit-text-size-adjust:100%;scroll-behavior:smooth}
body{line-height:1.6;-webkit-font-smoothing:antialiased}
input,button,textarea,select{font:inherit}
a{color:inherit;text-decoration:none}
ul,ol{list-style:none}
`
}

// cssVariables emits one custom property per color, sorted so every render
// of a page is byte-identical.
func cssVariables(colors map[string]string) string {
	names := make([]string, 0, len(colors))
	for name := range colors {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]string, 0, len(names))
	for _, name := range names {
		vars = append(vars, fmt.Sprintf("--color-%s:%s", name, colors[name]))
	}
	return fmt.Sprintf(`:root{%s;--font-sans:%s}`, strings.Join(vars, ";"), FontFamily)
}

func cssBase() string {
	return `
body{font-family:var(--font-sans);background:var(--color-bg);color:var(--color-text);min-height:100vh}
h1{font-size:clamp(2rem,5vw,3.25rem);font-weight:800;letter-spacing:-0.02em;line-height:1.1;margin-bottom:1rem}
h2{font-size:1.5rem;font-weight:700;margin-bottom:0.75rem}
p{color:var(--color-textMuted)}
`
}

func cssLayout() string {
	return `
.container{width:100%;max-width:960px;margin:0 auto;padding:0 1rem}
.section{padding:3rem 0}
.nav{padding:1rem 0;border-bottom:1px solid var(--color-border)}
.nav-inner{display:flex;align-items:center;justify-content:space-between;gap:1rem}
.nav-links{display:flex;gap:0.5rem;flex-wrap:wrap}
.nav-links a[aria-current="page"]{color:var(--color-primary);font-weight:600}
.logo{font-size:1.1rem;font-weight:800}
.footer{border-top:1px solid var(--color-border);padding:2rem 0;text-align:center}
.footer nav{display:flex;gap:1rem;justify-content:center;margin-bottom:0.5rem}
`
}

func cssButtons() string {
	// 44px minimum tap target (2.75rem)
	return `
.btn{display:inline-flex;align-items:center;justify-content:center;padding:0.75rem 1.25rem;font-weight:600;border-radius:0.5rem;border:none;cursor:pointer;min-height:2.75rem;transition:opacity 0.2s ease}
.btn:focus-visible{outline:2px solid var(--color-primary);outline-offset:2px}
.btn-primary{background:var(--color-primary);color:#FFFFFF}
.btn-ghost{background:transparent;color:var(--color-textMuted)}
.btn:disabled,.btn.disabled{opacity:0.5;cursor:not-allowed}
`
}

// cssForm styles the stepper: only the active step is shown, and it fades
// in so focus can wait for the transition.
func cssForm() string {
	return `
.stepper{max-width:560px}
#progress{width:100%;height:0.5rem;margin-bottom:1.5rem;accent-color:var(--color-accent)}
.step{transition:opacity 0.3s ease}
.step.hidden,.hidden{display:none}
.step.active{display:block;animation:step-in 0.3s ease}
@keyframes step-in{from{opacity:0}to{opacity:1}}
.step label{display:block;font-size:1.25rem;font-weight:600;margin-bottom:0.75rem}
.input-container input,.input-container textarea{width:100%;padding:0.75rem;border:1px solid var(--color-border);border-radius:0.5rem;background:#FFFFFF}
.input-container textarea{min-height:8rem;resize:vertical}
.step-actions{display:flex;gap:0.75rem;margin-top:1.25rem}
.text-carnation{color:var(--color-carnation)}
.mt-2{margin-top:0.5rem}
.font-general-sans{font-family:var(--font-sans)}
.text-\[15px\]{font-size:15px}
#success-advise{padding:1.5rem;border-radius:0.5rem;background:var(--color-bgAlt)}
`
}

func cssAccessibility() string {
	return `
.skip-link{position:absolute;left:-9999px}
.skip-link:focus{left:1rem;top:1rem;background:var(--color-bg);padding:0.5rem}
@media (prefers-reduced-motion:reduce){*{animation:none!important;transition:none!important}}
`
}
