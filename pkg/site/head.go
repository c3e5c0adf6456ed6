package site

import (
	"fmt"
	"html"
	"strings"
)

// RenderHead generates the <head> section with SEO and Open Graph tags,
// the inline stylesheet and the client runtime.
func RenderHead(cfg PageConfig) string {
	var sb strings.Builder

	themeColor := cfg.ThemeColor
	if themeColor == "" {
		themeColor = Colors["primary"]
	}

	sb.WriteString("<head>\n")

	// Essential meta tags
	sb.WriteString(`<meta charset="UTF-8">` + "\n")
	sb.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1.0">` + "\n")

	sb.WriteString(fmt.Sprintf("<title>%s</title>\n", html.EscapeString(cfg.Title)))

	if cfg.Description != "" {
		sb.WriteString(fmt.Sprintf(`<meta name="description" content="%s">`+"\n", html.EscapeString(cfg.Description)))
	}
	if cfg.URL != "" {
		sb.WriteString(fmt.Sprintf(`<link rel="canonical" href="%s">`+"\n", html.EscapeString(cfg.URL)))
	}
	sb.WriteString(fmt.Sprintf(`<meta name="theme-color" content="%s">`+"\n", themeColor))

	sb.WriteString(renderOpenGraph(cfg))

	sb.WriteString("<style>\n")
	sb.WriteString(RenderStyles())
	sb.WriteString("\n</style>\n")

	// The runtime lives in the head so body swaps keep it loaded.
	sb.WriteString(fmt.Sprintf(`<script src="%s" defer></script>`+"\n", ScriptPath))

	sb.WriteString("</head>\n")

	return sb.String()
}

func renderOpenGraph(cfg PageConfig) string {
	var sb strings.Builder

	sb.WriteString(`<meta property="og:type" content="website">` + "\n")

	if cfg.Title != "" {
		sb.WriteString(fmt.Sprintf(`<meta property="og:title" content="%s">`+"\n", html.EscapeString(cfg.Title)))
	}
	if cfg.Description != "" {
		sb.WriteString(fmt.Sprintf(`<meta property="og:description" content="%s">`+"\n", html.EscapeString(cfg.Description)))
	}
	sb.WriteString(fmt.Sprintf(`<meta property="og:locale" content="%s">`+"\n", language(cfg)))

	return sb.String()
}

// RenderDocument wraps content in a complete HTML document.
func RenderDocument(cfg PageConfig, bodyContent string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="%s">
%s<body>
%s
</body>
</html>`, language(cfg), RenderHead(cfg), bodyContent)
}

func language(cfg PageConfig) string {
	if cfg.Language == "" {
		return "es"
	}
	return cfg.Language
}
