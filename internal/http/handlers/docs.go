package handlers

import (
	"fmt"
	"net/http"
)

// DocsHandler renders an interactive API reference backed by Stoplight
// Elements, pointed at the served OpenAPI document.
type DocsHandler struct {
	title    string
	specPath string
	theme    string // fixed theme when followSystem is false
	// followSystem switches the page theme with the OS preference.
	followSystem bool
}

// DocsOption configures a DocsHandler.
type DocsOption func(*DocsHandler)

// WithSystemTheme makes the page follow the OS color preference.
func WithSystemTheme() DocsOption {
	return func(h *DocsHandler) { h.followSystem = true }
}

// WithTheme pins the page to a fixed theme ("dark" or "light").
func WithTheme(theme string) DocsOption {
	return func(h *DocsHandler) {
		h.theme = theme
		h.followSystem = false
	}
}

// NewDocsHandler builds a docs page for the OpenAPI document at specPath.
// Defaults to following the system theme, falling back to dark.
func NewDocsHandler(title, specPath string, opts ...DocsOption) *DocsHandler {
	h := &DocsHandler{title: title, specPath: specPath, theme: "dark", followSystem: true}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

const systemThemeScript = `
    <script>
      const media = window.matchMedia('(prefers-color-scheme: dark)');
      const apply = dark => document.documentElement.setAttribute('data-theme', dark ? 'dark' : 'light');
      apply(media.matches);
      media.addEventListener('change', e => apply(e.matches));
    </script>`

const fixedThemeScript = `
    <script>
      document.documentElement.setAttribute('data-theme', '%s');
    </script>`

const docsPage = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
    <meta name="referrer" content="same-origin" />
    <title>%s</title>
    <link rel="stylesheet" href="https://unpkg.com/@stoplight/elements@8/styles.min.css" />
    <script src="https://unpkg.com/@stoplight/elements@8/web-components.min.js" crossorigin="anonymous"></script>
    <style>
      html[data-theme="dark"] { color-scheme: dark; }
      html[data-theme="dark"] body { background-color: #0f172a; }
      html[data-theme="dark"] .sl-elements {
        --color-canvas: #0f172a;
        --color-canvas-100: #0f172a;
        --color-canvas-200: #1e293b;
        --color-canvas-300: #334155;
        --color-border: #475569;
        --color-text: #e2e8f0;
        --color-text-heading: #f8fafc;
        --color-text-paragraph: #cbd5e1;
        --color-text-secondary: #94a3b8;
      }
      html[data-theme="light"] { color-scheme: light; }
      html[data-theme="light"] body { background-color: #ffffff; }
    </style>
    %s
  </head>
  <body style="margin: 0; height: 100vh;">
    <elements-api
      apiDescriptionUrl="%s"
      layout="sidebar"
      router="hash"
      tryItCredentialsPolicy="same-origin"
    />
  </body>
</html>`

func (h *DocsHandler) themeScript() string {
	if h.followSystem {
		return systemThemeScript
	}
	return fmt.Sprintf(fixedThemeScript, h.theme)
}

// ServeHTTP writes the documentation page.
func (h *DocsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, docsPage, h.title, h.themeScript(), h.specPath)
}
