// Package web embeds the page template and static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// PageData is everything the page template renders.
type PageData struct {
	Title           string
	Placeholder     string
	QuestionHeading string
	AnswerHeading   string
	SubmitLabel     string
	BusyLabel       string
	Footer          string

	SessionID string
	Draft     string
	LastAsked string
	Answer    template.HTML
	Error     string
	InFlight  bool

	RefreshSeconds int
}

// Page renders the assistant page.
type Page struct {
	tmpl *template.Template
}

// NewPage parses the embedded page template.
func NewPage() (*Page, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Page{tmpl: tmpl}, nil
}

// Render writes the page. The template is executed into a buffer first so
// a failure never produces a half-written page.
func (p *Page) Render(w http.ResponseWriter, status int, data PageData) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler serves the embedded assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
