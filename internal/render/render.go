// Package render converts generated answers into page markup.
package render

import (
	"html/template"

	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/microcosm-cc/bluemonday"
)

// Policy is the single place where a form.Markup becomes template.HTML.
type Policy struct {
	sanitize bool
	ugc      *bluemonday.Policy
	strict   *bluemonday.Policy
}

// NewPolicy returns a policy. With sanitize false, answers are emitted
// exactly as the service returned them.
func NewPolicy(sanitize bool) *Policy {
	ugc := bluemonday.UGCPolicy()
	ugc.AllowAttrs("class").Globally()
	ugc.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption")

	return &Policy{
		sanitize: sanitize,
		ugc:      ugc,
		strict:   bluemonday.StrictPolicy(),
	}
}

// Sanitizing reports whether HTML output is filtered.
func (p *Policy) Sanitizing() bool {
	return p.sanitize
}

// HTML returns m as markup for the results panel.
func (p *Policy) HTML(m form.Markup) template.HTML {
	if !p.sanitize {
		//nolint:gosec // raw mode is an explicit opt-out via ANSWER_SANITIZE=false
		return template.HTML(m)
	}
	return template.HTML(p.ugc.Sanitize(string(m)))
}

// Text strips all markup from m, leaving readable text.
func (p *Policy) Text(m form.Markup) string {
	return p.strict.Sanitize(string(m))
}
