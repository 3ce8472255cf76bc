package render

import (
	"strings"
	"testing"

	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/stretchr/testify/assert"
)

const table = `<table class="info"><tr><th>Ort</th><td>Kurpark</td></tr></table>`

func TestSanitizingPolicyKeepsTables(t *testing.T) {
	p := NewPolicy(true)
	out := string(p.HTML(form.Markup(table)))

	assert.Contains(t, out, `<table class="info">`)
	assert.Contains(t, out, "<td>Kurpark</td>")
}

func TestSanitizingPolicyDropsScripts(t *testing.T) {
	p := NewPolicy(true)
	out := string(p.HTML(form.Markup(`<b>hi</b><script>alert(1)</script><a href="javascript:x()" onclick="y()">z</a>`)))

	assert.Contains(t, out, "<b>hi</b>")
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript:")
}

func TestRawPolicyPassesThrough(t *testing.T) {
	p := NewPolicy(false)
	in := `<script>alert(1)</script>`
	assert.Equal(t, in, string(p.HTML(form.Markup(in))))
	assert.False(t, p.Sanitizing())
}

func TestTextStripsMarkup(t *testing.T) {
	p := NewPolicy(true)
	out := p.Text(form.Markup(table))
	assert.False(t, strings.ContainsAny(out, "<>"))
	assert.Contains(t, out, "Kurpark")
}
