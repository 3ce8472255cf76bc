// Package prompt holds the assistant profile: the instruction template the
// question is embedded into, the sampling parameters, and the page copy.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/ashureev/lippe-assistant/internal/gemini"
	"gopkg.in/yaml.v3"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

// Profile describes one assistant persona.
type Profile struct {
	Title           string                  `yaml:"title"`
	Greeting        string                  `yaml:"greeting"`
	Placeholder     string                  `yaml:"placeholder"`
	QuestionHeading string                  `yaml:"question_heading"`
	AnswerHeading   string                  `yaml:"answer_heading"`
	SubmitLabel     string                  `yaml:"submit_label"`
	BusyLabel       string                  `yaml:"busy_label"`
	Footer          string                  `yaml:"footer"`
	Generation      gemini.GenerationConfig `yaml:"generation"`
	Template        string                  `yaml:"template"`

	tmpl *template.Template
}

// Default returns the embedded Bad Lippspringe profile.
func Default() (*Profile, error) {
	return Parse(defaultProfileYAML)
}

// Load reads a profile from path, or the embedded default when path is empty.
// Fields missing from the file keep the default values.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML profile layered over the embedded default.
func Parse(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := yaml.Unmarshal(defaultProfileYAML, p); err != nil {
		return nil, fmt.Errorf("decode default profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if strings.TrimSpace(p.Template) == "" {
		return nil, fmt.Errorf("profile template cannot be empty")
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(p.Template)
	if err != nil {
		return nil, fmt.Errorf("parse profile template: %w", err)
	}
	p.tmpl = tmpl
	return p, nil
}

// Render embeds the raw question into the instruction template.
func (p *Profile) Render(question string) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, struct{ Question string }{Question: question}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
