package prompts

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Style controls the output convention the model is asked to follow.
//
//   - StyleLabelled: numbered "1. Q: / A:" lists and "Score: / Correct Answer: /
//     Feedback:" blocks. This is the default.
//   - StyleStructured: the same content as a JSON object. The extractors accept
//     both, so switching styles never breaks parsing.
type Style string

const (
	StyleLabelled   Style = "labelled"
	StyleStructured Style = "structured"
)

// DefaultMaxContextChars caps how much document text is placed in a prompt.
const DefaultMaxContextChars = 12000

// Kind names one of the prompts the service sends.
type Kind string

const (
	KindSummary   Kind = "summary"
	KindAsk       Kind = "ask"
	KindChallenge Kind = "challenge"
	KindEvaluate  Kind = "evaluate"
)

// Data is the template input. Only the fields relevant to a Kind are set.
type Data struct {
	Document        string
	Question        string
	Count           int
	ReferenceAnswer string
	UserAnswer      string
}

// File is the YAML layout of an optional prompts file.
type File struct {
	Style           Style           `yaml:"style"`
	MaxContextChars int             `yaml:"max_context_chars"`
	Templates       map[Kind]string `yaml:"templates"`
}

// Builder renders prompts for each Kind.
type Builder struct {
	style           Style
	maxContextChars int
	templates       map[Kind]*template.Template
}

// New returns a Builder using the built-in templates for style.
func New(style Style) (*Builder, error) {
	return build(File{Style: style})
}

// Load reads a YAML prompts file. Templates missing from the file fall back to
// the built-ins for the file's style. An empty path yields the defaults.
func Load(path string) (*Builder, error) {
	if strings.TrimSpace(path) == "" {
		return New(StyleLabelled)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	return build(f)
}

func build(f File) (*Builder, error) {
	style := Style(strings.ToLower(strings.TrimSpace(string(f.Style))))
	switch style {
	case "":
		style = StyleLabelled
	case StyleLabelled, StyleStructured:
	default:
		return nil, fmt.Errorf("unknown prompt style %q", f.Style)
	}
	defaults := labelledTemplates
	if style == StyleStructured {
		defaults = structuredTemplates
	}
	b := &Builder{
		style:           style,
		maxContextChars: f.MaxContextChars,
		templates:       make(map[Kind]*template.Template, len(defaults)),
	}
	if b.maxContextChars <= 0 {
		b.maxContextChars = DefaultMaxContextChars
	}
	for kind, text := range defaults {
		if override := strings.TrimSpace(f.Templates[kind]); override != "" {
			text = override
		}
		tmpl, err := template.New(string(kind)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		b.templates[kind] = tmpl
	}
	for kind := range f.Templates {
		if _, ok := defaults[kind]; !ok {
			return nil, fmt.Errorf("unknown prompt template %q", kind)
		}
	}
	return b, nil
}

// Style reports the output convention this Builder asks for.
func (b *Builder) Style() Style {
	return b.style
}

// Render executes the template for kind. The document text is clipped to the
// configured context size.
func (b *Builder) Render(kind Kind, d Data) (string, error) {
	tmpl, ok := b.templates[kind]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", kind)
	}
	d.Document = clip(d.Document, b.maxContextChars)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", kind, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (b *Builder) Summary(doc string) (string, error) {
	return b.Render(KindSummary, Data{Document: doc})
}

func (b *Builder) Ask(doc, question string) (string, error) {
	return b.Render(KindAsk, Data{Document: doc, Question: question})
}

func (b *Builder) Challenge(doc string, count int) (string, error) {
	return b.Render(KindChallenge, Data{Document: doc, Count: count})
}

func (b *Builder) Evaluate(doc, question, reference, answer string) (string, error) {
	return b.Render(KindEvaluate, Data{Document: doc, Question: question, ReferenceAnswer: reference, UserAnswer: answer})
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
