package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/goccy/go-yaml"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds every prompt template the service sends upstream. Fields
// ending in "User" or "ResumeChatSystem" are text/template sources; the rest
// are used verbatim.
type Prompts struct {
	GreetingReply string `yaml:"greeting_reply"`
	EmptyReply    string `yaml:"empty_reply"`

	QuestionsSystem string `yaml:"questions_system"`
	QuestionsUser   string `yaml:"questions_user"`

	AnswerSystem string `yaml:"answer_system"`
	AnswerUser   string `yaml:"answer_user"`

	ResumeParseSystem string `yaml:"resume_parse_system"`
	ResumeParseUser   string `yaml:"resume_parse_user"`

	ResumeChatSystem string `yaml:"resume_chat_system"`

	templates map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// DefaultPrompts returns the embedded prompt set.
func DefaultPrompts() *Prompts {
	p, err := LoadPrompts(bytes.NewReader(defaultPromptsYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded prompts.yaml is invalid: %v", err))
	}
	return p
}

// LoadPromptsFile merges the prompts in path over the embedded defaults.
// An empty path returns the defaults.
func LoadPromptsFile(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompts file: %w", err)
	}
	defer f.Close()

	var overrides Prompts
	if err := yaml.NewDecoder(f).Decode(&overrides); err != nil {
		return nil, fmt.Errorf("failed to decode prompts file: %w", err)
	}

	base := DefaultPrompts()
	base.merge(&overrides)
	if err := base.compile(); err != nil {
		return nil, err
	}
	return base, nil
}

// LoadPrompts decodes a complete prompt set from reader.
func LoadPrompts(reader io.Reader) (*Prompts, error) {
	var p Prompts
	if err := yaml.NewDecoder(reader).Decode(&p); err != nil {
		return nil, err
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Prompts) merge(o *Prompts) {
	set := func(dst *string, src string) {
		if strings.TrimSpace(src) != "" {
			*dst = src
		}
	}
	set(&p.GreetingReply, o.GreetingReply)
	set(&p.EmptyReply, o.EmptyReply)
	set(&p.QuestionsSystem, o.QuestionsSystem)
	set(&p.QuestionsUser, o.QuestionsUser)
	set(&p.AnswerSystem, o.AnswerSystem)
	set(&p.AnswerUser, o.AnswerUser)
	set(&p.ResumeParseSystem, o.ResumeParseSystem)
	set(&p.ResumeParseUser, o.ResumeParseUser)
	set(&p.ResumeChatSystem, o.ResumeChatSystem)
}

// Validate reports missing prompts.
func (p *Prompts) Validate() error {
	var errs []error
	required := map[string]string{
		"greeting_reply":      p.GreetingReply,
		"empty_reply":         p.EmptyReply,
		"questions_system":    p.QuestionsSystem,
		"questions_user":      p.QuestionsUser,
		"answer_system":       p.AnswerSystem,
		"answer_user":         p.AnswerUser,
		"resume_parse_system": p.ResumeParseSystem,
		"resume_parse_user":   p.ResumeParseUser,
		"resume_chat_system":  p.ResumeChatSystem,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("prompt %q is empty", key))
		}
	}
	return errors.Join(errs...)
}

func (p *Prompts) compile() error {
	if err := p.Validate(); err != nil {
		return err
	}

	sources := map[string]string{
		"questions_user":     p.QuestionsUser,
		"answer_user":        p.AnswerUser,
		"resume_parse_user":  p.ResumeParseUser,
		"resume_chat_system": p.ResumeChatSystem,
	}
	p.templates = make(map[string]*template.Template, len(sources))
	for name, src := range sources {
		tmpl, err := template.New(name).Funcs(templateFuncs).Parse(src)
		if err != nil {
			return fmt.Errorf("prompt %q: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return nil
}

// Render executes the named template prompt with data.
func (p *Prompts) Render(name string, data any) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
