package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPollerQueue is the queue shared by pollers that do not name one.
const DefaultPollerQueue = "pollers"

// Poller declares a command run periodically whose latest output is cached.
//
// Change, when set, makes the poller writable: it is a text/template rendered
// with the requested value as {{.Value}}. The "quote" function wraps its
// argument in single quotes for a POSIX shell.
type Poller struct {
	Name          string        `yaml:"name"`
	Queue         string        `yaml:"queue"`
	Executor      string        `yaml:"executor"`
	Command       string        `yaml:"command"`
	Period        time.Duration `yaml:"period"`
	Timeout       time.Duration `yaml:"timeout"`
	Change        string        `yaml:"change"`
	ChangeTimeout time.Duration `yaml:"change_timeout"`
}

var changeFuncs = template.FuncMap{
	"quote": func(s string) string {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	},
}

// Writable reports whether the poller declares a change command.
func (p Poller) Writable() bool {
	return p.Change != ""
}

// ChangeCommand renders the change command for value. The result is trimmed
// and may be empty.
func (p Poller) ChangeCommand(value string) (string, error) {
	tmpl, err := p.changeTemplate()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Value string }{value}); err != nil {
		return "", fmt.Errorf("render change command: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func (p Poller) changeTemplate() (*template.Template, error) {
	tmpl, err := template.New(p.Name).Funcs(changeFuncs).Option("missingkey=error").Parse(p.Change)
	if err != nil {
		return nil, fmt.Errorf("parse change command: %w", err)
	}
	return tmpl, nil
}

type pollersFile struct {
	Pollers []Poller `yaml:"pollers"`
}

// LoadPollers reads poller declarations from a YAML file. An empty path
// yields no pollers.
func LoadPollers(path string) ([]Poller, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pollers file: %w", err)
	}
	return ParsePollers(data)
}

// ParsePollers decodes and validates poller declarations.
func ParsePollers(data []byte) ([]Poller, error) {
	var f pollersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pollers: %w", err)
	}

	seen := make(map[string]bool, len(f.Pollers))
	var errs []error
	for i := range f.Pollers {
		p := &f.Pollers[i]
		if p.Queue == "" {
			p.Queue = DefaultPollerQueue
		}
		if p.Timeout < 0 {
			p.Timeout = 0
		}
		if p.ChangeTimeout < 0 {
			p.ChangeTimeout = 0
		}

		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("poller %d: name is required", i))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("poller %q: duplicate name", p.Name))
		}
		seen[p.Name] = true

		if p.Executor == "" {
			errs = append(errs, fmt.Errorf("poller %q: executor is required", p.Name))
		}
		if p.Command == "" {
			errs = append(errs, fmt.Errorf("poller %q: command is required", p.Name))
		}
		if p.Period <= 0 {
			errs = append(errs, fmt.Errorf("poller %q: period must be positive", p.Name))
		}
		if p.Writable() {
			if _, err := p.changeTemplate(); err != nil {
				errs = append(errs, fmt.Errorf("poller %q: %w", p.Name, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return f.Pollers, nil
}
