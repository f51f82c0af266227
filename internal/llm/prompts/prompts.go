package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pavelanni/teachmate/internal/model"
)

// MaxChatHistory is the number of resolved turns included in a chat prompt.
const MaxChatHistory = 6

//go:embed templates/*.tmpl
var embedded embed.FS

var funcs = template.FuncMap{
	"join": strings.Join,
	"deref": func(n *int) int {
		if n == nil {
			return 0
		}
		return *n
	},
}

// Builder renders typed requests into prompt strings, one template per feature kind.
type Builder struct {
	templates map[model.FeatureKind]*template.Template
}

// New loads the built-in templates.
func New() (*Builder, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// Load parses "<kind>.tmpl" for every feature kind from fsys.
func Load(fsys fs.FS) (*Builder, error) {
	b := &Builder{templates: make(map[model.FeatureKind]*template.Template)}
	for _, k := range model.AllKinds {
		name := string(k) + ".tmpl"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt template %s: %w", name, err)
		}
		tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		b.templates[k] = tmpl
	}
	return b, nil
}

// NewWithOverrides loads the built-in templates and replaces any of them that
// have a "<kind>.tmpl" file in dir. An empty dir means no overrides.
func NewWithOverrides(dir string) (*Builder, error) {
	b, err := New()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return b, nil
	}
	for _, k := range model.AllKinds {
		path := filepath.Join(dir, string(k)+".tmpl")
		content, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read prompt override %s: %w", path, err)
		}
		tmpl, err := template.New(filepath.Base(path)).Funcs(funcs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt override %s: %w", path, err)
		}
		b.templates[k] = tmpl
	}
	return b, nil
}

// Build renders the prompt for req. Field values are embedded verbatim.
func (b *Builder) Build(req model.Request) (string, error) {
	if req == nil {
		return "", errors.New("nil request")
	}
	tmpl, ok := b.templates[req.Kind()]
	if !ok {
		return "", errors.New("no prompt template for kind: " + string(req.Kind()))
	}

	var data any = req
	if chat, ok := req.(model.ChatRequest); ok {
		chat.History = recentResolved(chat.History, MaxChatHistory)
		data = chat
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", req.Kind(), err)
	}
	return buf.String(), nil
}

// recentResolved returns up to n of the latest turns that already have a
// successful reply.
func recentResolved(turns []model.ChatTurn, n int) []model.ChatTurn {
	var out []model.ChatTurn
	for _, t := range turns {
		if t.Pending() || t.Failed {
			continue
		}
		out = append(out, t)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
