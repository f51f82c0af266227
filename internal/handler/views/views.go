// Package views renders the HTML pages. Every page is a templ component
// sharing one embedded html/template layout; the small pages are plain
// components placed into that layout.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"slices"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"github.com/pavelanni/teachmate/internal/export"
	appI18n "github.com/pavelanni/teachmate/internal/i18n"
	"github.com/pavelanni/teachmate/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"component", "index", "feature", "chat", "documents", "qa", "feedback", "profile",
}

var pages = parsePages()

// staticFuncs do not depend on the request.
var staticFuncs = template.FuncMap{
	"paragraphs": export.Paragraphs,
	"choices":    choices,
	"has":        func(vals []string, s string) bool { return slices.Contains(vals, s) },
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"bytes": func(n int64) string {
		if n < 0 {
			return ""
		}
		return humanize.Bytes(uint64(n))
	},
	"deref": func(n *int) int {
		if n == nil {
			return 0
		}
		return *n
	},
	"ratings": func() []int { return []int{1, 2, 3, 4, 5} },
	"languages": func() []string {
		var out []string
		for _, tag := range appI18n.Supported() {
			base, _ := tag.Base()
			out = append(out, base.String())
		}
		return out
	},
}

// contextFuncs are bound per render to the request context. The
// placeholders registered at parse time are replaced on a clone.
func contextFuncs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t": func(id string) string { return appI18n.T(ctx, id) },
		"tp": func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				data[fmt.Sprint(kv[i])] = kv[i+1]
			}
			return appI18n.Td(ctx, id, data)
		},
		"kindLabel": func(k model.FeatureKind) string { return appI18n.T(ctx, "Kind_"+string(k)) },
		"path":      func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf":      func() string { return model.CSRFTokenFromContext(ctx) },
		"lang":      func() string { return appI18n.Lang(ctx) },
		"component": func(c templ.Component) (template.HTML, error) { return renderComponent(ctx, c) },
		"user": func() string {
			if u := model.UserFromContext(ctx); u != nil {
				if u.DisplayName != "" {
					return u.DisplayName
				}
				return u.Username
			}
			return ""
		},
	}
}

func parsePages() map[string]*template.Template {
	funcs := template.FuncMap{}
	for k, v := range staticFuncs {
		funcs[k] = v
	}
	for k, v := range contextFuncs(context.Background()) {
		funcs[k] = v
	}

	out := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		out[name] = template.Must(template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/partials.html", "templates/"+name+".html"))
	}
	return out
}

type partialCtxKey struct{}

// WithPartial marks ctx so pages render only their content block, for
// requests that swap a fragment into an already loaded page.
func WithPartial(ctx context.Context) context.Context {
	return context.WithValue(ctx, partialCtxKey{}, true)
}

func isPartial(ctx context.Context) bool {
	p, _ := ctx.Value(partialCtxKey{}).(bool)
	return p
}

func page(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		base, ok := pages[name]
		if !ok {
			return fmt.Errorf("unknown page %q", name)
		}
		tmpl, err := base.Clone()
		if err != nil {
			return fmt.Errorf("clone page %s: %w", name, err)
		}
		tmpl.Funcs(contextFuncs(ctx))

		entry := "layout"
		if isPartial(ctx) {
			entry = "content"
		}
		if err := tmpl.ExecuteTemplate(w, entry, data); err != nil {
			return fmt.Errorf("render page %s: %w", name, err)
		}
		return nil
	})
}

func choices(name string) []string {
	switch name {
	case "class_duration":
		return model.ClassDurations
	case "student_level":
		return model.StudentLevels
	case "question_type":
		return model.QuestionTypes
	case "bloom_level":
		return model.BloomLevels
	case "resource_format":
		return model.ResourceFormats
	case "profile_role":
		return model.ProfileRoles
	}
	return nil
}
