package views

import (
	"context"
	"html/template"
	"io"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/teachmate/internal/i18n"
	"github.com/pavelanni/teachmate/internal/model"
)

// renderComponent renders c for use inside a template page.
func renderComponent(ctx context.Context, c templ.Component) (template.HTML, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return template.HTML(sb.String()), nil
}

func writeAll(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

func errorAlert(msg string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if msg == "" {
			return nil
		}
		return writeAll(w, `<div class="alert error" role="alert">`, templ.EscapeString(msg), `</div>`)
	})
}

func csrfField() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeAll(w, `<input type="hidden" name="csrf_token" value="`,
			templ.EscapeString(model.CSRFTokenFromContext(ctx)), `">`)
	})
}

func loginForm(errMsg string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t := func(id string) string { return templ.EscapeString(appI18n.T(ctx, id)) }
		err := writeAll(w,
			`<form class="card" method="post" action="`, templ.EscapeString(model.BasePathFromContext(ctx)+"/login"),
			`" style="max-width:24rem;margin:3rem auto"><h1>`, t("AppTitle"), `</h1><p>`, t("LoginPrompt"), `</p>`)
		if err != nil {
			return err
		}
		if err := errorAlert(errMsg).Render(ctx, w); err != nil {
			return err
		}
		if err := csrfField().Render(ctx, w); err != nil {
			return err
		}
		return writeAll(w,
			`<label for="username">`, t("Username"), `</label>`,
			`<input type="text" id="username" name="username" autocomplete="username" required autofocus>`,
			`<label for="password">`, t("Password"), `</label>`,
			`<input type="password" id="password" name="password" autocomplete="current-password" required>`,
			`<p><button type="submit">`, t("Login"), `</button></p></form>`)
	})
}

func errorContent(d ErrorData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := errorAlert(d.Message).Render(ctx, w); err != nil {
			return err
		}
		return writeAll(w,
			`<p><a href="`, templ.EscapeString(model.BasePathFromContext(ctx)+"/"), `">`,
			templ.EscapeString(appI18n.T(ctx, "NavHome")), `</a></p>`)
	})
}
