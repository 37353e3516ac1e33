// Package ui embeds the HTML templates and static assets served by the
// HTML surface.
package ui

import (
	"embed"
	"html/template"
	"io/fs"
	"strings"
	"time"
)

//go:embed views/*.tmpl
var views embed.FS

//go:embed static
var static embed.FS

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"date": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Format("2006-01-02 15:04")
	},
	"add": func(a, b int) int { return a + b },
}

// Templates parses every view. Templates are addressed by file name, e.g.
// "user_form.tmpl".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(views, "views/*.tmpl")
}

// Static returns the stylesheet tree rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
