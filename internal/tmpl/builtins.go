package tmpl

import (
	"bytes"
	"encoding/json"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// builtins are available in every template in addition to the expr
// language's own functions.
var builtins = map[string]any{
	"escape": func(v any) string {
		return html.EscapeString(Stringify(v))
	},
	"title": func(v any) string {
		// Casers carry state and are not shared between goroutines.
		return cases.Title(language.Und).String(Stringify(v))
	},
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	},
	"markdown": func(v any) (string, error) {
		return Markdown(Stringify(v))
	},
}

// Raw HTML in the source is dropped.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown renders GitHub-flavored markdown to HTML.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
