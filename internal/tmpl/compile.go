// Package tmpl compiles wisp templates: literal markup with embedded
// <% statement %> and <%= expression %> tags, evaluated with the expr
// language.
//
// Templates are trusted, developer-authored code. Output is not escaped
// implicitly; use the escape builtin for untrusted values.
package tmpl

import (
	"strings"
	"sync"
)

// Template is a compiled template. It is immutable and safe for concurrent
// use.
type Template struct {
	source string
	nodes  []node
}

// Source returns the text the template was compiled from.
func (t *Template) Source() string {
	return t.source
}

// Execute renders the template with env's entries available as unqualified
// names. Builtins are shadowed by env entries of the same name.
func (t *Template) Execute(env map[string]any) (string, error) {
	s := make(scope, len(builtins)+len(env))
	for k, v := range builtins {
		s[k] = v
	}
	for k, v := range env {
		s[k] = v
	}

	var b strings.Builder
	if err := execAll(t.nodes, &b, s); err != nil {
		return "", err
	}
	return b.String(), nil
}

var cache = struct {
	sync.RWMutex
	templates map[string]*Template
}{templates: make(map[string]*Template)}

// Compile compiles text, returning the cached template when the same text
// was compiled before. Failed compilations are not cached.
func Compile(text string) (*Template, error) {
	cache.RLock()
	t, ok := cache.templates[text]
	cache.RUnlock()
	if ok {
		return t, nil
	}

	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	nodes, err := parse(tokens)
	if err != nil {
		return nil, err
	}

	cache.Lock()
	defer cache.Unlock()
	if existing, ok := cache.templates[text]; ok {
		return existing, nil
	}
	t = &Template{source: text, nodes: nodes}
	cache.templates[text] = t
	return t, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Template {
	t, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Render compiles text and executes it with env.
func Render(text string, env map[string]any) (string, error) {
	t, err := Compile(text)
	if err != nil {
		return "", err
	}
	return t.Execute(env)
}

// CacheSize returns the number of distinct compiled templates.
func CacheSize() int {
	cache.RLock()
	defer cache.RUnlock()
	return len(cache.templates)
}
