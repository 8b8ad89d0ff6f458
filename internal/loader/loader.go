// Package loader reads declarative component definitions from *.wisp.yml
// files and registers them as custom elements.
//
// A definition file looks like:
//
//	tag: todo-list
//	data:
//	  draft: ""
//	  items: []
//	template: |
//	  <input on:input="Type" value="<%= data.draft %>">
//	  <button on:click="Add">Add</button>
//	  <ul><% for item in data.items { %><li><%= item %></li><% } %></ul>
//	methods:
//	  Type:
//	    - set: draft
//	      value: event.value
//	  Add:
//	    - append: items
//	      value: data.draft
//	      when: data.draft != ""
//	    - set: draft
//	      value: '""'
//
// Action values and guards are expressions evaluated against data, attrs,
// props and event.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/wisp/internal/component"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/observable"
)

// Extensions lists the file suffixes Scan picks up.
var Extensions = []string{".wisp.yml", ".wisp.yaml"}

// File is the on-disk shape of a definition.
type File struct {
	Tag      string              `yaml:"tag"`
	Shadow   bool                `yaml:"shadow"`
	Data     any                 `yaml:"data"`
	Props    map[string]any      `yaml:"props"`
	Template string              `yaml:"template"`
	Styles   string              `yaml:"styles"`
	Partials map[string]string   `yaml:"partials"`
	Methods  map[string][]Action `yaml:"methods"`
	Watch    map[string][]Action `yaml:"watch"`
}

// Action is one step of a method or watcher. Exactly one of Set, Append and
// Delete names the data path it writes.
type Action struct {
	Set    string `yaml:"set,omitempty"`
	Append string `yaml:"append,omitempty"`
	Delete string `yaml:"delete,omitempty"`
	Value  string `yaml:"value,omitempty"`
	When   string `yaml:"when,omitempty"`

	value *vm.Program
	when  *vm.Program
}

// Op names the write an action performs.
func (a *Action) Op() string {
	switch {
	case a.Set != "":
		return "set"
	case a.Append != "":
		return "append"
	default:
		return "delete"
	}
}

// Target is the dotted data path the action writes.
func (a *Action) Target() string {
	switch {
	case a.Set != "":
		return a.Set
	case a.Append != "":
		return a.Append
	default:
		return a.Delete
	}
}

// Definition is a loaded, validated definition file.
type Definition struct {
	File
	Path string
}

// Load reads and validates one definition file.
func Load(path string) (*Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "cannot read component definition", err).
			WithLocation(path, 0, 0)
	}
	return Parse(path, content)
}

// Parse decodes a definition from content. path is used for diagnostics.
func Parse(path string, content []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	def := &Definition{Path: path}
	if err := dec.Decode(&def.File); err != nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeDecode, "cannot decode component definition").
			WithCause(err).
			WithLocation(path, yamlLine(err), 0)
	}
	def.Tag = strings.ToLower(strings.TrimSpace(def.Tag))
	def.Data = observable.Normalize(def.Data)

	if err := def.validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *Definition) validate() error {
	fail := func(code, msg string) error {
		return errors.NewConfigurationError(code, msg).
			WithComponent(d.Tag).
			WithLocation(d.Path, 0, 0)
	}

	if d.Tag == "" {
		return fail(errors.ErrCodeMissingTag, "definition has no tag")
	}
	if d.Data != nil && !observable.IsComposite(d.Data) {
		return fail(errors.ErrCodeNotComposite, "data must be a mapping or a sequence")
	}

	check := func(where string, actions []Action) error {
		for i := range actions {
			a := &actions[i]
			set := 0
			for _, p := range []string{a.Set, a.Append, a.Delete} {
				if p != "" {
					set++
				}
			}
			if set != 1 {
				return fail(errors.ErrCodeConfigInvalid,
					fmt.Sprintf("%s action %d must name exactly one of set, append, delete", where, i))
			}
			if a.Op() != "delete" && a.Value == "" {
				return fail(errors.ErrCodeConfigInvalid,
					fmt.Sprintf("%s action %d needs a value", where, i))
			}
			var err error
			if a.value, err = compile(a.Value); err != nil {
				return fail(errors.ErrCodeBadExpression,
					fmt.Sprintf("%s action %d value: %v", where, i, err))
			}
			if a.when, err = compile(a.When); err != nil {
				return fail(errors.ErrCodeBadExpression,
					fmt.Sprintf("%s action %d when: %v", where, i, err))
			}
		}
		return nil
	}

	for name, actions := range d.Methods {
		if err := check("method "+name, actions); err != nil {
			return err
		}
	}
	for path, actions := range d.Watch {
		if d.Data == nil {
			return fail(errors.ErrCodeNoData, "cannot watch "+path+": definition has no data")
		}
		if !observable.HasPath(d.Data, observable.SplitPath(path)) {
			return fail(errors.ErrCodeUnknownPath, "cannot watch unknown data path: "+path)
		}
		if err := check("watch "+path, actions); err != nil {
			return err
		}
	}
	return nil
}

func compile(code string) (*vm.Program, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	return expr.Compile(code)
}

func yamlLine(err error) int {
	var line int
	msg := err.Error()
	if i := strings.Index(msg, "line "); i >= 0 {
		_, _ = fmt.Sscanf(msg[i:], "line %d", &line)
	}
	return line
}

// Scan walks paths for definition files, skipping those that match any
// exclude glob. Paths that do not exist are ignored. Definitions come
// back ordered by file path.
func Scan(paths, excludes []string) ([]*Definition, error) {
	var files []string
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path == root {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			rel, _ := filepath.Rel(root, path)
			if IsDefinitionFile(path) && !excluded(filepath.ToSlash(rel), excludes) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "cannot scan "+root, err)
		}
	}
	sort.Strings(files)

	defs := make([]*Definition, 0, len(files))
	for _, file := range files {
		def, err := Load(file)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// IsDefinitionFile reports whether path has a definition file suffix.
func IsDefinitionFile(path string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// excluded matches rel, a slash-separated path below a scan root, and its
// base name against doublestar globs.
func excluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// Register defines every definition on reg. With replace set, existing tags
// are updated in place, which is how hot reload swaps definitions.
func Register(reg *component.Registry, defs []*Definition, replace bool) error {
	for _, def := range defs {
		opts := []component.DefineOption{component.WithSource(def.Path)}
		if def.Shadow {
			opts = append(opts, component.WithShadowRoot())
		}
		define := reg.Define
		if replace {
			define = reg.Replace
		}
		if err := define(def.Tag, def.Factory(), opts...); err != nil {
			return err
		}
	}
	return nil
}

// Factory returns a component factory for d.
func (d *Definition) Factory() component.Factory {
	return func() component.Component {
		return &Declarative{def: d}
	}
}
