package tmpl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/wisp/internal/errors"
)

// DefaultMaxIncludeDepth bounds include nesting when no limit is configured.
const DefaultMaxIncludeDepth = 16

var includePattern = regexp.MustCompile(`<%=\s*include\("([^"]*)"\)\s*%>`)

// Includer resolves include("name") markers to template text.
type Includer interface {
	Include(name string) (string, bool)
}

// IncluderFunc adapts a function to Includer.
type IncluderFunc func(name string) (string, bool)

// Include calls f.
func (f IncluderFunc) Include(name string) (string, bool) {
	return f(name)
}

// MapIncluder resolves names from a fixed set of partials.
type MapIncluder map[string]string

// Include returns the partial registered under name.
func (m MapIncluder) Include(name string) (string, bool) {
	text, ok := m[name]
	return text, ok
}

// Expand replaces every include("name") marker in text with the text src
// returns for name, expanding inserted text again until no marker remains.
//
// Unknown names are left in the output as literal text. A name that
// includes itself, directly or through other names, fails with
// ErrCodeIncludeCycle; nesting deeper than maxDepth fails with
// ErrCodeExpansionOverflow.
func Expand(text string, src Includer, maxDepth int) (string, error) {
	if src == nil {
		return text, nil
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxIncludeDepth
	}
	return expand(text, src, maxDepth, nil)
}

func expand(text string, src Includer, maxDepth int, chain []string) (string, error) {
	matches := includePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		last = m[1]
		name := text[m[2]:m[3]]

		for i, seen := range chain {
			if seen == name {
				cycle := append(append([]string{}, chain[i:]...), name)
				return "", errors.NewExpansionError(errors.ErrCodeIncludeCycle,
					"include cycle: "+strings.Join(cycle, " -> ")).
					WithContext("chain", cycle)
			}
		}

		fragment, ok := src.Include(name)
		if !ok {
			fmt.Fprintf(&b, `<%%%%= include("%s") %%%%>`, name)
			continue
		}

		if len(chain) >= maxDepth {
			return "", errors.NewExpansionError(errors.ErrCodeExpansionOverflow,
				fmt.Sprintf("include nesting exceeds %d levels at %q", maxDepth, name)).
				WithContext("chain", append(append([]string{}, chain...), name))
		}

		expanded, err := expand(fragment, src, maxDepth, append(chain[:len(chain):len(chain)], name))
		if err != nil {
			return "", err
		}
		b.WriteString(expanded)
	}
	b.WriteString(text[last:])
	return b.String(), nil
}
