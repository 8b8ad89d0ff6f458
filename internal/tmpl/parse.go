package tmpl

import (
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/conneroisu/wisp/internal/errors"
)

type tagKind int

const (
	tagText tagKind = iota
	tagStatement
	tagOutput
)

type token struct {
	kind   tagKind
	text   string
	line   int
	column int
}

// lex splits a template into literal text and tag tokens. "<%%" and "%%>"
// are literal "<%" and "%>".
func lex(src string) ([]token, error) {
	var (
		tokens []token
		text   strings.Builder
		pos    = newPosition(src)
	)

	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, token{kind: tagText, text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "<%%"):
			text.WriteString("<%")
			i += 3
		case strings.HasPrefix(src[i:], "%%>"):
			text.WriteString("%>")
			i += 3
		case strings.HasPrefix(src[i:], "%>"):
			line, col := pos.at(i)
			return nil, errors.NewCompilationError(errors.ErrCodeUnbalancedTag,
				"closing %> without opening tag", nil).WithLocation("", line, col)
		case strings.HasPrefix(src[i:], "<%"):
			line, col := pos.at(i)
			start := i + 2
			kind := tagStatement
			if start < len(src) && src[start] == '=' {
				kind = tagOutput
				start++
			}
			end := strings.Index(src[start:], "%>")
			if end < 0 {
				return nil, errors.NewCompilationError(errors.ErrCodeUnbalancedTag,
					"unclosed <% tag", nil).WithLocation("", line, col)
			}
			if inner := strings.Index(src[start:start+end], "<%"); inner >= 0 {
				l, c := pos.at(start + inner)
				return nil, errors.NewCompilationError(errors.ErrCodeUnbalancedTag,
					"nested <% inside tag", nil).WithLocation("", l, c)
			}
			flush()
			tokens = append(tokens, token{
				kind:   kind,
				text:   strings.TrimSpace(src[start : start+end]),
				line:   line,
				column: col,
			})
			i = start + end + 2
		default:
			text.WriteByte(src[i])
			i++
		}
	}
	flush()
	return tokens, nil
}

type position struct {
	lineStarts []int
}

func newPosition(src string) position {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return position{lineStarts: starts}
}

// at converts a byte offset into a 1-based line and column.
func (p position) at(offset int) (int, int) {
	line := 0
	for line+1 < len(p.lineStarts) && p.lineStarts[line+1] <= offset {
		line++
	}
	return line + 1, offset - p.lineStarts[line] + 1
}

// Block heads accept both `if cond {` and `if(cond){` spacing.
var (
	ifPattern     = regexp.MustCompile(`^if(\s+.+?|\s*\(.+?)\s*\{$`)
	elseIfPattern = regexp.MustCompile(`^\}\s*else\s+if(\s+.+?|\s*\(.+?)\s*\{$`)
	elsePattern   = regexp.MustCompile(`^\}\s*else\s*\{$`)
	forPattern    = regexp.MustCompile(`^for(\s+.+?|\s*\(.+?)\s*\{$`)
	forHeader     = regexp.MustCompile(`^([A-Za-z_]\w*)(?:\s*,\s*([A-Za-z_]\w*))?\s+in\s+(.+)$`)
	letPattern    = regexp.MustCompile(`^let\s+([A-Za-z_]\w*)\s*=\s*(.+)$`)
)

// splitFor parses the head of a for block, with or without parentheses
// around it.
func splitFor(head string) (key, value, iter string, ok bool) {
	head = strings.TrimSpace(head)
	m := forHeader.FindStringSubmatch(head)
	if m == nil && strings.HasPrefix(head, "(") && strings.HasSuffix(head, ")") {
		m = forHeader.FindStringSubmatch(strings.TrimSpace(head[1 : len(head)-1]))
	}
	if m == nil {
		return "", "", "", false
	}
	if m[2] != "" {
		return m[1], m[2], m[3], true
	}
	return "", m[1], m[3], true
}

type frameKind int

const (
	frameRoot frameKind = iota
	frameIf
	frameFor
)

type frame struct {
	kind   frameKind
	ifNode *ifNode
	forNd  *forNode
	inElse bool
	line   int
	column int
}

func (f *frame) append(n node) {
	switch f.kind {
	case frameIf:
		if f.inElse {
			f.ifNode.otherwise = append(f.ifNode.otherwise, n)
			return
		}
		last := &f.ifNode.branches[len(f.ifNode.branches)-1]
		last.body = append(last.body, n)
	case frameFor:
		f.forNd.body = append(f.forNd.body, n)
	}
}

type parser struct {
	root  []node
	stack []*frame
}

func (p *parser) emit(n node) {
	if len(p.stack) == 0 {
		p.root = append(p.root, n)
		return
	}
	p.stack[len(p.stack)-1].append(n)
}

func (p *parser) top() *frame {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// parse builds the node tree from tokens, compiling every embedded
// expression once.
func parse(tokens []token) ([]node, error) {
	p := &parser{}

	for _, tok := range tokens {
		switch tok.kind {
		case tagText:
			p.emit(&textNode{text: tok.text})

		case tagOutput:
			prog, err := compileExpr(tok.text, tok)
			if err != nil {
				return nil, err
			}
			p.emit(&outputNode{prog: prog, at: tok})

		case tagStatement:
			if err := p.statement(tok); err != nil {
				return nil, err
			}
		}
	}

	if f := p.top(); f != nil {
		return nil, errors.NewCompilationError(errors.ErrCodeUnbalancedBlock,
			"block opened here is never closed", nil).WithLocation("", f.line, f.column)
	}
	return p.root, nil
}

func (p *parser) statement(tok token) error {
	code := tok.text

	switch {
	case code == "":
		return nil

	case code == "}":
		if p.top() == nil {
			return unbalanced(tok, "unexpected }")
		}
		p.stack = p.stack[:len(p.stack)-1]
		return nil

	case elseIfPattern.MatchString(code):
		f := p.top()
		if f == nil || f.kind != frameIf || f.inElse {
			return unbalanced(tok, "else if without matching if")
		}
		prog, err := compileExpr(strings.TrimSpace(elseIfPattern.FindStringSubmatch(code)[1]), tok)
		if err != nil {
			return err
		}
		f.ifNode.branches = append(f.ifNode.branches, branch{cond: prog, at: tok})
		return nil

	case elsePattern.MatchString(code):
		f := p.top()
		if f == nil || f.kind != frameIf || f.inElse {
			return unbalanced(tok, "else without matching if")
		}
		f.inElse = true
		return nil

	case ifPattern.MatchString(code):
		prog, err := compileExpr(strings.TrimSpace(ifPattern.FindStringSubmatch(code)[1]), tok)
		if err != nil {
			return err
		}
		n := &ifNode{branches: []branch{{cond: prog, at: tok}}}
		p.emit(n)
		p.stack = append(p.stack, &frame{kind: frameIf, ifNode: n, line: tok.line, column: tok.column})
		return nil

	case forPattern.MatchString(code):
		key, value, iter, ok := splitFor(forPattern.FindStringSubmatch(code)[1])
		if !ok {
			return errors.NewCompilationError(errors.ErrCodeBadStatement,
				"malformed for statement: "+code, nil).WithLocation("", tok.line, tok.column)
		}
		prog, err := compileExpr(iter, tok)
		if err != nil {
			return err
		}
		n := &forNode{key: key, value: value, iter: prog, at: tok}
		p.emit(n)
		p.stack = append(p.stack, &frame{kind: frameFor, forNd: n, line: tok.line, column: tok.column})
		return nil

	case letPattern.MatchString(code):
		m := letPattern.FindStringSubmatch(code)
		prog, err := compileExpr(m[2], tok)
		if err != nil {
			return err
		}
		p.emit(&letNode{name: m[1], prog: prog, at: tok})
		return nil

	case strings.HasSuffix(code, "{") || strings.HasPrefix(code, "}"):
		return errors.NewCompilationError(errors.ErrCodeBadStatement,
			"unrecognized block statement: "+code, nil).WithLocation("", tok.line, tok.column)
	}

	prog, err := compileExpr(code, tok)
	if err != nil {
		return err
	}
	p.emit(&evalNode{prog: prog, at: tok})
	return nil
}

func compileExpr(code string, tok token) (*vm.Program, error) {
	prog, err := expr.Compile(code)
	if err != nil {
		return nil, errors.NewCompilationError(errors.ErrCodeBadExpression,
			"invalid expression "+quote(code), err).WithLocation("", tok.line, tok.column)
	}
	return prog, nil
}

func unbalanced(tok token, msg string) error {
	return errors.NewCompilationError(errors.ErrCodeUnbalancedBlock, msg, nil).
		WithLocation("", tok.line, tok.column)
}

func quote(code string) string {
	if len(code) > 60 {
		code = code[:57] + "..."
	}
	return `"` + code + `"`
}
