package esm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

// ErrNotLiteral is returned when an expression is not a plain literal.
var ErrNotLiteral = errors.New("expression is not a literal")

var (
	exportKeyword      = regexp.MustCompile(`(?m)^[ \t]*export\s+`)
	importStatement    = regexp.MustCompile(`^[ \t]*import[\s{*'"]`)
	importEnd          = regexp.MustCompile(`(^[ \t]*import\s*|\bfrom\s*)['"][^'"]*['"]\s*;?\s*$`)
	exportConstPattern = regexp.MustCompile(`export\s+const\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=`)
)

// Binding is a parsed `export const name = value` fragment.
type Binding struct {
	Program *ast.Program
	Source  string
	Names   []string
}

// ParseBinding parses a block of exported declarations. Import statements are
// dropped and every line-leading export keyword is removed before parsing
// since the parser only accepts scripts.
func ParseBinding(src string) (*Binding, error) {
	if !exportKeyword.MatchString(src) {
		return nil, fmt.Errorf("parse binding: %q is not an export", firstLine(src))
	}
	script := exportKeyword.ReplaceAllString(dropImports(src), "")
	program, err := parser.ParseFile(nil, "", script, 0)
	if err != nil {
		return nil, fmt.Errorf("parse binding: %w", err)
	}
	return &Binding{Program: program, Source: src, Names: declaredNames(program)}, nil
}

// dropImports blanks import statements, including ones spanning several
// lines, keeping line numbers intact.
func dropImports(src string) string {
	lines := strings.Split(src, "\n")
	inImport := false
	for i, line := range lines {
		if !inImport && !importStatement.MatchString(line) {
			continue
		}
		inImport = !importEnd.MatchString(line)
		lines[i] = ""
	}
	return strings.Join(lines, "\n")
}

// Lookup returns the literal value bound to name.
func (b *Binding) Lookup(name string) (Value, error) {
	for _, stmt := range b.Program.Body {
		for _, binding := range declarations(stmt) {
			ident, ok := binding.Target.(*ast.Identifier)
			if !ok || ident.Name.String() != name {
				continue
			}
			if binding.Initializer == nil {
				return Null{}, nil
			}
			v, err := FromExpression(binding.Initializer)
			if err != nil {
				return nil, fmt.Errorf("binding %s: %w", name, err)
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("binding %s not declared", name)
}

// ParseObject parses object literal source such as `{ method: 'GET' }`.
func ParseObject(src string) (*Object, error) {
	trimmed := strings.TrimSpace(src)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("parse object: %w: expected '{'", ErrNotLiteral)
	}
	program, err := parser.ParseFile(nil, "", "("+trimmed+")", 0)
	if err != nil {
		return nil, fmt.Errorf("parse object: %w", err)
	}
	if len(program.Body) != 1 {
		return nil, fmt.Errorf("parse object: %w: expected a single expression", ErrNotLiteral)
	}
	stmt, ok := program.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, fmt.Errorf("parse object: %w: expected an expression", ErrNotLiteral)
	}
	v, err := FromExpression(stmt.Expression)
	if err != nil {
		return nil, fmt.Errorf("parse object: %w", err)
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("parse object: %w: expected an object", ErrNotLiteral)
	}
	return obj, nil
}

// ExportedNames returns the names declared by `export const <name> =` in src.
func ExportedNames(src string) []string {
	matches := exportConstPattern.FindAllStringSubmatch(src, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Exports reports whether src declares `export const <name> =`.
func Exports(src, name string) bool {
	pattern := regexp.MustCompile(`export\s+const\s+` + regexp.QuoteMeta(name) + `\s*=`)
	return pattern.MatchString(src)
}

// FromExpression converts a literal expression into a Value. Identifiers,
// calls and template substitutions yield ErrNotLiteral.
func FromExpression(expr ast.Expression) (Value, error) {
	switch e := expr.(type) {
	case nil:
		return Null{}, nil
	case *ast.StringLiteral:
		return String(e.Value.String()), nil
	case *ast.NumberLiteral:
		switch n := e.Value.(type) {
		case int64:
			return Number(n), nil
		case float64:
			return Number(n), nil
		}
		return nil, fmt.Errorf("%w: number %s", ErrNotLiteral, e.Literal)
	case *ast.BooleanLiteral:
		return Bool(e.Value), nil
	case *ast.NullLiteral:
		return Null{}, nil
	case *ast.Identifier:
		if e.Name == "undefined" {
			return Null{}, nil
		}
		return nil, fmt.Errorf("%w: identifier %s", ErrNotLiteral, e.Name.String())
	case *ast.UnaryExpression:
		if e.Operator != token.MINUS && e.Operator != token.PLUS {
			break
		}
		v, err := FromExpression(e.Operand)
		if err != nil {
			return nil, err
		}
		n, ok := v.(Number)
		if !ok {
			break
		}
		if e.Operator == token.MINUS {
			n = -n
		}
		return n, nil
	case *ast.TemplateLiteral:
		if e.Tag != nil || len(e.Expressions) > 0 {
			break
		}
		var b strings.Builder
		for _, el := range e.Elements {
			b.WriteString(el.Parsed.String())
		}
		return String(b.String()), nil
	case *ast.ArrayLiteral:
		arr := make(Array, 0, len(e.Value))
		for i, item := range e.Value {
			v, err := FromExpression(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr = append(arr, v)
		}
		return arr, nil
	case *ast.ObjectLiteral:
		return objectFromLiteral(e)
	}
	return nil, fmt.Errorf("%w: %T", ErrNotLiteral, expr)
}

func objectFromLiteral(lit *ast.ObjectLiteral) (*Object, error) {
	obj := NewObject()
	for _, prop := range lit.Value {
		switch p := prop.(type) {
		case *ast.PropertyKeyed:
			if p.Computed || p.Kind != ast.PropertyKindValue {
				return nil, fmt.Errorf("%w: computed or accessor property", ErrNotLiteral)
			}
			key, err := propertyKey(p.Key)
			if err != nil {
				return nil, err
			}
			v, err := FromExpression(p.Value)
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", key, err)
			}
			obj.Set(key, v)
		case *ast.SpreadElement:
			v, err := FromExpression(p.Expression)
			if err != nil {
				return nil, fmt.Errorf("spread: %w", err)
			}
			spread, ok := v.(*Object)
			if !ok {
				return nil, fmt.Errorf("%w: spread of non-object", ErrNotLiteral)
			}
			obj.Merge(spread)
		default:
			return nil, fmt.Errorf("%w: shorthand property", ErrNotLiteral)
		}
	}
	return obj, nil
}

func propertyKey(expr ast.Expression) (string, error) {
	switch k := expr.(type) {
	case *ast.StringLiteral:
		return k.Value.String(), nil
	case *ast.NumberLiteral:
		return formatNumber(numberValue(k)), nil
	case *ast.Identifier:
		return k.Name.String(), nil
	}
	return "", fmt.Errorf("%w: property key %T", ErrNotLiteral, expr)
}

func numberValue(n *ast.NumberLiteral) float64 {
	switch v := n.Value.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

func declarations(stmt ast.Statement) []*ast.Binding {
	switch s := stmt.(type) {
	case *ast.LexicalDeclaration:
		return s.List
	case *ast.VariableStatement:
		return s.List
	}
	return nil
}

func declaredNames(program *ast.Program) []string {
	var names []string
	for _, stmt := range program.Body {
		for _, binding := range declarations(stmt) {
			if ident, ok := binding.Target.(*ast.Identifier); ok {
				names = append(names, ident.Name.String())
			}
		}
	}
	return names
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
