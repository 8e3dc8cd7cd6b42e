package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/sirily11/msbd5017-docs/internal/esm"
)

// ESMBlock is a top-level export or import statement kept verbatim.
type ESMBlock struct {
	ast.BaseBlock
}

// KindESMBlock is the node kind of ESMBlock.
var KindESMBlock = ast.NewNodeKind("ESMBlock")

// Kind implements ast.Node.
func (b *ESMBlock) Kind() ast.NodeKind {
	return KindESMBlock
}

// IsRaw keeps the inline parser away from the statement source.
func (b *ESMBlock) IsRaw() bool {
	return true
}

// Dump aids debugging.
func (b *ESMBlock) Dump(source []byte, level int) {
	ast.DumpHelper(b, source, level, nil, nil)
}

type esmBlockParser struct{}

var esmKeywords = [][]byte{[]byte("export"), []byte("import")}

func (p *esmBlockParser) Trigger() []byte {
	return []byte{'e', 'i'}
}

func (p *esmBlockParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	if parent.Kind() != ast.KindDocument || pc.BlockOffset() != 0 {
		return nil, parser.NoChildren
	}
	line, segment := reader.PeekLine()
	if !isESMStart(line) {
		return nil, parser.NoChildren
	}
	node := &ESMBlock{}
	node.Lines().Append(segment)
	reader.AdvanceToEOL()
	return node, parser.NoChildren
}

func (p *esmBlockParser) Continue(node ast.Node, reader text.Reader, _ parser.Context) parser.State {
	line, segment := reader.PeekLine()
	if util.IsBlank(line) {
		return parser.Close
	}
	node.Lines().Append(segment)
	reader.AdvanceToEOL()
	return parser.Continue | parser.NoChildren
}

func (p *esmBlockParser) Close(ast.Node, text.Reader, parser.Context) {}

func (p *esmBlockParser) CanInterruptParagraph() bool {
	return false
}

func (p *esmBlockParser) CanAcceptIndentedLine() bool {
	return false
}

func isESMStart(line []byte) bool {
	for _, kw := range esmKeywords {
		if !bytes.HasPrefix(line, kw) {
			continue
		}
		rest := line[len(kw):]
		if len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t' || rest[0] == '{' || rest[0] == '*') {
			return true
		}
	}
	return false
}

// annotationAttr is the heading attribute holding the parsed annotation or
// the error produced while parsing it.
var annotationAttr = []byte("annotation")

type annotationError struct {
	source string
	err    error
}

func (e *annotationError) Error() string {
	return fmt.Sprintf("malformed annotation %s: %v", e.source, e.err)
}

func (e *annotationError) Unwrap() error { return e.err }

// annotatedHeadingParser wraps the ATX heading parser and lifts a trailing
// `{{ key: value }}` annotation off the heading text before attributes and
// inline content are parsed.
type annotatedHeadingParser struct {
	parser.BlockParser
}

func newAnnotatedHeadingParser() parser.BlockParser {
	return &annotatedHeadingParser{BlockParser: parser.NewATXHeadingParser(parser.WithHeadingAttribute())}
}

func (p *annotatedHeadingParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {
	extractAnnotation(node, reader.Source())
	p.BlockParser.Close(node, reader, pc)
}

func extractAnnotation(node ast.Node, source []byte) {
	lines := node.Lines()
	last := lines.Len() - 1
	if last < 0 {
		return
	}
	segment := lines.At(last)
	line := string(segment.Value(source))
	trimmed := strings.TrimRight(line, " \t\r\n")
	if !strings.HasSuffix(trimmed, "}}") {
		return
	}
	open := strings.Index(trimmed, "{{")
	if open < 0 || open+2 > len(trimmed)-2 {
		return
	}

	objectSource := trimmed[open+1 : len(trimmed)-1]
	obj, err := esm.ParseObject(objectSource)
	if err != nil {
		node.SetAttribute(annotationAttr, &annotationError{source: trimmed[open:], err: err})
	} else {
		node.SetAttribute(annotationAttr, obj)
	}

	head := strings.TrimRight(trimmed[:open], " \t")
	segment.Stop = segment.Start + len(head)
	lines.Set(last, segment)
}
