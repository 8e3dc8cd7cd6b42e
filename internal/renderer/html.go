package renderer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/hast"
	"github.com/sirily11/msbd5017-docs/internal/pipeline"
)

// Properties consumed by the pipeline that never become attributes as-is.
var internalProps = map[string]bool{
	"annotation":    true,
	"code":          true,
	"language":      true,
	"metastring":    true,
	"diagram":       true,
	"diagram-svg":   true,
	"diagram-error": true,
	"className":     true,
}

// HTML serializes a transformed tree. ESM nodes are dropped.
func HTML(root *hast.Node) (string, error) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteHTML serializes a transformed tree to w.
func WriteHTML(w io.Writer, root *hast.Node) error {
	for _, n := range toHTML(root) {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("render html: %w", err)
		}
	}
	return nil
}

func toHTML(n *hast.Node) []*html.Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case hast.KindRoot:
		return convertChildren(n)
	case hast.KindText:
		return []*html.Node{{Type: html.TextNode, Data: n.Value}}
	case hast.KindRaw:
		return []*html.Node{{Type: html.RawNode, Data: n.Value}}
	case hast.KindESM:
		return nil
	}

	if n.Tag == "pre" && n.HasProp("diagram") {
		return []*html.Node{diagram(n)}
	}

	el := element(n.Tag, attributes(n)...)
	appendAll(el, convertChildren(n))
	if hast.HeadingRank(n) > 0 {
		if id := n.Prop("id"); id != "" {
			el.AppendChild(anchor(id))
		}
	}
	return []*html.Node{el}
}

func convertChildren(n *hast.Node) []*html.Node {
	var out []*html.Node
	for _, child := range n.Children {
		out = append(out, toHTML(child)...)
	}
	return out
}

func element(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func appendAll(parent *html.Node, children []*html.Node) {
	for _, child := range children {
		parent.AppendChild(child)
	}
}

func attributes(n *hast.Node) []html.Attribute {
	var attrs []html.Attribute
	if classes := hast.ClassList(n); len(classes) > 0 {
		attrs = append(attrs, html.Attribute{Key: "class", Val: strings.Join(classes, " ")})
	}
	for _, key := range n.Props.Keys() {
		if internalProps[key] {
			continue
		}
		v, _ := n.Props.Get(key)
		switch val := v.(type) {
		case bool:
			if val {
				attrs = append(attrs, html.Attribute{Key: key})
			}
		case string:
			attrs = append(attrs, html.Attribute{Key: key, Val: val})
		case int:
			attrs = append(attrs, html.Attribute{Key: key, Val: strconv.Itoa(val)})
		case nil:
		default:
			attrs = append(attrs, html.Attribute{Key: key, Val: fmt.Sprint(val)})
		}
	}

	if lang := n.Prop("language"); lang != "" {
		attrs = append(attrs, html.Attribute{Key: "data-language", Val: lang})
	}
	if meta := n.Prop("metastring"); meta != "" {
		attrs = append(attrs, html.Attribute{Key: "data-meta", Val: meta})
	}
	if v, ok := n.Props.Get("annotation"); ok {
		if obj, ok := v.(*esm.Object); ok {
			attrs = append(attrs, annotationAttributes(obj)...)
		}
	}
	return attrs
}

// annotationAttributes exposes scalar annotation values as data-* attributes.
func annotationAttributes(obj *esm.Object) []html.Attribute {
	var attrs []html.Attribute
	obj.Each(func(key string, v esm.Value) {
		switch v.(type) {
		case esm.String, esm.Number, esm.Bool:
			attrs = append(attrs, html.Attribute{Key: "data-" + strings.ToLower(key), Val: scalar(v)})
		}
	})
	return attrs
}

func scalar(v esm.Value) string {
	if s, ok := v.(esm.String); ok {
		return string(s)
	}
	return esm.JSON(v)
}

func anchor(id string) *html.Node {
	a := element("a",
		html.Attribute{Key: "class", Val: "heading-anchor"},
		html.Attribute{Key: "href", Val: "#" + id},
		html.Attribute{Key: "aria-hidden", Val: "true"},
	)
	a.AppendChild(text("#"))
	return a
}

func diagram(pre *hast.Node) *html.Node {
	source := pre.Prop("code")
	if pre.Prop("diagram") == pipeline.DiagramMermaid {
		div := element("div", html.Attribute{Key: "class", Val: "mermaid"})
		div.AppendChild(text(source))
		return div
	}

	attrs := []html.Attribute{{Key: "class", Val: "d2-block"}}
	if source != "" {
		attrs = append(attrs, html.Attribute{Key: "data-source-b64", Val: base64.StdEncoding.EncodeToString([]byte(source))})
	}
	div := element("div", attrs...)
	switch {
	case pre.HasProp("diagram-svg"):
		div.AppendChild(&html.Node{Type: html.RawNode, Data: pre.Prop("diagram-svg")})
	case pre.HasProp("diagram-error"):
		failure := element("div", html.Attribute{Key: "class", Val: "d2-error"})
		failure.AppendChild(text(pre.Prop("diagram-error")))
		div.AppendChild(failure)
		div.AppendChild(codeBlock(source, pipeline.DiagramD2))
	default:
		div.AppendChild(codeBlock(source, pipeline.DiagramD2))
	}
	return div
}

func codeBlock(source, lang string) *html.Node {
	pre := element("pre", html.Attribute{Key: "data-language", Val: lang})
	code := element("code", html.Attribute{Key: "class", Val: "language-" + lang})
	code.AppendChild(text(source))
	pre.AppendChild(code)
	return pre
}

var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "blockquote": true, "tr": true, "pre": true, "hr": true, "table": true,
}

// PlainText flattens a transformed tree into text, one block per line. Code
// blocks contribute their original source.
func PlainText(root *hast.Node) string {
	var b strings.Builder
	writePlain(&b, root)
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func writePlain(b *strings.Builder, n *hast.Node) {
	switch n.Kind {
	case hast.KindText:
		b.WriteString(n.Value)
		return
	case hast.KindRaw, hast.KindESM:
		return
	}
	if n.Tag == "pre" && n.HasProp("code") {
		b.WriteString("\n")
		b.WriteString(n.Prop("code"))
		b.WriteString("\n")
		return
	}
	for _, child := range n.Children {
		writePlain(b, child)
	}
	if blockTags[n.Tag] {
		b.WriteString("\n")
	} else if n.Tag == "td" || n.Tag == "th" {
		b.WriteString(" ")
	}
}
