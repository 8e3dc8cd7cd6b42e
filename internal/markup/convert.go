package markup

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/util"

	"github.com/sirily11/msbd5017-docs/internal/esm"
	"github.com/sirily11/msbd5017-docs/internal/hast"
)

type converter struct {
	source []byte
}

func (c *converter) document(doc ast.Node) (*hast.Node, error) {
	root := hast.Root()
	if err := c.children(root, doc); err != nil {
		return nil, err
	}
	return root, nil
}

func (c *converter) children(parent *hast.Node, n ast.Node) error {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if err := c.node(parent, child); err != nil {
			return err
		}
	}
	return nil
}

func (c *converter) node(parent *hast.Node, n ast.Node) error {
	switch node := n.(type) {
	case *ESMBlock:
		appendChild(parent, c.esm(node))
		return nil
	case *ast.TextBlock:
		return c.children(parent, node)
	case *ast.Paragraph:
		return c.element(parent, "p", nil, node)
	case *ast.Heading:
		return c.heading(parent, node)
	case *ast.ThematicBreak:
		appendChild(parent, hast.Element("hr", nil))
		return nil
	case *ast.FencedCodeBlock:
		appendChild(parent, c.fencedCode(node))
		return nil
	case *ast.CodeBlock:
		appendChild(parent, hast.Element("pre", nil, hast.Element("code", nil, hast.Text(c.lines(node)))))
		return nil
	case *ast.Blockquote:
		return c.element(parent, "blockquote", nil, node)
	case *ast.List:
		return c.list(parent, node)
	case *ast.ListItem:
		return c.listItem(parent, node)
	case *ast.HTMLBlock:
		raw := c.lines(node)
		if node.HasClosure() {
			raw += string(node.ClosureLine.Value(c.source))
		}
		appendChild(parent, hast.Raw(raw))
		return nil
	case *ast.Text:
		c.text(parent, node)
		return nil
	case *ast.String:
		appendText(parent, string(node.Value))
		return nil
	case *ast.CodeSpan:
		appendChild(parent, hast.Element("code", nil, hast.Text(c.codeSpan(node))))
		return nil
	case *ast.Emphasis:
		tag := "em"
		if node.Level >= 2 {
			tag = "strong"
		}
		return c.element(parent, tag, nil, node)
	case *ast.Link:
		props := hast.Props("href", string(node.Destination))
		if len(node.Title) > 0 {
			props.Set("title", string(node.Title))
		}
		return c.element(parent, "a", props, node)
	case *ast.Image:
		img := hast.Element("img", hast.Props("src", string(node.Destination)))
		alt := hast.Root()
		if err := c.children(alt, node); err != nil {
			return err
		}
		img.SetProp("alt", hast.ToString(alt))
		if len(node.Title) > 0 {
			img.SetProp("title", string(node.Title))
		}
		appendChild(parent, img)
		return nil
	case *ast.AutoLink:
		url := string(node.URL(c.source))
		if node.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(strings.ToLower(url), "mailto:") {
			url = "mailto:" + url
		}
		appendChild(parent, hast.Element("a", hast.Props("href", url), hast.Text(string(node.Label(c.source)))))
		return nil
	case *ast.RawHTML:
		var b strings.Builder
		for i := 0; i < node.Segments.Len(); i++ {
			segment := node.Segments.At(i)
			b.Write(segment.Value(c.source))
		}
		appendChild(parent, hast.Raw(b.String()))
		return nil
	case *extast.Strikethrough:
		return c.element(parent, "del", nil, node)
	case *extast.TaskCheckBox:
		props := hast.Props("type", "checkbox", "disabled", true)
		if node.IsChecked {
			props.Set("checked", true)
		}
		appendChild(parent, hast.Element("input", props))
		return nil
	case *extast.Table:
		return c.table(parent, node)
	}
	return c.children(parent, n)
}

func (c *converter) element(parent *hast.Node, tag string, props *hast.Properties, n ast.Node) error {
	el := hast.Element(tag, props)
	copyAttributes(el, n)
	if err := c.children(el, n); err != nil {
		return err
	}
	appendChild(parent, el)
	return nil
}

func (c *converter) heading(parent *hast.Node, n *ast.Heading) error {
	el := hast.Element("h"+strconv.Itoa(n.Level), nil)
	if err := c.children(el, n); err != nil {
		return err
	}
	if v, ok := n.Attribute(annotationAttr); ok {
		switch annotation := v.(type) {
		case *annotationError:
			return fmt.Errorf("heading %q: %w", hast.ToString(el), annotation)
		case *esm.Object:
			el.SetProp("annotation", annotation)
		}
	}
	copyAttributes(el, n)
	appendChild(parent, el)
	return nil
}

func (c *converter) fencedCode(n *ast.FencedCodeBlock) *hast.Node {
	code := hast.Element("code", nil, hast.Text(c.lines(n)))
	if lang := string(n.Language(c.source)); lang != "" {
		code.SetProp("className", []string{"language-" + lang})
	}
	if n.Info != nil {
		info := string(n.Info.Segment.Value(c.source))
		if _, meta, ok := strings.Cut(strings.TrimSpace(info), " "); ok && strings.TrimSpace(meta) != "" {
			code.SetProp("metastring", strings.TrimSpace(meta))
		}
	}
	return hast.Element("pre", nil, code)
}

func (c *converter) list(parent *hast.Node, n *ast.List) error {
	tag := "ul"
	var props *hast.Properties
	if n.IsOrdered() {
		tag = "ol"
		if n.Start != 1 {
			props = hast.Props("start", n.Start)
		}
	}
	return c.element(parent, tag, props, n)
}

func (c *converter) listItem(parent *hast.Node, n *ast.ListItem) error {
	li := hast.Element("li", nil)
	if err := c.children(li, n); err != nil {
		return err
	}
	if isTaskItem(li) {
		li.SetProp("className", []string{"task-list-item"})
	}
	appendChild(parent, li)
	return nil
}

func isTaskItem(li *hast.Node) bool {
	first := li.FirstChild()
	if first.IsElement("p") {
		first = first.FirstChild()
	}
	return first.IsElement("input") && first.Prop("type") == "checkbox"
}

func (c *converter) table(parent *hast.Node, n *extast.Table) error {
	table := hast.Element("table", nil)
	var body *hast.Node
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch row := child.(type) {
		case *extast.TableHeader:
			tr := hast.Element("tr", nil)
			if err := c.cells(tr, row, "th"); err != nil {
				return err
			}
			table.Children = append(table.Children, hast.Element("thead", nil, tr))
		case *extast.TableRow:
			if body == nil {
				body = hast.Element("tbody", nil)
				table.Children = append(table.Children, body)
			}
			tr := hast.Element("tr", nil)
			if err := c.cells(tr, row, "td"); err != nil {
				return err
			}
			body.Children = append(body.Children, tr)
		}
	}
	appendChild(parent, table)
	return nil
}

func (c *converter) cells(tr *hast.Node, row ast.Node, tag string) error {
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		var props *hast.Properties
		if tc, ok := cell.(*extast.TableCell); ok && tc.Alignment != extast.AlignNone {
			props = hast.Props("align", tc.Alignment.String())
		}
		if err := c.element(tr, tag, props, cell); err != nil {
			return err
		}
	}
	return nil
}

func (c *converter) esm(n *ESMBlock) *hast.Node {
	source := strings.TrimRight(c.lines(n), "\n")
	node := hast.ESM(source)
	if binding, err := esm.ParseBinding(source); err == nil {
		node.SetData(DataBinding, binding)
	}
	return node
}

func (c *converter) text(parent *hast.Node, n *ast.Text) {
	value := n.Segment.Value(c.source)
	if !n.IsRaw() {
		value = util.UnescapePunctuations(util.ResolveNumericReferences(util.ResolveEntityNames(value)))
	}
	appendText(parent, string(value))
	switch {
	case n.HardLineBreak():
		appendChild(parent, hast.Element("br", nil))
		appendText(parent, "\n")
	case n.SoftLineBreak():
		appendText(parent, "\n")
	}
}

func (c *converter) codeSpan(n *ast.CodeSpan) string {
	var b bytes.Buffer
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch t := child.(type) {
		case *ast.Text:
			value := t.Segment.Value(c.source)
			if bytes.HasSuffix(value, []byte("\n")) {
				value = append(bytes.TrimSuffix(value, []byte("\n")), ' ')
			}
			b.Write(value)
		case *ast.String:
			b.Write(t.Value)
		}
	}
	return b.String()
}

func (c *converter) lines(n ast.Node) string {
	var b bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		b.Write(segment.Value(c.source))
	}
	return b.String()
}

func copyAttributes(el *hast.Node, n ast.Node) {
	for _, attr := range n.Attributes() {
		name := string(attr.Name)
		if name == string(annotationAttr) {
			continue
		}
		var value any
		switch v := attr.Value.(type) {
		case []byte:
			value = string(v)
		case string, bool, float64, int:
			value = v
		default:
			continue
		}
		if name == "class" {
			if s, ok := value.(string); ok {
				el.SetProp("className", strings.Fields(s))
			}
			continue
		}
		el.SetProp(name, value)
	}
}

func appendChild(parent, child *hast.Node) {
	parent.Children = append(parent.Children, child)
}

// appendText merges adjacent text so each run of prose is a single node.
func appendText(parent *hast.Node, value string) {
	if value == "" {
		return
	}
	if n := len(parent.Children); n > 0 && parent.Children[n-1].Kind == hast.KindText {
		parent.Children[n-1].Value += value
		return
	}
	appendChild(parent, hast.Text(value))
}
