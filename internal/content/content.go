// Package content converts between the markdown a user types and the
// structured snapshot stored on a post.
//
// The snapshot is a block tree (root, heading, paragraph, list, listitem,
// quote, code, text, linebreak) serialized as JSON under a "root" key. The
// plain-text projection is always derived from the tree, never from the
// markdown source, so the two stay consistent.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Text format bits.
const (
	FormatBold   = 1
	FormatItalic = 2
	FormatCode   = 16
)

// Node is one element of the block tree.
type Node struct {
	Type     string  `json:"type"`
	Version  int     `json:"version"`
	Tag      string  `json:"tag,omitempty"`
	ListType string  `json:"listType,omitempty"`
	Value    int     `json:"value,omitempty"`
	Language string  `json:"language,omitempty"`
	URL      string  `json:"url,omitempty"`
	Text     string  `json:"text,omitempty"`
	Format   int     `json:"format,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Document is a structured snapshot.
type Document struct {
	Root *Node `json:"root"`
}

// Snapshot pairs the serialized tree with its plain-text projection.
type Snapshot struct {
	Content json.RawMessage
	Text    string
}

var md = goldmark.New()

// FromMarkdown parses src and returns its snapshot.
func FromMarkdown(src string) (Snapshot, error) {
	doc := Parse(src)
	raw, err := json.Marshal(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	return Snapshot{Content: raw, Text: doc.TextContent()}, nil
}

// Parse builds a document tree from markdown.
func Parse(src string) *Document {
	source := []byte(src)
	tree := md.Parser().Parse(text.NewReader(source))
	b := builder{src: source}

	root := &Node{Type: "root", Version: 1}
	for c := tree.FirstChild(); c != nil; c = c.NextSibling() {
		if n := b.block(c); n != nil {
			root.Children = append(root.Children, n)
		}
	}
	return &Document{Root: root}
}

// Decode reads a stored snapshot. Empty input and "{}" decode to an empty document.
func Decode(raw json.RawMessage) (*Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
		return &Document{Root: &Node{Type: "root", Version: 1}}, nil
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Root == nil {
		doc.Root = &Node{Type: "root", Version: 1}
	}
	return &doc, nil
}

// ToMarkdown renders a stored snapshot back to markdown for editing.
func ToMarkdown(raw json.RawMessage) (string, error) {
	doc, err := Decode(raw)
	if err != nil {
		return "", err
	}
	return doc.Markdown(), nil
}

// TextOf returns the plain-text projection of a stored snapshot.
func TextOf(raw json.RawMessage) (string, error) {
	doc, err := Decode(raw)
	if err != nil {
		return "", err
	}
	return doc.TextContent(), nil
}

// =============================================================================
// BUILDING
// =============================================================================

type builder struct {
	src []byte
}

func (b *builder) block(n ast.Node) *Node {
	switch n := n.(type) {
	case *ast.Heading:
		return &Node{Type: "heading", Version: 1, Tag: fmt.Sprintf("h%d", n.Level), Children: b.inlines(n, 0)}
	case *ast.Paragraph, *ast.TextBlock:
		return &Node{Type: "paragraph", Version: 1, Children: b.inlines(n, 0)}
	case *ast.List:
		return b.list(n)
	case *ast.Blockquote:
		q := &Node{Type: "quote", Version: 1}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if len(q.Children) > 0 {
				q.Children = append(q.Children, lineBreak())
			}
			q.Children = append(q.Children, b.inlines(c, 0)...)
		}
		return q
	case *ast.FencedCodeBlock:
		return &Node{Type: "code", Version: 1, Language: string(n.Language(b.src)), Children: b.codeText(n)}
	case *ast.CodeBlock:
		return &Node{Type: "code", Version: 1, Children: b.codeText(n)}
	case *ast.ThematicBreak:
		return &Node{Type: "horizontalrule", Version: 1}
	case *ast.HTMLBlock:
		return &Node{Type: "paragraph", Version: 1, Children: b.codeText(n)}
	default:
		return &Node{Type: "paragraph", Version: 1, Children: b.inlines(n, 0)}
	}
}

func (b *builder) list(n *ast.List) *Node {
	list := &Node{Type: "list", Version: 1, ListType: "bullet", Tag: "ul"}
	start := 1
	if n.IsOrdered() {
		list.ListType, list.Tag = "number", "ol"
		if n.Start > 0 {
			start = n.Start
		}
	}
	i := 0
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		item := &Node{Type: "listitem", Version: 1, Value: start + i}
		i++
		for cc := c.FirstChild(); cc != nil; cc = cc.NextSibling() {
			switch cc := cc.(type) {
			case *ast.List:
				item.Children = append(item.Children, b.list(cc))
			default:
				if len(item.Children) > 0 {
					item.Children = append(item.Children, lineBreak())
				}
				item.Children = append(item.Children, b.inlines(cc, 0)...)
			}
		}
		list.Children = append(list.Children, item)
	}
	return list
}

func (b *builder) codeText(n ast.Node) []*Node {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(b.src))
	}
	s := strings.TrimRight(buf.String(), "\n")
	if s == "" {
		return nil
	}
	return []*Node{textNode(s, 0)}
}

func (b *builder) inlines(n ast.Node, format int) []*Node {
	var out []*Node
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			out = appendText(out, string(c.Segment.Value(b.src)), format)
			if c.SoftLineBreak() || c.HardLineBreak() {
				out = append(out, lineBreak())
			}
		case *ast.String:
			out = appendText(out, string(c.Value), format)
		case *ast.CodeSpan:
			for _, t := range b.inlines(c, format|FormatCode) {
				out = appendText(out, t.Text, t.Format)
			}
		case *ast.Emphasis:
			bit := FormatItalic
			if c.Level >= 2 {
				bit = FormatBold
			}
			for _, t := range b.inlines(c, format|bit) {
				out = appendNode(out, t)
			}
		case *ast.Link:
			out = append(out, &Node{Type: "link", Version: 1, URL: string(c.Destination), Children: b.inlines(c, format)})
		case *ast.AutoLink:
			label := string(c.Label(b.src))
			out = append(out, &Node{Type: "link", Version: 1, URL: string(c.URL(b.src)), Children: []*Node{textNode(label, format)}})
		case *ast.RawHTML:
			for i := 0; i < c.Segments.Len(); i++ {
				seg := c.Segments.At(i)
				out = appendText(out, string(seg.Value(b.src)), format)
			}
		default:
			for _, t := range b.inlines(c, format) {
				out = appendNode(out, t)
			}
		}
	}
	return out
}

func textNode(s string, format int) *Node {
	return &Node{Type: "text", Version: 1, Text: s, Format: format}
}

func lineBreak() *Node {
	return &Node{Type: "linebreak", Version: 1}
}

// appendText merges s into the previous text node when the formats match.
func appendText(out []*Node, s string, format int) []*Node {
	if s == "" {
		return out
	}
	if last := len(out) - 1; last >= 0 && out[last].Type == "text" && out[last].Format == format {
		out[last].Text += s
		return out
	}
	return append(out, textNode(s, format))
}

func appendNode(out []*Node, n *Node) []*Node {
	if n.Type == "text" {
		return appendText(out, n.Text, n.Format)
	}
	return append(out, n)
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// TextContent returns the plain-text projection. Top-level blocks are
// separated by a blank line and list items by a newline.
func (d *Document) TextContent() string {
	if d == nil || d.Root == nil {
		return ""
	}
	return d.Root.TextContent()
}

// TextContent returns the plain text of n and its descendants.
func (n *Node) TextContent() string {
	switch n.Type {
	case "text":
		return n.Text
	case "linebreak":
		return "\n"
	case "root":
		return joinChildren(n.Children, "\n\n")
	case "list":
		return joinChildren(n.Children, "\n")
	}
	var sb strings.Builder
	for _, c := range n.Children {
		if c.Type == "list" && sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(c.TextContent())
	}
	return sb.String()
}

func joinChildren(children []*Node, sep string) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		parts = append(parts, c.TextContent())
	}
	return strings.Join(parts, sep)
}

// Markdown renders the document as markdown.
func (d *Document) Markdown() string {
	if d == nil || d.Root == nil {
		return ""
	}
	blocks := make([]string, 0, len(d.Root.Children))
	for _, c := range d.Root.Children {
		blocks = append(blocks, renderBlock(c, ""))
	}
	return strings.Join(blocks, "\n\n")
}

func renderBlock(n *Node, indent string) string {
	switch n.Type {
	case "heading":
		level := 1
		fmt.Sscanf(n.Tag, "h%d", &level)
		return strings.Repeat("#", level) + " " + renderInlines(n.Children)
	case "list":
		return renderList(n, indent)
	case "quote":
		lines := strings.Split(renderInlines(n.Children), "\n")
		for i, l := range lines {
			lines[i] = "> " + l
		}
		return strings.Join(lines, "\n")
	case "code":
		return "```" + n.Language + "\n" + renderPlain(n.Children) + "\n```"
	case "horizontalrule":
		return "---"
	default:
		return renderInlines(n.Children)
	}
}

func renderList(n *Node, indent string) string {
	var lines []string
	for i, item := range n.Children {
		marker := "- "
		if n.ListType == "number" {
			v := item.Value
			if v == 0 {
				v = i + 1
			}
			marker = fmt.Sprintf("%d. ", v)
		}
		var inline []*Node
		var nested []string
		for _, c := range item.Children {
			if c.Type == "list" {
				nested = append(nested, renderList(c, indent+strings.Repeat(" ", len(marker))))
				continue
			}
			inline = append(inline, c)
		}
		lines = append(lines, indent+marker+renderInlines(inline))
		lines = append(lines, nested...)
	}
	return strings.Join(lines, "\n")
}

func renderInlines(nodes []*Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		switch n.Type {
		case "text":
			sb.WriteString(wrapFormat(n.Text, n.Format))
		case "linebreak":
			sb.WriteString("\n")
		case "link":
			sb.WriteString("[" + renderInlines(n.Children) + "](" + n.URL + ")")
		default:
			sb.WriteString(renderInlines(n.Children))
		}
	}
	return sb.String()
}

func renderPlain(nodes []*Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(n.TextContent())
	}
	return sb.String()
}

func wrapFormat(s string, format int) string {
	if format&FormatCode != 0 {
		s = "`" + s + "`"
	}
	if format&FormatItalic != 0 {
		s = "*" + s + "*"
	}
	if format&FormatBold != 0 {
		s = "**" + s + "**"
	}
	return s
}
