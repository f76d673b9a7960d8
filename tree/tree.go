// Package tree wraps parsed HTML documents: parsing with charset detection,
// XPath evaluation, serialization and link rewriting.
package tree

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Parse reads HTML markup from r. Input encoding is detected from BOM and
// <meta> declarations, UTF-8 is assumed otherwise.
func Parse(r io.Reader) (*html.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read markup: %w", err)
	}
	if len(data) == 0 {
		return html.Parse(bytes.NewReader(data))
	}

	cr, err := charset.NewReader(bytes.NewReader(data), "")
	if err != nil {
		return nil, fmt.Errorf("unable to detect markup encoding: %w", err)
	}
	doc, err := html.Parse(cr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse markup: %w", err)
	}
	return doc, nil
}

// ParseString parses already decoded markup.
func ParseString(markup string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("unable to parse markup: %w", err)
	}
	return doc, nil
}

// Root returns document element (<html>) of the parsed document or nil.
func Root(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == html.ElementNode {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Compile compiles XPath 1.0 expression.
func Compile(expr string) (*xpath.Expr, error) {
	e, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("bad xpath expression %q: %w", expr, err)
	}
	return e, nil
}

// Evaluate returns nodes selected by expr in document order. Attribute
// selections produce detached nodes which are not part of the tree.
func Evaluate(doc *html.Node, expr *xpath.Expr) (nodes []*html.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			nodes, err = nil, fmt.Errorf("xpath evaluation of %q failed: %v", expr, r)
		}
	}()
	return htmlquery.QuerySelectorAll(doc, expr), nil
}

// Texts returns text content of every node selected by expr.
func Texts(doc *html.Node, expr *xpath.Expr) ([]string, error) {
	nodes, err := Evaluate(doc, expr)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		texts = append(texts, htmlquery.InnerText(n))
	}
	return texts, nil
}

// Render writes HTML serialization of n (and its subtree) to w.
func Render(w io.Writer, n *html.Node) error {
	if err := html.Render(w, n); err != nil {
		return fmt.Errorf("unable to render html: %w", err)
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(n *html.Node) (string, error) {
	var sb strings.Builder
	if err := Render(&sb, n); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// StripAttribute removes attribute name from every element under root.
func StripAttribute(root *html.Node, name string) {
	for n := range root.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		n.Attr = removeAttr(n.Attr, name)
	}
	if root.Type == html.ElementNode {
		root.Attr = removeAttr(root.Attr, name)
	}
}

func removeAttr(attrs []html.Attribute, name string) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// GetAttr returns value of attribute name.
func GetAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets value of existing attribute name or adds new one.
func SetAttr(n *html.Node, name, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

// IsElement reports whether n is element with given atom.
func IsElement(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a
}

// EmbedStyle appends <style> element with text to the head of the document
// rooted at html element root. Missing head is created.
func EmbedStyle(root *html.Node, text string) {
	if !IsElement(root, atom.Html) {
		return
	}
	var head *html.Node
	for c := range root.ChildNodes() {
		if IsElement(c, atom.Head) {
			head = c
			break
		}
	}
	if head == nil {
		head = &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
		root.InsertBefore(head, root.FirstChild)
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	head.AppendChild(style)
}
