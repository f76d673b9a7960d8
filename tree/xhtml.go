package tree

import (
	"fmt"
	"io"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
)

const xhtmlNamespace = "http://www.w3.org/1999/xhtml"

// RenderXHTML writes n as a well formed XHTML document. Void elements are
// self-closed, text is escaped the XML way and the html element gets XHTML
// namespace when it has none.
func RenderXHTML(w io.Writer, n *html.Node) error {
	doc := etree.NewDocument()
	doc.WriteSettings = etree.WriteSettings{
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective("DOCTYPE html")

	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			appendXHTML(&doc.Element, c)
		}
	default:
		appendXHTML(&doc.Element, n)
	}

	if root := doc.Root(); root != nil && root.Tag == "html" && root.SelectAttr("xmlns") == nil {
		root.CreateAttr("xmlns", xhtmlNamespace)
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("unable to render xhtml: %w", err)
	}
	return nil
}

func appendXHTML(parent *etree.Element, n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		el := parent.CreateElement(n.Data)
		for _, a := range n.Attr {
			key := a.Key
			if a.Namespace != "" {
				key = a.Namespace + ":" + a.Key
			}
			el.CreateAttr(key, a.Val)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			appendXHTML(el, c)
		}
	case html.TextNode:
		if parent.Parent() == nil && parent.Tag == "" {
			// text outside of the document element
			return
		}
		if isRawText(parent.Tag) {
			parent.CreateCData(n.Data)
			return
		}
		parent.CreateText(n.Data)
	case html.CommentNode:
		parent.CreateComment(n.Data)
	}
}

func isRawText(tag string) bool {
	return tag == "script" || tag == "style"
}
