package tree

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"chopper/css"
)

// linkAttributes are attributes holding a single URL.
var linkAttributes = map[string]bool{
	"action":     true,
	"archive":    true,
	"background": true,
	"cite":       true,
	"classid":    true,
	"codebase":   true,
	"data":       true,
	"href":       true,
	"longdesc":   true,
	"profile":    true,
	"src":        true,
	"usemap":     true,
	"dynsrc":     true,
	"lowsrc":     true,
}

var refreshPattern = regexp.MustCompile(`(?i)^(\s*[\d.]*\s*[;,]\s*url\s*=\s*)(['"]?)([^'"]*)(['"]?)(\s*)$`)

// RewriteLinks applies fn to every link found in the tree under root (root
// included): single URL attributes, srcset candidates, url() references in
// style attributes and <style> elements and meta refresh target.
func RewriteLinks(root *html.Node, fn func(string) string) {
	rewriteElementLinks(root, fn)
	for n := range root.Descendants() {
		rewriteElementLinks(n, fn)
	}
}

func rewriteElementLinks(n *html.Node, fn func(string) string) {
	if n.Type != html.ElementNode {
		return
	}

	for i := range n.Attr {
		a := &n.Attr[i]
		if a.Namespace != "" {
			continue
		}
		switch {
		case linkAttributes[a.Key]:
			a.Val = fn(a.Val)
		case a.Key == "srcset":
			a.Val = rewriteSrcset(a.Val, fn)
		case a.Key == "style":
			a.Val = css.RewriteTextURLs(a.Val, fn)
		case a.Key == "content" && n.DataAtom == atom.Meta && isRefresh(n):
			a.Val = rewriteRefresh(a.Val, fn)
		}
	}

	if n.DataAtom == atom.Style {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				c.Data = css.RewriteTextURLs(c.Data, fn)
			}
		}
	}
}

func isRefresh(n *html.Node) bool {
	v, ok := GetAttr(n, "http-equiv")
	return ok && strings.EqualFold(strings.TrimSpace(v), "refresh")
}

func rewriteRefresh(content string, fn func(string) string) string {
	m := refreshPattern.FindStringSubmatch(content)
	if m == nil || strings.TrimSpace(m[3]) == "" {
		return content
	}
	return m[1] + m[2] + fn(strings.TrimSpace(m[3])) + m[4] + m[5]
}

// rewriteSrcset rewrites URL of every image candidate ("url [descriptor]")
// keeping descriptors.
func rewriteSrcset(srcset string, fn func(string) string) string {
	candidates := strings.Split(srcset, ",")
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		fields[0] = fn(fields[0])
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}
