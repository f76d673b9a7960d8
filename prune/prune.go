// Package prune reduces a parsed HTML document to the nodes selected by keep
// rules, their ancestors and their descendants, minus nodes selected by
// discard rules.
package prune

import (
	"fmt"
	"strings"

	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"chopper/tree"
	"chopper/utils/debug"
)

// Decision is the verdict made for a single node during pruning.
type Decision int

const (
	// Retained nodes are explicitly selected by keep rules.
	Retained Decision = iota
	// Inherited nodes are below a retained node.
	Inherited
	// Path nodes are ancestors of retained nodes.
	Path
	// Discarded nodes are explicitly selected by discard rules.
	Discarded
	// Dropped nodes are not related to any retained node.
	Dropped
)

func (d Decision) String() string {
	switch d {
	case Retained:
		return "keep"
	case Inherited:
		return "inherited"
	case Path:
		return "path"
	case Discarded:
		return "discard"
	case Dropped:
		return "drop"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Removed reports whether node with this decision is detached from the tree.
func (d Decision) Removed() bool {
	return d == Discarded || d == Dropped
}

// Step is a single pruning decision. Depth is relative to the root.
type Step struct {
	Depth    int
	Node     *html.Node
	Decision Decision
}

// Result of pruning pass.
type Result struct {
	// Root is the document element after pruning, nil when nothing matched.
	Root *html.Node
	// Trace lists decisions in document order.
	Trace []Step
}

// Matched reports whether any node was selected by keep rules.
func (r *Result) Matched() bool {
	return r != nil && r.Root != nil
}

// Removed returns number of nodes detached from the tree.
func (r *Result) Removed() int {
	var n int
	for _, s := range r.Trace {
		if s.Decision.Removed() {
			n++
		}
	}
	return n
}

// Dump returns readable decision tree for debug reports.
func (r *Result) Dump() string {
	tw := debug.NewTreeWriter()
	if !r.Matched() {
		tw.Line(0, "no match")
		return tw.String()
	}
	tw.Line(0, "%s", describe(r.Root))
	for _, s := range r.Trace {
		if s.Node.Type == html.CommentNode {
			tw.TextBlock(s.Depth+1, "comment ["+s.Decision.String()+"]", s.Node.Data)
			continue
		}
		tw.Line(s.Depth+1, "%s [%s]", describe(s.Node), s.Decision)
	}
	return tw.String()
}

func describe(n *html.Node) string {
	var sb strings.Builder
	sb.WriteString(n.Data)
	if id, ok := tree.GetAttr(n, "id"); ok && id != "" {
		sb.WriteByte('#')
		sb.WriteString(id)
	}
	if class, ok := tree.GetAttr(n, "class"); ok {
		for c := range strings.FieldsSeq(class) {
			sb.WriteByte('.')
			sb.WriteString(c)
		}
	}
	return sb.String()
}

type nodeSet map[*html.Node]struct{}

func (s nodeSet) has(n *html.Node) bool {
	_, ok := s[n]
	return ok
}

// collect evaluates rules against the document. Only element and comment
// nodes attached to the tree are collected, a rule selecting document node
// selects the document element.
func collect(doc, root *html.Node, rules []*xpath.Expr) (nodeSet, error) {
	set := make(nodeSet)
	for _, rule := range rules {
		nodes, err := tree.Evaluate(doc, rule)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			switch {
			case n.Type == html.DocumentNode && n == doc:
				set[root] = struct{}{}
			case (n.Type == html.ElementNode || n.Type == html.CommentNode) && n.Parent != nil:
				set[n] = struct{}{}
			}
		}
	}
	return set, nil
}

// ancestorsOf returns all proper ancestors of nodes in set.
func ancestorsOf(set nodeSet) nodeSet {
	ancestors := make(nodeSet)
	for n := range set {
		for p := n.Parent; p != nil; p = p.Parent {
			if ancestors.has(p) {
				break
			}
			ancestors[p] = struct{}{}
		}
	}
	return ancestors
}

type pruner struct {
	keep, discard, ancestors nodeSet

	trace   []Step
	removed []*html.Node
}

// Prune mutates doc in place. Nodes selected by keep rules are retained with
// their ancestors and descendants, nodes selected by discard rules are
// removed unless explicitly kept. Text is never removed: text adjacent to a
// removed node is preserved in its place. When there are no keep rules or they
// select nothing, document is left intact and result does not match.
func Prune(doc *html.Node, keep, discard []*xpath.Expr) (*Result, error) {
	root := tree.Root(doc)
	if root == nil || len(keep) == 0 {
		return &Result{}, nil
	}

	keepSet, err := collect(doc, root, keep)
	if err != nil {
		return nil, fmt.Errorf("unable to evaluate keep rules: %w", err)
	}
	p := &pruner{keep: keepSet, ancestors: ancestorsOf(keepSet)}
	if !p.keep.has(root) && !p.ancestors.has(root) {
		return &Result{}, nil
	}

	if p.discard, err = collect(doc, root, discard); err != nil {
		return nil, fmt.Errorf("unable to evaluate discard rules: %w", err)
	}

	p.walk(root, p.keep.has(root), 0)
	for _, n := range p.removed {
		detach(n)
	}
	return &Result{Root: root, Trace: p.trace}, nil
}

func (p *pruner) walk(parent *html.Node, ancestorKept bool, depth int) {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode && c.Type != html.CommentNode {
			continue
		}
		d := p.decide(c, ancestorKept)
		p.trace = append(p.trace, Step{Depth: depth, Node: c, Decision: d})

		switch d {
		case Discarded, Dropped:
			p.removed = append(p.removed, c)
		case Retained, Inherited:
			p.walk(c, true, depth+1)
		case Path:
			p.walk(c, false, depth+1)
		}
	}
}

func (p *pruner) decide(n *html.Node, ancestorKept bool) Decision {
	kept := p.keep.has(n)
	switch {
	case p.discard.has(n) && !kept:
		return Discarded
	case ancestorKept:
		return Inherited
	case kept:
		return Retained
	case p.ancestors.has(n):
		return Path
	}
	return Dropped
}

// detach removes n from its parent merging text nodes around it, so text
// following removed node ends up right after preceding text.
func detach(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	prev, next := n.PrevSibling, n.NextSibling
	parent.RemoveChild(n)
	if prev != nil && next != nil && prev.Type == html.TextNode && next.Type == html.TextNode {
		prev.Data += next.Data
		parent.RemoveChild(next)
	}
}
