// Package cssfilter removes CSS rules which cannot apply to a (pruned) HTML
// tree.
package cssfilter

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"chopper/css"
	"chopper/selector"
)

// Filter matches stylesheet rules against HTML tree.
type Filter struct {
	log *zap.Logger
}

// New creates a new rule filter.
func New(log *zap.Logger) *Filter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Filter{log: log.Named("css-filter")}
}

// Filter returns a new stylesheet with rules which still apply to the tree
// rooted at root. Selector groups are reduced to branches matching at least
// one node, rule sets with no matching branches are dropped. Rule sets which
// cannot be evaluated are kept as is. @media and @supports are filtered
// recursively and kept even when they become empty, other at-rules are kept
// unchanged. Rule order is preserved.
func (f *Filter) Filter(root *html.Node, sheet *css.Stylesheet) *css.Stylesheet {
	out := &css.Stylesheet{}
	if root == nil || sheet == nil {
		return out
	}

	top := root
	for top.Parent != nil {
		top = top.Parent
	}
	doc := goquery.NewDocumentFromNode(top)

	out.Rules = f.filterRules(doc, sheet.Rules)
	out.Warnings = append(out.Warnings, sheet.Warnings...)
	return out
}

func (f *Filter) filterRules(doc *goquery.Document, rules []css.Rule) []css.Rule {
	out := make([]css.Rule, 0, len(rules))
	for _, r := range rules {
		switch r := r.(type) {
		case *css.RuleSet:
			if kept := f.filterRuleSet(doc, r); kept != nil {
				out = append(out, kept)
			}
		case *css.MediaRule:
			out = append(out, &css.MediaRule{Media: r.Media, Prelude: r.Prelude, Rules: f.filterRules(doc, r.Rules)})
		case *css.SupportsRule:
			out = append(out, &css.SupportsRule{Condition: r.Condition, Rules: f.filterRules(doc, r.Rules)})
		default:
			out = append(out, r)
		}
	}
	return out
}

func (f *Filter) filterRuleSet(doc *goquery.Document, rs *css.RuleSet) *css.RuleSet {
	branches := selector.Split(rs.Selector)
	if len(branches) == 0 {
		// nothing to match against, keep what we do not understand
		return rs
	}

	matched := make([]string, 0, len(branches))
	for _, b := range branches {
		ok, err := f.matches(doc, b)
		if err != nil {
			f.log.Debug("Unable to evaluate selector, keeping rule",
				zap.String("selector", rs.Selector), zap.String("branch", b), zap.Error(err))
			return rs
		}
		if ok {
			matched = append(matched, b)
		}
	}

	if len(matched) == 0 {
		return nil
	}
	return &css.RuleSet{Selector: strings.Join(matched, ","), Declarations: rs.Declarations}
}

func (f *Filter) matches(doc *goquery.Document, branch string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("selector matching panicked: %v", r)
		}
	}()

	m, err := selector.Compile(branch)
	if err != nil {
		return false, err
	}
	return doc.FindMatcher(m).Length() > 0, nil
}
