package css

import (
	"io"
	"regexp"
	"strings"
)

// Rule is a single top-level or nested item of a stylesheet. The set of
// implementations is closed: *RuleSet, *ImportRule, *MediaRule,
// *SupportsRule, *FontFaceRule, *PageRule and *KeyframesRule.
type Rule interface {
	// AtKeyword returns lowercased at-keyword ("@media") or empty string for
	// plain rule sets.
	AtKeyword() string
	sealed()
}

// Declaration is a single property declaration. Value is the text of the
// value as written, trimmed, without comments and "!important".
type Declaration struct {
	Name      string
	Value     string
	Important bool
}

// RuleSet is a qualified rule: selector list and declarations.
type RuleSet struct {
	Selector     string
	Declarations []Declaration
}

// ImportRule represents @import.
type ImportRule struct {
	URI   string
	Media []string
}

// MediaRule represents @media with nested rules. Prelude is the media query
// list as written, when empty Media is used.
type MediaRule struct {
	Media   []string
	Prelude string
	Rules   []Rule
}

// SupportsRule represents @supports with nested rules.
type SupportsRule struct {
	Condition string
	Rules     []Rule
}

// FontFaceRule represents @font-face.
type FontFaceRule struct {
	Declarations []Declaration
}

// PageRule represents @page with optional page selector and pseudo class.
type PageRule struct {
	Selector     string
	Pseudo       string
	Declarations []Declaration
}

// KeyframesRule represents @keyframes (including vendor prefixed variants).
type KeyframesRule struct {
	Keyword string
	Name    string
	Frames  []*RuleSet
}

func (*RuleSet) AtKeyword() string { return "" }
func (*ImportRule) AtKeyword() string { return "@import" }
func (*MediaRule) AtKeyword() string { return "@media" }
func (*SupportsRule) AtKeyword() string { return "@supports" }
func (*FontFaceRule) AtKeyword() string { return "@font-face" }
func (*PageRule) AtKeyword() string { return "@page" }
func (r *KeyframesRule) AtKeyword() string { return r.Keyword }

func (*RuleSet) sealed() {}
func (*ImportRule) sealed() {}
func (*MediaRule) sealed() {}
func (*SupportsRule) sealed() {}
func (*FontFaceRule) sealed() {}
func (*PageRule) sealed() {}
func (*KeyframesRule) sealed() {}

// Stylesheet represents a parsed CSS stylesheet.
type Stylesheet struct {
	Rules    []Rule   // All top-level rules in source order
	Warnings []string // Constructs which were dropped while parsing
}

// RuleSets returns all top-level rule sets in source order.
func (s *Stylesheet) RuleSets() []*RuleSet {
	var rs []*RuleSet
	for _, r := range s.Rules {
		if set, ok := r.(*RuleSet); ok {
			rs = append(rs, set)
		}
	}
	return rs
}

// Imports returns all @import URIs from the stylesheet in source order.
func (s *Stylesheet) Imports() []string {
	var urls []string
	for _, r := range s.Rules {
		if imp, ok := r.(*ImportRule); ok {
			urls = append(urls, imp.URI)
		}
	}
	return urls
}

// WriteTo writes the stylesheet to w in source order, implementing io.WriterTo.
// Rules are written in compact form, one per line.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.String())
	return int64(n), err
}

// String returns the CSS text of the stylesheet.
func (s *Stylesheet) String() string {
	if s == nil {
		return ""
	}
	var sb strings.Builder
	for i, r := range s.Rules {
		if i > 0 {
			sb.WriteByte('\n')
		}
		writeRule(&sb, r)
	}
	return sb.String()
}

// Format returns compact CSS text of a single rule.
func Format(r Rule) string {
	var sb strings.Builder
	writeRule(&sb, r)
	return sb.String()
}

// quoteEscaper escapes text placed inside single quoted CSS strings.
var quoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func writeRule(sb *strings.Builder, r Rule) {
	switch r := r.(type) {
	case *RuleSet:
		sb.WriteString(r.Selector)
		writeDeclarations(sb, r.Declarations)
	case *ImportRule:
		sb.WriteString("@import url('")
		sb.WriteString(quoteEscaper.Replace(r.URI))
		sb.WriteString("') ")
		if len(r.Media) == 0 {
			sb.WriteString("all")
		} else {
			sb.WriteString(strings.Join(r.Media, ","))
		}
		sb.WriteByte(';')
	case *MediaRule:
		sb.WriteString("@media ")
		if r.Prelude != "" {
			sb.WriteString(r.Prelude)
		} else {
			sb.WriteString(strings.Join(r.Media, ","))
		}
		writeNested(sb, r.Rules)
	case *SupportsRule:
		sb.WriteString("@supports ")
		sb.WriteString(r.Condition)
		writeNested(sb, r.Rules)
	case *FontFaceRule:
		sb.WriteString("@font-face")
		writeDeclarations(sb, r.Declarations)
	case *PageRule:
		sb.WriteString("@page")
		if r.Selector != "" {
			sb.WriteByte(' ')
			sb.WriteString(r.Selector)
		}
		if r.Pseudo != "" {
			sb.WriteString(" :")
			sb.WriteString(r.Pseudo)
		}
		writeDeclarations(sb, r.Declarations)
	case *KeyframesRule:
		sb.WriteString(r.Keyword)
		if r.Name != "" {
			sb.WriteByte(' ')
			sb.WriteString(r.Name)
		}
		sb.WriteByte('{')
		for _, f := range r.Frames {
			writeRule(sb, f)
		}
		sb.WriteByte('}')
	}
}

func writeNested(sb *strings.Builder, rules []Rule) {
	sb.WriteByte('{')
	for _, r := range rules {
		writeRule(sb, r)
	}
	sb.WriteByte('}')
}

func writeDeclarations(sb *strings.Builder, decls []Declaration) {
	sb.WriteByte('{')
	for _, d := range decls {
		sb.WriteString(d.Name)
		sb.WriteByte(':')
		sb.WriteString(d.Value)
		if d.Important {
			sb.WriteString(" !important")
		}
		sb.WriteByte(';')
	}
	sb.WriteByte('}')
}

// urlPattern matches url() references in CSS text.
var urlPattern = regexp.MustCompile(`(?i)url\s*\(\s*(?:["']([^"']*)["']|([^)"']*))\s*\)`)

// RewriteTextURLs replaces url() references in arbitrary CSS text (a value,
// an inline style attribute or a whole stylesheet). Rewritten references are
// always emitted as url('...'). Inline data: URIs are left untouched.
func RewriteTextURLs(text string, fn func(originalURL string) string) string {
	if !strings.Contains(strings.ToLower(text), "url") {
		return text
	}
	return urlPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := urlPattern.FindStringSubmatch(match)
		if len(sub) < 3 {
			return match
		}
		// group 1 is quoted URL, group 2 is unquoted URL
		originalURL := sub[1]
		if originalURL == "" {
			originalURL = sub[2]
		}
		originalURL = strings.TrimSpace(originalURL)
		if originalURL == "" || strings.HasPrefix(strings.ToLower(originalURL), "data:") {
			return match
		}
		return "url('" + quoteEscaper.Replace(fn(originalURL)) + "')"
	})
}
