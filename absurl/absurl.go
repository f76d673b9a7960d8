// Package absurl rewrites relative references in HTML trees and CSS text to
// absolute URLs.
package absurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
	"github.com/antchfx/xpath"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"chopper/css"
	"chopper/tree"
)

// references with these prefixes are never rewritten
var skipPrefixes = []string{"#", "javascript:", "mailto:"}

var (
	onclickPattern = regexp.MustCompile(`(?is)(open\(["'])(.*)(["']\))`)
	onclickExpr    = xpath.MustCompile(`//*[@onclick]`)
)

// Resolver resolves references against base URL.
type Resolver struct {
	base      *url.URL
	normalize bool
	log       *zap.Logger
}

// Option configures Resolver.
type Option func(*Resolver)

// WithNormalization makes resolver canonicalize resolved URLs (lowercase
// scheme and host, drop default port, fix escaping).
func WithNormalization() Option {
	return func(r *Resolver) {
		r.normalize = true
	}
}

// WithLogger sets logger for reporting references which could not be
// resolved.
func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) {
		r.log = log.Named("absurl")
	}
}

// New creates resolver for base. Base must be non empty and parse as URL.
func New(base string, opts ...Option) (*Resolver, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, fmt.Errorf("empty base URL")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("bad base URL %q: %w", base, err)
	}
	r := &Resolver{base: u, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Base returns base URL.
func (r *Resolver) Base() string {
	return r.base.String()
}

// Resolve returns absolute form of ref. Fragments, javascript: and mailto:
// references, already absolute URLs and references which cannot be parsed
// are returned unchanged.
func (r *Resolver) Resolve(ref string) string {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return ref
	}
	lower := strings.ToLower(trimmed)
	for _, p := range skipPrefixes {
		if strings.HasPrefix(lower, p) {
			return ref
		}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		r.log.Debug("Unable to parse reference, leaving as is", zap.String("ref", ref), zap.Error(err))
		return ref
	}
	if u.IsAbs() {
		return ref
	}

	resolved := r.base.ResolveReference(u)
	if r.normalize {
		return purell.NormalizeURL(resolved, purell.FlagsSafe)
	}
	return resolved.String()
}

// RewriteHTML makes links in the tree under root absolute. All target
// attributes are removed so that links do not open new browsing contexts.
func (r *Resolver) RewriteHTML(root *html.Node) {
	tree.StripAttribute(root, "target")
	tree.RewriteLinks(root, r.Resolve)

	nodes, err := tree.Evaluate(root, onclickExpr)
	if err != nil {
		r.log.Debug("Unable to select onclick handlers", zap.Error(err))
		return
	}
	for _, n := range nodes {
		if v, ok := tree.GetAttr(n, "onclick"); ok {
			tree.SetAttr(n, "onclick", r.rewriteOnclick(v))
		}
	}
}

// rewriteOnclick resolves argument of open('...') calls preserving quotes.
func (r *Resolver) rewriteOnclick(handler string) string {
	return onclickPattern.ReplaceAllStringFunc(handler, func(match string) string {
		sub := onclickPattern.FindStringSubmatch(match)
		if len(sub) != 4 {
			return match
		}
		return sub[1] + r.Resolve(sub[2]) + sub[3]
	})
}

// RewriteCSS makes url() references in CSS text absolute. Rewritten references
// are always emitted as url('...'), data: URIs are left alone.
func (r *Resolver) RewriteCSS(text string) string {
	return css.RewriteTextURLs(text, r.Resolve)
}
