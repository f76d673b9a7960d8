// Package extractor combines tree pruning, URL rewriting and CSS filtering
// into a single extraction call.
package extractor

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/xpath"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"chopper/absurl"
	"chopper/config"
	"chopper/css"
	"chopper/cssfilter"
	"chopper/prune"
	"chopper/tree"
)

var (
	styleExpr = xpath.MustCompile(`//style`)
	titleExpr = xpath.MustCompile(`//title`)
)

// Options controls single extraction.
type Options struct {
	// BaseURL used to make links absolute.
	BaseURL string
	// RewriteURLs enables rewriting, has no effect without BaseURL.
	RewriteURLs bool
	// Normalize canonicalizes rewritten URLs.
	Normalize bool
	// Format of produced markup.
	Format config.OutputFmt
	// PageStyles adds text of <style> elements of the original page to the
	// stylesheet being filtered.
	PageStyles bool
	// EmbedCSS puts filtered CSS into <style> element of the extracted page.
	EmbedCSS bool
}

// Result of extraction.
type Result struct {
	// Matched is false when keep rules selected nothing, HTML and CSS are
	// empty then.
	Matched bool
	HTML    string
	// Title of the original page, empty when there is none.
	Title string
	// HasCSS is set when stylesheet was processed.
	HasCSS bool
	CSS    string
	// Trace is a readable dump of pruning decisions.
	Trace string
	// Warnings lists CSS constructs dropped while parsing stylesheet.
	Warnings []string
}

// Extractor keeps keep/discard rules and performs extractions. It is safe for
// concurrent use, every extraction works on its own tree and stylesheet.
type Extractor struct {
	log    *zap.Logger
	parser *css.Parser
	filter *cssfilter.Filter

	mu         sync.RWMutex
	keep       []*xpath.Expr
	discard    []*xpath.Expr
	keepSrc    []string
	discardSrc []string
}

// New creates extractor without any rules.
func New(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		log:    log.Named("extractor"),
		parser: css.NewParser(log),
		filter: cssfilter.New(log),
	}
}

// Keep adds rule selecting nodes to keep. Expression must be valid XPath.
func (e *Extractor) Keep(expr string) error {
	c, err := tree.Compile(expr)
	if err != nil {
		return fmt.Errorf("unable to add keep rule: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keep = append(e.keep, c)
	e.keepSrc = append(e.keepSrc, expr)
	return nil
}

// Discard adds rule selecting nodes to remove. Expression must be valid XPath.
func (e *Extractor) Discard(expr string) error {
	c, err := tree.Compile(expr)
	if err != nil {
		return fmt.Errorf("unable to add discard rule: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discard = append(e.discard, c)
	e.discardSrc = append(e.discardSrc, expr)
	return nil
}

// Rules returns registered rules in order of registration.
func (e *Extractor) Rules() (keep, discard []string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.keepSrc...), append([]string(nil), e.discardSrc...)
}

func (e *Extractor) rules() (keep, discard []*xpath.Expr) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.keep[:len(e.keep):len(e.keep)], e.discard[:len(e.discard):len(e.discard)]
}

// ExtractHTML prunes markup and returns resulting document. When nothing was
// selected by keep rules ok is false.
func (e *Extractor) ExtractHTML(markup string, opts Options) (out string, ok bool, err error) {
	doc, err := tree.ParseString(markup)
	if err != nil {
		return "", false, err
	}
	res, err := e.run(doc, nil, opts)
	if err != nil {
		return "", false, err
	}
	return res.HTML, res.Matched, nil
}

// Extract prunes markup and filters stylesheet against pruned tree.
func (e *Extractor) Extract(markup, stylesheet string, opts Options) (*Result, error) {
	doc, err := tree.ParseString(markup)
	if err != nil {
		return nil, err
	}
	return e.run(doc, &stylesheet, opts)
}

// ExtractReader is Extract for undecoded markup, input encoding is detected.
// Nil stylesheet means markup only extraction (unless page styles are
// requested).
func (e *Extractor) ExtractReader(r io.Reader, stylesheet []byte, opts Options) (*Result, error) {
	doc, err := tree.Parse(r)
	if err != nil {
		return nil, err
	}
	var sheet *string
	if stylesheet != nil {
		s := string(stylesheet)
		sheet = &s
	}
	return e.run(doc, sheet, opts)
}

func (e *Extractor) run(doc *html.Node, stylesheet *string, opts Options) (*Result, error) {
	keep, discard := e.rules()

	// everything taken from the original page has to be collected before
	// pruning removes it
	var pageStyles []string
	if opts.PageStyles {
		styles, err := tree.Texts(doc, styleExpr)
		if err != nil {
			return nil, fmt.Errorf("unable to collect page styles: %w", err)
		}
		pageStyles = styles
	}
	res := &Result{}
	if titles, err := tree.Texts(doc, titleExpr); err == nil && len(titles) > 0 {
		res.Title = strings.TrimSpace(titles[0])
	}

	pruned, err := prune.Prune(doc, keep, discard)
	if err != nil {
		return nil, err
	}
	res.Matched, res.Trace = pruned.Matched(), pruned.Dump()
	if !res.Matched {
		e.log.Debug("Nothing matched keep rules", zap.Int("keep", len(keep)))
		return res, nil
	}
	e.log.Debug("Document pruned", zap.Int("decisions", len(pruned.Trace)), zap.Int("removed", pruned.Removed()))

	resolver := e.resolver(opts)
	if resolver != nil {
		resolver.RewriteHTML(pruned.Root)
	}

	// CSS is matched against the tree before anything is embedded into it
	if stylesheet != nil || len(pageStyles) > 0 {
		text := strings.Join(pageStyles, "\n")
		if stylesheet != nil {
			text = *stylesheet + "\n" + text
		}
		filtered := e.filter.Filter(pruned.Root, e.parser.Parse([]byte(text)))

		res.HasCSS = true
		res.Warnings = filtered.Warnings
		res.CSS = filtered.String()
		if resolver != nil {
			res.CSS = resolver.RewriteCSS(res.CSS)
		}
		if opts.EmbedCSS && len(res.CSS) > 0 {
			tree.EmbedStyle(pruned.Root, res.CSS)
		}
	}

	var sb strings.Builder
	switch opts.Format {
	case config.OutputFmtXhtml:
		err = tree.RenderXHTML(&sb, pruned.Root)
	default:
		err = tree.Render(&sb, pruned.Root)
	}
	if err != nil {
		return nil, err
	}
	res.HTML = sb.String()
	return res, nil
}

func (e *Extractor) resolver(opts Options) *absurl.Resolver {
	if !opts.RewriteURLs || opts.BaseURL == "" {
		return nil
	}
	ropts := []absurl.Option{absurl.WithLogger(e.log)}
	if opts.Normalize {
		ropts = append(ropts, absurl.WithNormalization())
	}
	r, err := absurl.New(opts.BaseURL, ropts...)
	if err != nil {
		e.log.Warn("Unable to use base URL, links are left as is", zap.Error(err))
		return nil
	}
	return r
}
