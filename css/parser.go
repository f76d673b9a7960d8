package css

import (
	"bytes"
	"errors"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS stylesheets into rules.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// token is a lexer token detached from the input buffer.
type token struct {
	tt   css.TokenType
	text string
}

// Parse parses CSS text into a Stylesheet. At-rules which are not
// recognized or cannot be parsed are dropped and reported in Warnings.
// Declaration values and grouping rule preludes keep source formatting.
// The optional source parameter identifies what's being parsed (for debug logging).
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	sheet := &Stylesheet{
		Rules:    make([]Rule, 0),
		Warnings: make([]string, 0),
	}

	if len(source) > 0 && source[0] != "" {
		p.log.Debug("Parsing CSS", zap.String("source", source[0]), zap.Int("bytes", len(data)))
	}

	sheet.Rules = p.parseRules(p.lex(data, sheet), sheet, true)
	return sheet
}

// lex splits input into tokens. Whitespace and comments are kept, so any
// part of the input could be reproduced as written.
func (p *Parser) lex(data []byte, sheet *Stylesheet) []token {
	l := css.NewLexer(parse.NewInput(bytes.NewReader(data)))
	toks := make([]token, 0, len(data)/4)
	for {
		tt, text := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				p.warn(sheet, "lexer error", zap.Error(err))
			}
			return toks
		}
		toks = append(toks, token{tt: tt, text: string(text)})
	}
}

// parseRules parses list of rules. Blocks are passed without enclosing
// braces, so nested lists end with the slice.
func (p *Parser) parseRules(toks []token, sheet *Stylesheet, top bool) []Rule {
	rules := make([]Rule, 0)

	for i := 0; i < len(toks); {
		t := toks[i]
		switch {
		case isBlank(t), top && (t.tt == css.CDOToken || t.tt == css.CDCToken):
			i++

		case t.tt == css.RightBraceToken || t.tt == css.SemicolonToken:
			p.warn(sheet, "unexpected token", zap.String("token", t.text))
			i++

		case t.tt == css.AtKeywordToken:
			prelude, block, hasBlock, next := consumeRule(toks, i+1)
			i = next
			if r := p.parseAtRule(sheet, strings.ToLower(t.text), prelude, block, hasBlock); r != nil {
				rules = append(rules, r)
			}

		default:
			prelude, block, hasBlock, next := consumeRule(toks, i)
			i = next
			selector := selectorText(prelude)
			if !hasBlock || selector == "" {
				p.warn(sheet, "malformed rule", zap.String("prelude", rawText(prelude)))
				continue
			}
			rules = append(rules, &RuleSet{Selector: selector, Declarations: p.parseDeclarations(block, sheet)})
		}
	}
	return rules
}

// parseAtRule builds rule from at-keyword, its prelude and optional block.
// Nil is returned for rules which are dropped.
func (p *Parser) parseAtRule(sheet *Stylesheet, name string, prelude, block []token, hasBlock bool) Rule {
	switch {
	case name == "@import" && !hasBlock:
		imp, ok := parseImport(prelude)
		if !ok {
			p.warn(sheet, "malformed @import", zap.String("value", rawText(prelude)))
			return nil
		}
		p.log.Debug("Parsed @import", zap.String("url", imp.URI))
		return imp

	case name == "@media" && hasBlock:
		media := &MediaRule{Media: splitList(prelude), Prelude: rawText(prelude), Rules: p.parseRules(block, sheet, false)}
		p.log.Debug("Parsed @media block", zap.Strings("media", media.Media), zap.Int("rules", len(media.Rules)))
		return media

	case name == "@supports" && hasBlock:
		return &SupportsRule{Condition: rawText(prelude), Rules: p.parseRules(block, sheet, false)}

	case name == "@font-face" && hasBlock:
		return &FontFaceRule{Declarations: p.parseDeclarations(block, sheet)}

	case name == "@page" && hasBlock:
		selector, pseudo := parsePageSelector(prelude)
		return &PageRule{
			Selector:     selector,
			Pseudo:       pseudo,
			Declarations: p.parseDeclarations(block, sheet),
		}

	case isKeyframes(name) && hasBlock:
		kf := &KeyframesRule{Keyword: name, Name: rawText(prelude)}
		for _, r := range p.parseRules(block, sheet, false) {
			if frame, ok := r.(*RuleSet); ok {
				kf.Frames = append(kf.Frames, frame)
			}
		}
		return kf
	}

	p.warn(sheet, "unsupported at-rule", zap.String("rule", name))
	return nil
}

// parseDeclarations parses content of declaration block.
func (p *Parser) parseDeclarations(toks []token, sheet *Stylesheet) []Declaration {
	decls := make([]Declaration, 0)

	for i := 0; i < len(toks); {
		t := toks[i]
		switch {
		case isBlank(t), t.tt == css.SemicolonToken:
			i++
			continue

		case t.tt == css.AtKeywordToken:
			// nested at-rules inside declaration blocks are not supported
			_, _, _, i = consumeRule(toks, i+1)
			p.warn(sheet, "nested at-rule in declarations", zap.String("rule", t.text))
			continue
		}

		end := declarationEnd(toks, i)
		d, ok := makeDeclaration(toks[i:end])
		if ok {
			decls = append(decls, d)
		} else {
			p.warn(sheet, "malformed declaration", zap.String("text", rawText(toks[i:end])))
		}
		i = end
	}
	return decls
}

func (p *Parser) warn(sheet *Stylesheet, msg string, fields ...zap.Field) {
	p.log.Debug("Dropping CSS: "+msg, fields...)
	sheet.Warnings = append(sheet.Warnings, msg)
}

func isBlank(t token) bool {
	return t.tt == css.WhitespaceToken || t.tt == css.CommentToken
}

// consumeRule scans rule starting at start (after at-keyword for at-rules)
// up to its block or terminating semicolon. Closing brace or end of input
// terminate rule without block, end of input closes unterminated block.
func consumeRule(toks []token, start int) (prelude, block []token, hasBlock bool, next int) {
	depth := 0
	for i := start; i < len(toks); i++ {
		switch toks[i].tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.LeftBraceToken:
			if depth > 0 {
				depth++
				continue
			}
			end := matchingBrace(toks, i)
			if end == len(toks) {
				return toks[start:i], toks[i+1:], true, end
			}
			return toks[start:i], toks[i+1 : end], true, end + 1
		case css.RightBraceToken:
			if depth == 0 {
				return toks[start:i], nil, false, i
			}
			depth--
		case css.SemicolonToken:
			if depth == 0 {
				return toks[start:i], nil, false, i + 1
			}
		}
	}
	return toks[start:], nil, false, len(toks)
}

// matchingBrace returns index of brace closing the one at open or length of
// toks when block is not terminated.
func matchingBrace(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].tt {
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			if depth--; depth == 0 {
				return i
			}
		}
	}
	return len(toks)
}

// declarationEnd returns index of semicolon ending declaration started at
// start, nested blocks and functions included.
func declarationEnd(toks []token, start int) int {
	depth := 0
	for i := start; i < len(toks); i++ {
		switch toks[i].tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken, css.LeftBraceToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken, css.RightBraceToken:
			if depth > 0 {
				depth--
			}
		case css.SemicolonToken:
			if depth == 0 {
				return i
			}
		}
	}
	return len(toks)
}

// makeDeclaration builds declaration from "name: value [!important]"
// tokens. Value is kept as written, only trimmed and stripped of comments.
func makeDeclaration(toks []token) (Declaration, bool) {
	i := skipBlank(toks, 0)
	if i == len(toks) || (toks[i].tt != css.IdentToken && toks[i].tt != css.CustomPropertyNameToken) {
		return Declaration{}, false
	}
	d := Declaration{Name: toks[i].text}
	custom := strings.HasPrefix(d.Name, "--")
	if !custom {
		d.Name = strings.ToLower(d.Name)
	}

	i = skipBlank(toks, i+1)
	if i == len(toks) || toks[i].tt != css.ColonToken {
		return Declaration{}, false
	}
	value := toks[i+1:]

	if last := lastSolid(value, len(value)); last >= 0 &&
		value[last].tt == css.IdentToken && strings.EqualFold(value[last].text, "important") {
		if bang := lastSolid(value, last); bang >= 0 && value[bang].tt == css.DelimToken && value[bang].text == "!" {
			d.Important = true
			value = value[:bang]
		}
	}

	d.Value = rawText(value)
	return d, custom || len(d.Value) > 0
}

func skipBlank(toks []token, i int) int {
	for i < len(toks) && isBlank(toks[i]) {
		i++
	}
	return i
}

// lastSolid returns index of the last non blank token before end or -1.
func lastSolid(toks []token, end int) int {
	for i := end - 1; i >= 0; i-- {
		if !isBlank(toks[i]) {
			return i
		}
	}
	return -1
}

// parseImport extracts URI and media list from @import prelude.
// Handles: @import "url"; @import url("url"); @import url(url) screen, print;
func parseImport(toks []token) (*ImportRule, bool) {
	imp := &ImportRule{}

	i := skipBlank(toks, 0)
	if i == len(toks) {
		return nil, false
	}

	switch t := toks[i]; {
	case t.tt == css.StringToken:
		imp.URI = unquote(t.text)
	case t.tt == css.URLToken:
		imp.URI = urlTokenValue(t.text)
	case t.tt == css.FunctionToken && strings.EqualFold(t.text, "url("):
		// url( "quoted" ) lexed as function
		j := skipBlank(toks, i+1)
		if j == len(toks) || toks[j].tt != css.StringToken {
			return nil, false
		}
		imp.URI = unquote(toks[j].text)
		if j = skipBlank(toks, j+1); j == len(toks) || toks[j].tt != css.RightParenthesisToken {
			return nil, false
		}
		i = j
	default:
		return nil, false
	}

	imp.Media = splitList(toks[i+1:])
	if len(imp.Media) == 0 {
		imp.Media = []string{"all"}
	}
	return imp, true
}

// parsePageSelector splits @page prelude into page name and pseudo class.
func parsePageSelector(toks []token) (selector, pseudo string) {
	var sel, ps strings.Builder
	afterColon := false
	for _, t := range toks {
		switch {
		case isBlank(t):
		case t.tt == css.ColonToken:
			afterColon = true
		case afterColon:
			ps.WriteString(t.text)
		default:
			sel.WriteString(t.text)
		}
	}
	return sel.String(), ps.String()
}

func isKeyframes(name string) bool {
	if name == "@keyframes" {
		return true
	}
	// vendor prefixed: @-webkit-keyframes
	return strings.HasPrefix(name, "@-") && strings.HasSuffix(name, "-keyframes")
}

// selectorText rebuilds selector collapsing whitespace. Whitespace around
// commas and combinators is dropped, elsewhere it becomes single space.
func selectorText(toks []token) string {
	var (
		sb          strings.Builder
		pending     bool
		afterJoiner bool
	)
	for _, t := range toks {
		if isBlank(t) {
			pending = t.tt == css.WhitespaceToken || pending
			continue
		}
		joiner := t.tt == css.CommaToken || (t.tt == css.DelimToken && strings.ContainsAny(t.text, ">+~"))
		if pending && sb.Len() > 0 && !joiner && !afterJoiner {
			sb.WriteByte(' ')
		}
		pending, afterJoiner = false, joiner
		sb.WriteString(t.text)
	}
	return sb.String()
}

// splitList splits tokens on top level commas, returning trimmed non empty
// parts as written.
func splitList(toks []token) []string {
	var (
		parts []string
		start int
		depth int
	)
	flush := func(end int) {
		if s := rawText(toks[start:end]); s != "" {
			parts = append(parts, s)
		}
		start = end + 1
	}
	for i, t := range toks {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.CommaToken:
			if depth == 0 {
				flush(i)
			}
		}
	}
	flush(len(toks))
	return parts
}

// rawText returns source text of tokens without comments, trimmed.
func rawText(toks []token) string {
	var sb strings.Builder
	for _, t := range toks {
		if t.tt != css.CommentToken {
			sb.WriteString(t.text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// urlTokenValue extracts the reference from url(...) token text.
func urlTokenValue(s string) string {
	if len(s) >= 4 && strings.EqualFold(s[:4], "url(") {
		s = s[4:]
	}
	s = strings.TrimSuffix(s, ")")
	return unquote(strings.TrimSpace(s))
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
