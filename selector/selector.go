// Package selector turns CSS selectors into structural matchers over parsed
// HTML trees.
package selector

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// statePseudoClasses depend on user agent state and cannot be decided from
// the document structure. They are treated as always satisfied.
var statePseudoClasses = map[string]bool{
	"hover":    true,
	"visited":  true,
	"focus":    true,
	"active":   true,
	"target":   true,
	"enabled":  true,
	"disabled": true,
	"checked":  true,
	"link":     true,
}

type token struct {
	tt   css.TokenType
	data string
}

func tokenize(sel string) []token {
	l := css.NewLexer(parse.NewInputString(sel))
	var tokens []token
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return tokens
		}
		tokens = append(tokens, token{tt: tt, data: string(data)})
	}
}

// boundary reports whether token separates compound selectors.
func (t token) boundary() bool {
	switch t.tt {
	case css.WhitespaceToken, css.CommaToken, css.FunctionToken, css.LeftParenthesisToken, css.RightParenthesisToken:
		return true
	case css.DelimToken:
		return t.data == ">" || t.data == "+" || t.data == "~"
	}
	return false
}

// Neutralize removes state dependent pseudo-classes (":hover", ":visited"...)
// from selector. When compound selector becomes empty it is replaced with
// universal selector, so "a :hover" turns into "a *". Pseudo-elements are left
// alone.
func Neutralize(sel string) string {
	tokens := tokenize(sel)

	var (
		sb       strings.Builder
		last     *token
		modified bool
	)
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.tt == css.ColonToken && i+1 < len(tokens) && tokens[i+1].tt == css.IdentToken &&
			statePseudoClasses[strings.ToLower(tokens[i+1].data)] &&
			(last == nil || last.tt != css.ColonToken) {

			modified = true
			next := i + 2
			if (last == nil || last.boundary()) && (next >= len(tokens) || tokens[next].boundary()) {
				sb.WriteByte('*')
				last = &token{tt: css.DelimToken, data: "*"}
			}
			i++
			continue
		}
		sb.WriteString(t.data)
		last = &tokens[i]
	}
	if !modified {
		return sel
	}
	return sb.String()
}

// Split splits selector group on top level commas. Resulting branches are
// trimmed, empty branches are skipped.
func Split(group string) []string {
	var (
		branches []string
		sb       strings.Builder
		depth    int
	)
	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			branches = append(branches, s)
		}
		sb.Reset()
	}
	for _, t := range tokenize(group) {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.CommaToken:
			if depth == 0 {
				flush()
				continue
			}
		}
		sb.WriteString(t.data)
	}
	flush()
	return branches
}

// Compile compiles a single selector (no top level commas) into a matcher
// usable with goquery. State pseudo-classes are neutralized first. Selectors
// with pseudo-elements or syntax cascadia does not understand result in error.
func Compile(sel string) (goquery.Matcher, error) {
	s, err := cascadia.Parse(Neutralize(sel))
	if err != nil {
		return nil, fmt.Errorf("unable to compile selector %q: %w", sel, err)
	}
	return cascadia.Selector(s.Match), nil
}
