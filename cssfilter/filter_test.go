package cssfilter_test

import (
	"strings"
	"testing"

	"github.com/antchfx/xpath"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"chopper/css"
	"chopper/cssfilter"
	"chopper/prune"
	"chopper/tree"
)

const testHTML = `
<html>
    <head>
        <title>TestCase</title>
    </head>
    <body>
        <div class="cls1">
            <a href="test">Test Link</a>
            <p>
                Hello <strong>world</strong> !
            </p>
            <p>
                This is <span>not</span> a test
            </p>
        </div>
        <div id="main">
            <a href="test">Test <em>Link</em></a>
        </div>
        <footer>I am the <span>footer</span></footer>
    </body>
</html>
`

const testCSS = `
a { color: red; }
p { margin: 10px; }
div#main { border-bottom: 1px solid black; }
footer { color: blue; }
strong { text-decoration: underline; }
div { border: 1px solid red; }
div.cls1 { border-bottom: 1px solid green; }
span { color: red; }
`

func formatOutput(s string) string {
	var sb strings.Builder
	for line := range strings.Lines(s) {
		sb.WriteString(strings.TrimSpace(line))
	}
	return sb.String()
}

func compile(t *testing.T, exprs ...string) []*xpath.Expr {
	t.Helper()
	var out []*xpath.Expr
	for _, e := range exprs {
		c, err := tree.Compile(e)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, c)
	}
	return out
}

func prunedRoot(t *testing.T, markup string, keep, discard []string) *html.Node {
	t.Helper()
	doc, err := tree.ParseString(markup)
	if err != nil {
		t.Fatal(err)
	}
	res, err := prune.Prune(doc, compile(t, keep...), compile(t, discard...))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched() {
		t.Fatal("expected keep rules to match")
	}
	return res.Root
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		markup  string
		keep    []string
		discard []string
		css     string
		want    string
	}{
		{
			name:   "single keep",
			markup: testHTML,
			keep:   []string{"//strong"},
			css:    testCSS,
			want:   `p{margin:10px;}strong{text-decoration:underline;}div{border:1px solid red;}div.cls1{border-bottom:1px solid green;}`,
		},
		{
			name:    "keep and discard",
			markup:  testHTML,
			keep:    []string{"//footer"},
			discard: []string{"//span"},
			css:     testCSS,
			want:    `footer{color:blue;}`,
		},
		{
			name:   "selector formatting",
			markup: testHTML,
			keep:   []string{"//body"},
			css:    "body,\n        a,     div .test #id,\n\n        article\n        { color: blue; }",
			want:   `body,a{color:blue;}`,
		},
		{
			name:   "multiple selectors cleaning",
			markup: testHTML,
			keep:   []string{`//div[@id="main"]/a`},
			css:    "a, div, footer, body, span { color: red; font-size: 10px; }\na, span, header { border: 1px solid red; }",
			want:   `a,div,body{color:red;font-size:10px;}a{border:1px solid red;}`,
		},
		{
			name:   "state pseudo-classes",
			markup: testHTML,
			keep:   []string{`//div[@id="main"]/a`},
			css:    "a:hover { background-color: red; }\na.red:visited { color: blue; }",
			want:   `a:hover{background-color:red;}`,
		},
		{
			name:   "unknown pseudo-element always matches",
			markup: testHTML,
			keep:   []string{`//div[@id="main"]/a`},
			css:    "a::-moz-page-sequence {color:blue;}",
			want:   `a::-moz-page-sequence{color:blue;}`,
		},
		{
			name:   "bad selectors always match",
			markup: testHTML,
			keep:   []string{"//body"},
			css:    "@bar();\nbody < a { color: red; }\nhelp << p { color: blue; }",
			want:   `body < a{color:red;}help << p{color:blue;}`,
		},
		{
			name:   "unknown at-rules removed",
			markup: testHTML,
			keep:   []string{"//body"},
			css:    "@foo url('lol.py');\nbody { color: red; }",
			want:   `body{color:red;}`,
		},
		{
			name:   "multi-line selectors",
			markup: "<html><body><span class=\"need\"></span></body></html>",
			keep:   []string{"//span[@class='need']"},
			css:    ".hello world this .is a .test,\n.ineed more .tests,\n.more tests,\nbody span.need,\n.do not .want,\nbody {\n  color: blue;\n}",
			want:   `body span.need,body{color:blue;}`,
		},
		{
			name:   "document element selector",
			markup: testHTML,
			keep:   []string{"//em"},
			css:    "html { color: red; } html > body { margin: 0; } :root { x: y; }",
			want:   `html{color:red;}html>body{margin:0;}:root{x:y;}`,
		},
		{
			name:   "grouping rules filtered recursively",
			markup: testHTML,
			keep:   []string{"//em"},
			css:    "@media screen { em { color: red; } span { color: blue; } } @media print { footer { display: none; } } @supports (display: grid) { em, p { display: grid; } }",
			want:   `@media screen{em{color:red;}}@media print{}@supports (display: grid){em{display:grid;}}`,
		},
		{
			name:   "other at-rules retained",
			markup: testHTML,
			keep:   []string{"//em"},
			css:    "@import 'a.css'; @font-face { font-family: x; } @page :left { margin: 1cm; } @keyframes k { from { opacity: 0; } } footer { color: red; }",
			want:   `@import url('a.css') all;@font-face{font-family:x;}@page :left{margin:1cm;}@keyframes k{from{opacity:0;}}`,
		},
		{
			name:   "formatting kept",
			markup: testHTML,
			keep:   []string{"//em"},
			css:    "@media screen and (min-width: 10px), print { em { font-family: Arial,  \"Helvetica Neue\" , sans-serif; } p { x: y; } }",
			want:   `@media screen and (min-width: 10px), print{em{font-family:Arial,  "Helvetica Neue" , sans-serif;}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := prunedRoot(t, tt.markup, tt.keep, tt.discard)
			sheet := css.NewParser(zap.NewNop()).Parse([]byte(tt.css))

			got := cssfilter.New(zaptest.NewLogger(t)).Filter(root, sheet)
			if out := formatOutput(got.String()); out != tt.want {
				t.Errorf("unexpected output:\n got: %s\nwant: %s", out, tt.want)
			}
		})
	}
}

func TestFilter_InputUnchanged(t *testing.T) {
	root := prunedRoot(t, testHTML, []string{"//footer"}, nil)
	sheet := css.NewParser(zap.NewNop()).Parse([]byte("a, footer { color: red; } @media print { a { x: y; } }"))
	before := sheet.String()

	cssfilter.New(nil).Filter(root, sheet)

	if after := sheet.String(); after != before {
		t.Errorf("input stylesheet was modified:\nbefore: %s\n after: %s", before, after)
	}
}

func TestFilter_NilStylesheet(t *testing.T) {
	root := prunedRoot(t, testHTML, []string{"//footer"}, nil)
	if got := cssfilter.New(nil).Filter(root, nil); len(got.Rules) != 0 {
		t.Errorf("expected empty stylesheet, got %s", got)
	}
}

func TestFilter_NilRoot(t *testing.T) {
	sheet := css.NewParser(zap.NewNop()).Parse([]byte("a { color: red; }"))
	if got := cssfilter.New(nil).Filter(nil, sheet); len(got.Rules) != 0 {
		t.Errorf("expected empty stylesheet, got %s", got)
	}
}
