package absurl_test

import (
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"chopper/absurl"
	"chopper/tree"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		wantErr bool
	}{
		{"absolute", "http://test.com", false},
		{"with path", "https://website.com/section/index.html", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"malformed", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := absurl.New(tt.base)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		base string
		ref  string
		want string
	}{
		{"http://test.com", "test", "http://test.com/test"},
		{"http://test.com/dir/", "test.css", "http://test.com/dir/test.css"},
		{"http://website.com/dir/page.html", "font.woff", "http://website.com/dir/font.woff"},
		{"https://website.com/section/category/index.html", "../img/cool-picture.png", "https://website.com/section/img/cool-picture.png"},
		{"http://test.com/a/b", "/root.html", "http://test.com/root.html"},
		{"http://test.com/a/b", "//cdn.com/x.js", "http://cdn.com/x.js"},
		{"http://test.com/a/b", "?q=1", "http://test.com/a/b?q=1"},
		{"http://test.com", "  spaced.html  ", "http://test.com/spaced.html"},
		// left alone
		{"http://test.com", "#top", "#top"},
		{"http://test.com", "javascript:void(0)", "javascript:void(0)"},
		{"http://test.com", "JavaScript:go()", "JavaScript:go()"},
		{"http://test.com", "mailto:me@test.com", "mailto:me@test.com"},
		{"http://test.com", "http://website.com/css/style.css", "http://website.com/css/style.css"},
		{"http://test.com", "HTTPS://Other.com/../x", "HTTPS://Other.com/../x"},
		{"http://test.com", "", ""},
		{"http://test.com", "%zz", "%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.base+"+"+tt.ref, func(t *testing.T) {
			r, err := absurl.New(tt.base, absurl.WithLogger(zaptest.NewLogger(t)))
			if err != nil {
				t.Fatal(err)
			}
			if got := r.Resolve(tt.ref); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	r, err := absurl.New("http://test.com/folder/page.html")
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{"a.html", "../b.png", "/c", "//d.com/e", "f?x=1#y"} {
		once := r.Resolve(ref)
		if twice := r.Resolve(once); twice != once {
			t.Errorf("Resolve is not idempotent for %q: %q then %q", ref, once, twice)
		}
	}
}

func TestResolve_Normalization(t *testing.T) {
	r, err := absurl.New("HTTP://Test.COM:80/dir/", absurl.WithNormalization())
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Resolve("a.html"); got != "http://test.com/dir/a.html" {
		t.Errorf("unexpected normalized URL %q", got)
	}
}

func TestRewriteHTML(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		markup string
		want   string
	}{
		{
			name:   "onclick single quotes",
			base:   "http://test.com/folder/hello.html",
			markup: `<html><head></head><body><a onclick="open('page.html')">Hello world :)</a></body></html>`,
			want:   `<html><head></head><body><a onclick="open(&#39;http://test.com/folder/page.html&#39;)">Hello world :)</a></body></html>`,
		},
		{
			name:   "onclick double quotes",
			base:   "http://test.com/folder/hello.html",
			markup: `<html><head></head><body><button onclick='OPEN("page.html")'>x</button></body></html>`,
			want:   `<html><head></head><body><button onclick="OPEN(&#34;http://test.com/folder/page.html&#34;)">x</button></body></html>`,
		},
		{
			name:   "image src",
			base:   "https://website.com/section/category/index.html",
			markup: `<html><head></head><body><img alt="Test" src="../img/cool-picture.png"></body></html>`,
			want:   `<html><head></head><body><img alt="Test" src="https://website.com/section/img/cool-picture.png"/></body></html>`,
		},
		{
			name:   "target stripped",
			base:   "http://test.com",
			markup: `<html><head></head><body><a href="test" target="_blank">Test</a><a href="#x">y</a></body></html>`,
			want:   `<html><head></head><body><a href="http://test.com/test">Test</a><a href="#x">y</a></body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := absurl.New(tt.base)
			if err != nil {
				t.Fatal(err)
			}
			doc, err := tree.ParseString(tt.markup)
			if err != nil {
				t.Fatal(err)
			}
			root := tree.Root(doc)
			r.RewriteHTML(root)

			got, err := tree.RenderString(root)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("unexpected output:\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestRewriteCSS(t *testing.T) {
	r, err := absurl.New("http://website.com/dir/page.html")
	if err != nil {
		t.Fatal(err)
	}

	in := strings.Join([]string{
		`@font-face{src:local('Font'),url(font.woff) format('woff');}`,
		`@font-face{src:url('font.woff');}`,
		`@font-face{src:url("font.woff");}`,
		`a{background-image:url(data:image/png;base64,BASE64DATA);}`,
		`b{background:URL( /abs.png );}`,
	}, "\n")
	want := strings.Join([]string{
		`@font-face{src:local('Font'),url('http://website.com/dir/font.woff') format('woff');}`,
		`@font-face{src:url('http://website.com/dir/font.woff');}`,
		`@font-face{src:url('http://website.com/dir/font.woff');}`,
		`a{background-image:url(data:image/png;base64,BASE64DATA);}`,
		`b{background:url('http://website.com/abs.png');}`,
	}, "\n")

	if got := r.RewriteCSS(in); got != want {
		t.Errorf("unexpected output:\n got: %s\nwant: %s", got, want)
	}
}
