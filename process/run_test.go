package process

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hidez8891/zip"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"chopper/archive"
	"chopper/config"
	"chopper/state"
)

const (
	samplePage = `<!DOCTYPE html>
<html><head><title>Sample</title></head>
<body><article><p class="a">Hello</p><a href="/next">next</a></article><div id="ad" class="b">Buy!</div></body></html>`
	otherPage       = `<html><body><div>nothing to keep here</div></body></html>`
	sampleCSS       = `.a{color:red}.b{color:blue}`
	sampleFilterCSS = `.a{color:red;}`
)

// setupTestEnv creates a test environment with proper context and logger
func setupTestEnv(t *testing.T) (context.Context, *state.LocalEnv) {
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)
	env.Log = logger
	env.Cfg = cfg
	return ctx, env
}

func runExtract(ctx context.Context, args ...string) error {
	cmd := &cli.Command{Name: "extract", Flags: Flags(), Action: Run}
	return cmd.Run(ctx, append([]string{"extract"}, args...))
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected output %s: %v", path, err)
	}
	return string(data)
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(files)
	return files
}

func createArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	w, err := archive.Create(path, false)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := w.Add(name, time.Now(), []byte(files[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func archiveContent(t *testing.T, path string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := archive.Walk(path, "", func(_ string, f *zip.File) error {
		r, err := f.Open()
		if err != nil {
			return err
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		out[f.Name] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("unable to read %s: %v", path, err)
	}
	return out
}

func checkPage(t *testing.T, content string) {
	t.Helper()
	if !strings.Contains(content, `<p class="a">Hello</p>`) {
		t.Errorf("kept content is missing:\n%s", content)
	}
	if strings.Contains(content, "Buy!") {
		t.Errorf("content outside of keep rules is present:\n%s", content)
	}
}

func TestProcess_NonExistentPath(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	dst := t.TempDir()

	err := runExtract(ctx, "--keep", "//article", filepath.Join(t.TempDir(), "missing.html"), dst)
	if err == nil || !strings.Contains(err.Error(), "input source was not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"page.html": samplePage})

	ctx, cancel := context.WithCancel(ctx)
	cancel()

	if err := runExtract(ctx, "--keep", "//article", src, t.TempDir()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestProcess_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", []string{"--keep", "//article"}, "no input source"},
		{"no keep rules", []string{"page.html"}, "no keep rules"},
		{"invalid keep", []string{"--keep", "//[", "page.html"}, "unable to add keep rule"},
		{"invalid discard", []string{"--keep", "//article", "--discard", "(", "page.html"}, "unable to add discard rule"},
		{"missing stylesheet", []string{"--keep", "//article", "--css", "missing.css", "page.html"}, "unable to read stylesheet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := setupTestEnv(t)
			src := t.TempDir()
			writeFiles(t, src, map[string]string{"page.html": samplePage})
			t.Chdir(src)

			err := runExtract(ctx, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestProcess_SingleFile(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	writeFiles(t, src, map[string]string{"page.html": samplePage, "style.css": sampleCSS})

	err := runExtract(ctx, "--keep", "//article", "--css", filepath.Join(src, "style.css"),
		"--base-url", "https://example.com/news/", filepath.Join(src, "page.html"), dst)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := listFiles(t, dst); !slices.Equal(got, []string{"page.css", "page.html"}) {
		t.Fatalf("unexpected output %v", got)
	}
	content := readFile(t, filepath.Join(dst, "page.html"))
	checkPage(t, content)
	if !strings.Contains(content, `href="https://example.com/next"`) {
		t.Errorf("link was not made absolute:\n%s", content)
	}
	if css := readFile(t, filepath.Join(dst, "page.css")); css != sampleFilterCSS {
		t.Errorf("stylesheet = %q, want %q", css, sampleFilterCSS)
	}
}

func TestProcess_NoRewrite(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	writeFiles(t, src, map[string]string{"page.html": samplePage})

	err := runExtract(ctx, "--keep", "//article", "--base-url", "https://example.com/", "--no-rewrite",
		filepath.Join(src, "page.html"), dst)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if content := readFile(t, filepath.Join(dst, "page.html")); !strings.Contains(content, `href="/next"`) {
		t.Errorf("link should be left as is:\n%s", content)
	}
}

func TestProcess_NonHTMLFile(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"notes.txt": "just some notes"})

	err := runExtract(ctx, "--keep", "//article", filepath.Join(src, "notes.txt"), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "not recognized as HTML") {
		t.Errorf("expected recognition error, got %v", err)
	}
}

func TestProcess_Directory(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	writeFiles(t, src, map[string]string{
		"sub/one.html":       samplePage,
		"two.htm":            samplePage,
		"notes.txt":          "not a page",
		"sub/deeper/no.html": otherPage,
	})

	if err := runExtract(ctx, "--keep", "//article", src, dst); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"sub/one.html", "two.html"}
	if got := listFiles(t, dst); !slices.Equal(got, want) {
		t.Fatalf("output = %v, want %v", got, want)
	}
	checkPage(t, readFile(t, filepath.Join(dst, "sub", "one.html")))
	if env.HasStylesheet() {
		t.Error("no stylesheet was requested")
	}
}

func TestProcess_DirectoryWithTail(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"page.html": samplePage})

	err := runExtract(ctx, "--keep", "//article", filepath.Join(src, "missing", "page.html"), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "input source was not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestProcess_NoDirs(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	writeFiles(t, src, map[string]string{"a/b/page.html": samplePage})

	if err := runExtract(ctx, "--keep", "//article", "--nodirs", src, dst); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := listFiles(t, dst); !slices.Equal(got, []string{"page.html"}) {
		t.Errorf("output = %v", got)
	}
}

func TestProcess_Overwrite(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	writeFiles(t, src, map[string]string{"page.html": samplePage})
	writeFiles(t, dst, map[string]string{"page.html": "old"})

	// per page failures are logged, processing continues
	if err := runExtract(ctx, "--keep", "//article", filepath.Join(src, "page.html"), dst); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "page.html")); got != "old" {
		t.Errorf("existing file was replaced without --overwrite")
	}

	ctx, _ = setupTestEnv(t)
	if err := runExtract(ctx, "--keep", "//article", "--overwrite", filepath.Join(src, "page.html"), dst); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	checkPage(t, readFile(t, filepath.Join(dst, "page.html")))
}

func TestProcess_Archive(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	arc := filepath.Join(src, "site.zip")
	createArchive(t, arc, map[string]string{
		"pages/a.html":   samplePage,
		"pages/b.html":   otherPage,
		"img/logo.png":   "\x89PNG\r\n\x1a\n",
		"root/index.htm": samplePage,
	})

	if err := runExtract(ctx, "--keep", "//article", arc, dst); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"pages/a.html", "root/index.html"}
	if got := listFiles(t, dst); !slices.Equal(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}
}

func TestProcess_ArchiveWithPath(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	arc := filepath.Join(src, "site.zip")
	createArchive(t, arc, map[string]string{
		"pages/a.html": samplePage,
		"other/b.html": samplePage,
	})

	if err := runExtract(ctx, "--keep", "//article", filepath.Join(arc, "pages"), dst); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := listFiles(t, dst); !slices.Equal(got, []string{"pages/a.html"}) {
		t.Errorf("output = %v", got)
	}
}

func TestProcess_ArchiveInDirectory(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "dl"), 0755); err != nil {
		t.Fatal(err)
	}
	createArchive(t, filepath.Join(src, "dl", "site.zip"), map[string]string{"a.html": samplePage})

	if err := runExtract(ctx, "--keep", "//article", src, dst); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := listFiles(t, dst); !slices.Equal(got, []string{"dl/a.html"}) {
		t.Errorf("output = %v", got)
	}
}

func TestProcess_ZipOutput(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src, dst := t.TempDir(), t.TempDir()
	writeFiles(t, src, map[string]string{"x/page.html": samplePage, "style.css": sampleCSS})

	err := runExtract(ctx, "--keep", "//article", "--css", filepath.Join(src, "style.css"), "--zip", "result",
		filepath.Join(src, "x"), dst)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := listFiles(t, dst); !slices.Equal(got, []string{"result.zip"}) {
		t.Fatalf("output = %v", got)
	}
	files := archiveContent(t, filepath.Join(dst, "result.zip"))
	checkPage(t, files["page.html"])
	if files["page.css"] != sampleFilterCSS {
		t.Errorf("stylesheet in archive = %q", files["page.css"])
	}
}

func TestProcess_EmbedCSS(t *testing.T) {
	ctx, env := setupTestEnv(t)
	env.Cfg.Output.SeparateCSS = false
	src, dst := t.TempDir(), t.TempDir()
	writeFiles(t, src, map[string]string{"page.html": samplePage, "style.css": sampleCSS})

	err := runExtract(ctx, "--keep", "//article", "--keep", "//title", "--css", filepath.Join(src, "style.css"),
		filepath.Join(src, "page.html"), dst)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := listFiles(t, dst); !slices.Equal(got, []string{"page.html"}) {
		t.Fatalf("output = %v", got)
	}
	content := readFile(t, filepath.Join(dst, "page.html"))
	checkPage(t, content)
	if !strings.Contains(content, "<style>"+sampleFilterCSS+"</style>") {
		t.Errorf("stylesheet was not embedded:\n%s", content)
	}
}

func TestProcess_DifferentFormats(t *testing.T) {
	tests := []struct {
		to   string
		want string
	}{
		{"html", "page.html"},
		{"xhtml", "page.xhtml"},
		{"pdf", "page.html"},
	}

	for _, tt := range tests {
		t.Run(tt.to, func(t *testing.T) {
			ctx, _ := setupTestEnv(t)
			src, dst := t.TempDir(), t.TempDir()
			writeFiles(t, src, map[string]string{"page.html": samplePage})

			if err := runExtract(ctx, "--keep", "//article", "--to", tt.to, filepath.Join(src, "page.html"), dst); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := listFiles(t, dst); !slices.Equal(got, []string{tt.want}) {
				t.Errorf("output = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestProcess_NameTemplate(t *testing.T) {
	ctx, env := setupTestEnv(t)
	env.Cfg.Output.NameTemplate = "{{ .Title | lower }}-{{ .Index }}"
	src, dst := t.TempDir(), t.TempDir()
	writeFiles(t, src, map[string]string{"page.html": samplePage})

	if err := runExtract(ctx, "--keep", "//article", "--nodirs", src, dst); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := listFiles(t, dst); !slices.Equal(got, []string{"sample-1.html"}) {
		t.Errorf("output = %v", got)
	}
}

func TestProcessPage_Report(t *testing.T) {
	ctx, env := setupTestEnv(t)
	rpt, err := (&config.ReporterConfig{Destination: filepath.Join(t.TempDir(), "report.zip")}).Prepare()
	if err != nil {
		t.Fatal(err)
	}
	env.Rpt = rpt

	ext, err := newExtractor(&config.ExtractionConfig{Keep: []string{"//article"}}, env.Log)
	if err != nil {
		t.Fatal(err)
	}
	dst := t.TempDir()
	p := newProcessor(env, ext, &dirSink{root: dst, log: env.Log, rpt: env.Rpt}, env.Log)

	if err := p.processPage(ctx, strings.NewReader(samplePage), "one.html"); err != nil {
		t.Fatalf("processPage() error = %v", err)
	}
	if err := p.processPage(ctx, strings.NewReader(otherPage), "two.html"); err != nil {
		t.Fatalf("processPage() error = %v", err)
	}

	if p.extracted != 1 || !slices.Equal(p.skipped, []string{"two.html"}) || len(p.failed) != 0 {
		t.Errorf("unexpected counters: extracted %d, skipped %v, failed %v", p.extracted, p.skipped, p.failed)
	}

	var traces, results int
	for _, name := range rpt.Names() {
		switch {
		case strings.HasPrefix(name, "trace/"):
			traces++
		case name == "result/one.html":
			results++
		}
	}
	if traces != 2 || results != 1 {
		t.Errorf("unexpected report entries %v", rpt.Names())
	}
	if err := rpt.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDirSink(t *testing.T) {
	dst := t.TempDir()
	s := &dirSink{root: dst, log: zap.NewNop()}

	if err := s.Write(filepath.Join("a", "b.html"), []byte("one")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Write(filepath.Join("a", "b.html"), []byte("two")); err == nil {
		t.Error("expected error writing over existing file")
	}
	s.overwrite = true
	if err := s.Write(filepath.Join("a", "b.html"), []byte("two")); err != nil {
		t.Fatalf("Write() with overwrite error = %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "a", "b.html")); got != "two" {
		t.Errorf("content = %q", got)
	}
	if err := s.Close(); err != nil {
		t.Error(err)
	}
}

func TestZipSink(t *testing.T) {
	name := filepath.Join(t.TempDir(), "out", "result.zip")
	s, err := newZipSink(name, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(filepath.Join("a", "b.html"), []byte("one")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Write(filepath.Join("a", "b.html"), []byte("two")); err == nil {
		t.Error("expected error for duplicate entry")
	}
	if loc := s.Location(filepath.Join("a", "b.html")); !strings.HasSuffix(loc, "result.zip:a/b.html") {
		t.Errorf("Location() = %s", loc)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := newZipSink(name, false, nil); err == nil {
		t.Error("expected error for existing archive without overwrite")
	}
	if files := archiveContent(t, name); files["a/b.html"] != "one" {
		t.Errorf("archive content = %v", files)
	}
}
