// Package process runs extraction over files, directories and archives.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hidez8891/zip"
	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"chopper/archive"
	"chopper/config"
	"chopper/extractor"
	"chopper/state"
)

// Run is the action of extract subcommand.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("extract")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	if err := applyFlags(cmd, env.Cfg, log); err != nil {
		return err
	}
	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")

	if path := env.Cfg.Extraction.StylesheetPath; path != "" {
		if env.Stylesheet, err = os.ReadFile(path); err != nil {
			return fmt.Errorf("unable to read stylesheet from %q: %w", path, err)
		}
	}

	// zip does not define file name encoding, old archives may need a code
	// page to be forced
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		if env.CodePage, err = ianaindex.IANA.Encoding(cp); err != nil || env.CodePage == nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	ext, err := newExtractor(&env.Cfg.Extraction, log)
	if err != nil {
		return err
	}

	var out sink = &dirSink{root: dst, overwrite: env.Overwrite, log: log, rpt: env.Rpt}
	if name := cmd.String("zip"); len(name) > 0 {
		if !strings.EqualFold(filepath.Ext(name), ".zip") {
			name += ".zip"
		}
		zs, err := newZipSink(filepath.Join(dst, name), env.Overwrite, env.Rpt)
		if err != nil {
			return err
		}
		out = zs
	}

	p := newProcessor(env, ext, out, log)

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst),
		zap.Stringer("format", env.Cfg.Output.Format), zap.Bool("css", env.HasStylesheet()), zap.Strings("keep", env.Cfg.Extraction.Keep), zap.Strings("discard", env.Cfg.Extraction.Discard))
	defer func(start time.Time) {
		if er := out.Close(); er != nil && err == nil {
			err = fmt.Errorf("unable to finalize output: %w", er)
		}
		p.summary(time.Since(start))
	}(time.Now())

	return p.process(ctx, src)
}

// applyFlags merges command line into configuration, flags win.
func applyFlags(cmd *cli.Command, cfg *config.Config, log *zap.Logger) error {
	cfg.Extraction.Keep = append(cfg.Extraction.Keep, cmd.StringSlice("keep")...)
	cfg.Extraction.Discard = append(cfg.Extraction.Discard, cmd.StringSlice("discard")...)
	if len(cfg.Extraction.Keep) == 0 {
		return errors.New("no keep rules have been specified, nothing could be extracted")
	}

	if cmd.IsSet("to") {
		format, err := config.ParseOutputFmt(cmd.String("to"))
		if err != nil {
			log.Warn("Unknown output format requested, using configured one", zap.Stringer("format", cfg.Output.Format), zap.Error(err))
		} else {
			cfg.Output.Format = format
		}
	}
	if cmd.IsSet("css") {
		cfg.Extraction.StylesheetPath = cmd.String("css")
	}
	if cmd.IsSet("base-url") {
		cfg.Extraction.BaseURL = cmd.String("base-url")
	}
	if cmd.Bool("no-rewrite") {
		cfg.Extraction.RewriteURLs = false
	}
	if cmd.Bool("page-styles") {
		cfg.Extraction.PageStyles = true
	}
	return nil
}

func newExtractor(cfg *config.ExtractionConfig, log *zap.Logger) (*extractor.Extractor, error) {
	ext := extractor.New(log)
	for _, k := range cfg.Keep {
		if err := ext.Keep(k); err != nil {
			return nil, err
		}
	}
	for _, d := range cfg.Discard {
		if err := ext.Discard(d); err != nil {
			return nil, err
		}
	}
	return ext, nil
}

type processor struct {
	env   *state.LocalEnv
	ext   *extractor.Extractor
	opts  extractor.Options
	out   sink
	names namer
	log   *zap.Logger

	index     int
	extracted int
	skipped   []string
	failed    []string
}

func newProcessor(env *state.LocalEnv, ext *extractor.Extractor, out sink, log *zap.Logger) *processor {
	return &processor{
		env: env,
		ext: ext,
		opts: extractor.Options{
			BaseURL:     env.Cfg.Extraction.BaseURL,
			RewriteURLs: env.Cfg.Extraction.RewriteURLs,
			Normalize:   env.Cfg.Extraction.NormalizeURLs,
			Format:      env.Cfg.Output.Format,
			PageStyles:  env.Cfg.Extraction.PageStyles,
			EmbedCSS:    !env.Cfg.Output.SeparateCSS,
		},
		out:   out,
		names: namer{cfg: &env.Cfg.Output, noDirs: env.NoDirs},
		log:   log,
	}
}

// process determines what source is (directory, archive, path inside archive
// or single file) and handles it accordingly.
func (p *processor) process(ctx context.Context, src string) error {
	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exist, probably path inside archive
			continue
		}

		if fi.IsDir() {
			if len(tail) != 0 {
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			if err := p.processDir(ctx, head); err != nil {
				return fmt.Errorf("unable to process directory: %w", err)
			}
			return nil
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		isArchive, err := isArchiveFile(head)
		if err != nil {
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if isArchive {
			pathIn := filepath.ToSlash(strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator)))
			if err := p.processArchive(ctx, head, pathIn, ""); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			return nil
		}

		if len(tail) != 0 {
			break
		}
		page, err := isPageFile(head)
		if err != nil {
			return fmt.Errorf("unable to check file type: %w", err)
		}
		if !page {
			return fmt.Errorf("input was not recognized as HTML (%s)", head)
		}
		f, err := os.Open(head)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := p.processPage(ctx, f, filepath.Base(head)); err != nil {
			p.log.Error("Unable to process file", zap.String("file", head), zap.Error(err))
		}
		return nil
	}
	return fmt.Errorf("input source was not found (%s)", src)
}

// processDir walks directory tree looking for pages and archives.
func (p *processor) processDir(ctx context.Context, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			p.log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator))

		isArchive, err := isArchiveFile(path)
		if err != nil {
			p.log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if isArchive {
			if err := p.processArchive(ctx, path, "", filepath.Dir(rel)); err != nil {
				if ctx.Err() != nil {
					return err
				}
				p.log.Error("Unable to process archive", zap.String("file", path), zap.Error(err))
			}
			return nil
		}

		page, err := isPageFile(path)
		if err != nil {
			p.log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if !page {
			p.log.Debug("Skipping file, not recognized as page or archive", zap.String("file", path))
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			p.log.Error("Unable to process file", zap.String("file", path), zap.Error(err))
			return nil
		}
		defer f.Close()

		if err := p.processPage(ctx, f, rel); err != nil {
			p.log.Error("Unable to process file", zap.String("file", path), zap.Error(err))
		}
		return nil
	})
}

// processArchive handles all pages inside archive under pathIn, pathOut is
// prepended to names inside archive.
func (p *processor) processArchive(ctx context.Context, path, pathIn, pathOut string) error {
	return archive.Walk(path, pathIn, func(arc string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := p.decodeName(f)

		r, err := f.Open()
		if err != nil {
			p.log.Error("Unable to process file in archive", zap.String("archive", arc), zap.String("file", name), zap.Error(err))
			return nil
		}
		defer r.Close()

		head, err := readHeader(r)
		if err != nil {
			p.log.Warn("Skipping file in archive", zap.String("archive", arc), zap.String("file", name), zap.Error(err))
			return nil
		}
		if !isPage(name, head) {
			p.log.Debug("Skipping file, not recognized as page", zap.String("archive", arc), zap.String("file", name))
			return nil
		}

		if err := p.processPage(ctx, io.MultiReader(bytes.NewReader(head), r), filepath.Join(pathOut, filepath.FromSlash(name))); err != nil {
			p.log.Error("Unable to process file in archive", zap.String("archive", arc), zap.String("file", name), zap.Error(err))
		}
		return nil
	})
}

func (p *processor) decodeName(f *zip.File) string {
	cp := p.env.CodePage
	if cp == nil || !f.NonUTF8 {
		return f.Name
	}
	n, err := cp.NewDecoder().String(f.Name)
	if err != nil {
		cs, _ := ianaindex.IANA.Name(cp)
		p.log.Warn("Unable to convert archive name from specified encoding",
			zap.String("charset", cs), zap.String("path", f.Name), zap.Error(err))
		return f.Name
	}
	return n
}

// processPage extracts single page. src is path of the page relative to the
// processed source (just a file name for single file).
func (p *processor) processPage(ctx context.Context, r io.Reader, src string) (rerr error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.index++
	id := uuid.New().String()
	log := p.log.With(zap.String("page", src), zap.String("id", id))

	var outName string
	log.Info("Extraction starting")
	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Extraction ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("extraction panic: %v", r)
		}
		if rerr != nil {
			p.failed = append(p.failed, src)
			return
		}
		log.Info("Extraction completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outName))
	}(time.Now())

	res, err := p.ext.ExtractReader(r, p.env.Stylesheet, p.opts)
	if err != nil {
		return fmt.Errorf("unable to extract from %s: %w", src, err)
	}

	p.env.Rpt.StoreData(fmt.Sprintf("trace/%s.txt", id), []byte(traceReport(src, res)))

	if !res.Matched {
		log.Warn("Nothing matched keep rules, page skipped")
		p.skipped = append(p.skipped, src)
		return nil
	}
	for _, w := range res.Warnings {
		log.Debug("Stylesheet warning", zap.String("warning", w))
	}

	base, err := p.names.name(src, Values{
		SourceFile: strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)),
		SourceDir:  filepath.ToSlash(filepath.Dir(src)),
		Title:      res.Title,
		Format:     p.opts.Format.String(),
		Index:      p.index,
		ID:         id,
	})
	if err != nil {
		log.Warn("Unable to prepare output name, using default", zap.Error(err))
	}

	outName = base + p.opts.Format.Ext()
	if err := p.out.Write(outName, []byte(res.HTML)); err != nil {
		return err
	}
	if res.HasCSS && !p.opts.EmbedCSS {
		if err := p.out.Write(base+".css", []byte(res.CSS)); err != nil {
			return err
		}
	}
	outName = p.out.Location(outName)
	p.extracted++
	return nil
}

func traceReport(src string, res *extractor.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "page: %s\nmatched: %v\n\n", src, res.Matched)
	sb.WriteString(res.Trace)
	if len(res.Warnings) > 0 {
		sb.WriteString("\nstylesheet warnings:\n")
		for _, w := range res.Warnings {
			sb.WriteString("  " + w + "\n")
		}
	}
	return sb.String()
}

func naturalOrder(a, b string) int {
	switch {
	case natural.Less(a, b):
		return -1
	case natural.Less(b, a):
		return 1
	}
	return 0
}

func (p *processor) summary(elapsed time.Duration) {
	slices.SortFunc(p.skipped, naturalOrder)
	slices.SortFunc(p.failed, naturalOrder)
	p.log.Info("Processing completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("pages", p.index),
		zap.Int("extracted", p.extracted),
		zap.Strings("skipped", p.skipped),
		zap.Strings("failed", p.failed))
}
