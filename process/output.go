package process

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"

	"chopper/config"
)

// Values are available for output name template expansion.
type Values struct {
	Context    string
	SourceFile string
	SourceDir  string
	Title      string
	Format     string
	Index      int
	ID         string
}

func expandTemplate(name config.TemplateFieldName, field string, values Values) (string, error) {
	tmpl, err := template.New(string(name)).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}
	values.Context = string(name)

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", fmt.Errorf("unable to expand template field %s: %w", name, err)
	}
	return buf.String(), nil
}

// namer builds output names relative to the destination, without extension.
type namer struct {
	cfg    *config.OutputConfig
	noDirs bool
}

// name returns output path for page src (relative path of the page inside
// source directory or archive). Template failures fall back to default name.
func (n namer) name(src string, values Values) (string, error) {
	outDir := ""
	if !n.noDirs {
		outDir = filepath.Dir(src)
	}

	if n.cfg.NameTemplate != "" {
		expanded, err := expandTemplate(config.NameTemplateFieldName, n.cfg.NameTemplate, values)
		if err == nil {
			if segments := splitPath(expanded); len(segments) > 0 {
				for i := range segments {
					segments[i] = n.clean(segments[i])
				}
				return filepath.Join(append([]string{outDir}, segments...)...), nil
			}
			err = fmt.Errorf("template %q expanded to empty name", n.cfg.NameTemplate)
		}
		return filepath.Join(outDir, n.clean(values.SourceFile)), err
	}
	return filepath.Join(outDir, n.clean(values.SourceFile)), nil
}

func (n namer) clean(segment string) string {
	if n.cfg.FileNameTransliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}

// splitPath splits name on separators dropping empty, "." and ".." segments.
func splitPath(name string) []string {
	segments := strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	return slices.DeleteFunc(segments, func(s string) bool {
		return s == "." || s == ".."
	})
}
