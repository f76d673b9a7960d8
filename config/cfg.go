package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	// ExtractionConfig holds defaults for extraction rules, command line
	// values are added to (or override) these.
	ExtractionConfig struct {
		Keep           []string `yaml:"keep" validate:"dive,required"`
		Discard        []string `yaml:"discard" validate:"dive,required"`
		BaseURL        string   `yaml:"base_url" validate:"omitempty,url"`
		RewriteURLs    bool     `yaml:"rewrite_urls"`
		NormalizeURLs  bool     `yaml:"normalize_urls"`
		PageStyles     bool     `yaml:"page_styles"`
		StylesheetPath string   `yaml:"stylesheet_path" sanitize:"assure_file_access"`
	}

	OutputConfig struct {
		Format                OutputFmt `yaml:"format" validate:"gte=0"`
		NameTemplate          string    `yaml:"name_template"`
		FileNameTransliterate bool      `yaml:"file_name_transliterate"`
		SeparateCSS           bool      `yaml:"separate_css"`
	}

	Config struct {
		Version    int              `yaml:"version" validate:"eq=1"`
		Extraction ExtractionConfig `yaml:"extraction"`
		Output     OutputConfig     `yaml:"output"`
		Logging    LoggingConfig    `yaml:"logging"`
		Reporting  ReporterConfig   `yaml:"reporting"`
	}
)

// NOTE: must match yaml field name above
const NameTemplateFieldName TemplateFieldName = "name_template"

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(NameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// only fields we defined are allowed, so no yaml.Unmarshal here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if !process {
		return cfg, nil
	}
	if err := gencfg.Sanitize(cfg); err != nil {
		return nil, err
	}
	if err := gencfg.Validate(cfg); err != nil {
		return nil, err
	}
	if !cfg.Output.Format.IsValid() {
		return nil, fmt.Errorf("unsupported output format %s", cfg.Output.Format)
	}
	return cfg, nil
}

// LoadConfiguration expands embedded template to get defaults, superimposes
// values from the file at path (if any) and validates the result.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if cfg, err = unmarshalConfig(data, cfg, true); err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare returns expanded default configuration.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

// Snapshot returns YAML of cfg, or of embedded defaults when cfg is nil,
// together with the name of produced state: "actual" or "default".
func Snapshot(cfg *Config) ([]byte, string, error) {
	if cfg == nil {
		data, err := Prepare()
		return data, "default", err
	}
	data, err := Dump(cfg)
	return data, "actual", err
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
