// Package config holds the settings of a redaction run. Values come from
// defaults, a YAML file, a .env file and REDACT_* environment variables,
// in that order, and finally from command line flags.
package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/Peterrvisserr/WOOBARNEVELD/detect"
)

const (
	// AppName names the XDG config directory.
	AppName = "redact"

	// DefaultLanguage is the tesseract language of scanned pages.
	DefaultLanguage = "nld"

	// DefaultRecognitionDPI is the rendering resolution for OCR. Lower
	// values are raised to it.
	DefaultRecognitionDPI = 300

	// DefaultRasterDPI is the resolution of pages replaced by renderings.
	DefaultRasterDPI = 300

	// DefaultOCRTimeout bounds rasterisation plus recognition of one page.
	DefaultOCRTimeout = 2 * time.Minute

	// DefaultNERTimeout bounds one recogniser call.
	DefaultNERTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// NER provider names.
const (
	ProviderNone   = "none"
	ProviderSpacy  = "spacy"
	ProviderOllama = "ollama"
)

// NER selects and configures the entity recogniser.
type NER struct {
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Config holds every setting of a run.
type Config struct {
	Language      string   `yaml:"language"`
	AllowedLabels []string `yaml:"allowed_labels"`

	// Patterns lists built-in rule ids in evaluation order. Empty selects
	// all of them.
	Patterns       []string            `yaml:"patterns"`
	CustomPatterns []detect.CustomRule `yaml:"custom_patterns"`

	BirthYearMin int `yaml:"birth_year_min"`
	BirthYearMax int `yaml:"birth_year_max"`

	// RasterizeOnCommit replaces every page by a flattened rendering after
	// redaction.
	RasterizeOnCommit bool `yaml:"rasterize_on_commit"`
	RecognitionDPI    int  `yaml:"recognition_dpi"`
	RasterDPI         int  `yaml:"raster_dpi"`

	OCRTimeout time.Duration `yaml:"ocr_timeout"`
	Workers    int           `yaml:"workers"`

	// AllowPatternOnly lets a run continue with pattern rules alone when the
	// recogniser is not configured or not ready.
	AllowPatternOnly bool `yaml:"allow_pattern_only"`
	StripMetadata    bool `yaml:"strip_metadata"`
	// Lenient repairs damaged cross-reference data instead of rejecting
	// the file.
	Lenient bool `yaml:"lenient"`

	NER NER `yaml:"ner"`

	PopplerPath string `yaml:"poppler_path"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	window := detect.DefaultYearWindow()
	labels := make([]string, len(detect.DefaultLabels))
	for i, l := range detect.DefaultLabels {
		labels[i] = string(l)
	}
	return &Config{
		Language:       DefaultLanguage,
		AllowedLabels:  labels,
		BirthYearMin:   window.Min,
		BirthYearMax:   window.Max,
		RecognitionDPI: DefaultRecognitionDPI,
		RasterDPI:      DefaultRasterDPI,
		OCRTimeout:     DefaultOCRTimeout,
		Workers:        runtime.NumCPU(),
		StripMetadata:  true,
		NER: NER{
			Provider: ProviderNone,
			Timeout:  DefaultNERTimeout,
		},
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Language) == "" {
		return ErrNoLanguage
	}
	if c.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.RecognitionDPI <= 0 || c.RasterDPI <= 0 {
		return ErrInvalidDPI
	}
	if c.OCRTimeout < 0 || c.NER.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.BirthYearMin > c.BirthYearMax {
		return ErrInvalidYearWindow
	}
	for _, name := range c.AllowedLabels {
		l := detect.NormalizeLabel(name)
		if l == detect.LabelOther && !strings.EqualFold(strings.TrimSpace(name), string(detect.LabelOther)) {
			return &LabelError{Label: name}
		}
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	switch c.NER.Provider {
	case ProviderNone, "":
	case ProviderSpacy:
		if c.NER.URL == "" {
			return ErrNoNERURL
		}
	case ProviderOllama:
		if c.NER.URL == "" {
			return ErrNoNERURL
		}
		if c.NER.Model == "" {
			return ErrNoNERModel
		}
	default:
		return ErrUnknownProvider
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	return nil
}

// Rules compiles the configured pattern rules.
func (c *Config) Rules() ([]detect.Rule, error) {
	return detect.SelectRules(c.Patterns, c.CustomPatterns)
}

// Labels returns the normalised entity allow-list.
func (c *Config) Labels() []detect.EntityLabel {
	return detect.ParseLabels(c.AllowedLabels)
}

// YearWindow returns the birth-date window.
func (c *Config) YearWindow() detect.YearWindow {
	return detect.YearWindow{Min: c.BirthYearMin, Max: c.BirthYearMax}
}

// NEREnabled reports whether an entity recogniser is configured.
func (c *Config) NEREnabled() bool {
	return c.NER.Provider != "" && c.NER.Provider != ProviderNone
}

// XDGConfigFile returns the per-user configuration file path.
// On Linux: ~/.config/redact/config.yaml
func XDGConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}
