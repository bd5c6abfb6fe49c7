package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = ".redact.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REDACT_"

// Load builds the configuration for a run. An explicit path must exist;
// otherwise ./.redact.yaml and the XDG config file are tried. A .env file
// in the working directory is loaded before REDACT_* variables are
// applied. The result is validated. The second return value is the file
// that was read, or "".
func Load(path string) (*Config, string, error) {
	cfg := Default()
	file := FindConfigFile(path)
	if path != "" && file == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if file != "" {
		if err := cfg.LoadFile(file); err != nil {
			return nil, file, err
		}
	}
	// Best effort: a missing .env is not an error.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, file, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, file, fmt.Errorf("config: %w", err)
	}
	return cfg, file, nil
}

// FindConfigFile searches for the configuration file in this order:
//  1. configPath, if given
//  2. .redact.yaml in the working directory
//  3. redact/config.yaml under the XDG config directories
//
// It returns "" when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if p, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yaml")); err == nil {
		return p
	}
	return ""
}

// LoadFile overlays the YAML file at path onto c. Unknown keys are errors.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}
	if err := c.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// Decode overlays YAML from r onto c. Keys absent from the document keep
// their current values.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays REDACT_* variables read through lookup onto c. Lists
// are comma separated.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	str := func(name string, dst *string) {
		if v, ok := get(name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := get(name); ok {
			*dst = splitList(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := get(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalidEnv, EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := get(name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalidEnv, EnvPrefix, name, v)
		}
		*dst = b
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := get(name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalidEnv, EnvPrefix, name, v)
		}
		*dst = d
		return nil
	}

	str("LANGUAGE", &c.Language)
	list("ALLOWED_LABELS", &c.AllowedLabels)
	list("PATTERNS", &c.Patterns)
	str("NER_PROVIDER", &c.NER.Provider)
	str("NER_URL", &c.NER.URL)
	str("NER_MODEL", &c.NER.Model)
	str("POPPLER_PATH", &c.PopplerPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	return errors.Join(
		num("BIRTH_YEAR_MIN", &c.BirthYearMin),
		num("BIRTH_YEAR_MAX", &c.BirthYearMax),
		num("RECOGNITION_DPI", &c.RecognitionDPI),
		num("RASTER_DPI", &c.RasterDPI),
		num("WORKERS", &c.Workers),
		flag("RASTERIZE", &c.RasterizeOnCommit),
		flag("ALLOW_PATTERN_ONLY", &c.AllowPatternOnly),
		flag("STRIP_METADATA", &c.StripMetadata),
		flag("LENIENT", &c.Lenient),
		dur("OCR_TIMEOUT", &c.OCRTimeout),
		dur("NER_TIMEOUT", &c.NER.Timeout),
	)
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
