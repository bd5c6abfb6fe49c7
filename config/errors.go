package config

import (
	"errors"
	"fmt"
)

// Validation errors returned by Config.Validate.
var (
	// ErrNoLanguage is returned when no OCR language is set.
	ErrNoLanguage = errors.New("no OCR language configured")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidDPI is returned when a rendering resolution is not positive.
	ErrInvalidDPI = errors.New("invalid dpi: must be positive")

	// ErrInvalidTimeout is returned for negative timeouts. Zero disables
	// the bound.
	ErrInvalidTimeout = errors.New("invalid timeout: must be non-negative")

	// ErrInvalidYearWindow is returned when birth_year_min exceeds
	// birth_year_max.
	ErrInvalidYearWindow = errors.New("invalid birth year window: min exceeds max")

	// ErrUnknownLabel is wrapped by LabelError.
	ErrUnknownLabel = errors.New("unknown entity label")

	// ErrUnknownProvider is returned for ner.provider values other than
	// none, spacy and ollama.
	ErrUnknownProvider = errors.New("unknown ner provider: use none, spacy or ollama")

	// ErrNoNERURL is returned when a provider is selected without its URL.
	ErrNoNERURL = errors.New("ner.url is required for the selected provider")

	// ErrNoNERModel is returned when the ollama provider has no model.
	ErrNoNERModel = errors.New("ner.model is required for the ollama provider")

	// ErrInvalidLogFormat is returned for log formats other than text and
	// json.
	ErrInvalidLogFormat = errors.New("invalid log format: use text or json")

	// ErrConfigNotFound is returned when an explicitly named file does not
	// exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidEnv is returned when a REDACT_* variable cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment variable")
)

// LabelError names an allow-list entry that maps to no known label.
type LabelError struct {
	Label string
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownLabel, e.Label)
}

func (e *LabelError) Unwrap() error { return ErrUnknownLabel }
