package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/Peterrvisserr/WOOBARNEVELD/config"
	"github.com/Peterrvisserr/WOOBARNEVELD/detect"
	"github.com/Peterrvisserr/WOOBARNEVELD/ner/ollama"
	"github.com/Peterrvisserr/WOOBARNEVELD/ner/spacy"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
	"github.com/Peterrvisserr/WOOBARNEVELD/ocr"
	_ "github.com/Peterrvisserr/WOOBARNEVELD/ocr/tesseract"
	"github.com/Peterrvisserr/WOOBARNEVELD/pipeline"
	"github.com/Peterrvisserr/WOOBARNEVELD/raster"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

// loadConfig reads the configuration named by --config (or found by the
// usual search) and builds the logger. The file used is logged at debug
// level.
func loadConfig(cmd *cobra.Command) (*config.Config, observability.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, file, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.LogLevel = "debug"
	}
	if j, _ := cmd.Flags().GetBool("log-json"); j {
		cfg.LogFormat = "json"
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)
	if file != "" {
		logger.Debug("configuration loaded", observability.String("file", file))
	}
	return cfg, logger, nil
}

// newLogger builds the masking logger. Detected text never reaches it.
func newLogger(w io.Writer, cfg *config.Config) observability.Logger {
	return observability.NewLogger(w, observability.ParseLevel(cfg.LogLevel), cfg.LogFormat == "json")
}

// newRecognizer returns the configured entity recogniser, or nil.
func newRecognizer(cfg *config.Config, logger observability.Logger) detect.EntityRecognizer {
	client := &http.Client{Timeout: cfg.NER.Timeout}
	switch cfg.NER.Provider {
	case config.ProviderSpacy:
		opts := []spacy.Option{spacy.WithHTTPClient(client), spacy.WithLogger(logger)}
		if cfg.NER.Model != "" {
			opts = append(opts, spacy.WithModel(cfg.NER.Model))
		}
		return spacy.New(cfg.NER.URL, opts...)
	case config.ProviderOllama:
		return ollama.New(cfg.NER.URL, cfg.NER.Model, ollama.WithHTTPClient(client), ollama.WithLogger(logger))
	}
	return nil
}

// pipelineConfig wires the collaborators named by cfg: pdftoppm for
// rendering, Tesseract for OCR and the configured recogniser.
func pipelineConfig(cfg *config.Config, logger observability.Logger) (pipeline.Config, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Rasterizer:       raster.NewPoppler(cfg.PopplerPath, logger),
		Engine:           ocr.DefaultEngine(),
		Recognizer:       newRecognizer(cfg, logger),
		Rules:            rules,
		Labels:           cfg.Labels(),
		YearWindow:       cfg.YearWindow(),
		Languages:        []string{cfg.Language},
		RecognitionDPI:   cfg.RecognitionDPI,
		RasterDPI:        cfg.RasterDPI,
		OCRTimeout:       cfg.OCRTimeout,
		Workers:          cfg.Workers,
		Rasterize:        cfg.RasterizeOnCommit,
		AllowPatternOnly: cfg.AllowPatternOnly,
		Lenient:          cfg.Lenient,
		Writer:           writer.Config{Deterministic: true, StripMetadata: cfg.StripMetadata},
		Logger:           logger,
	}, nil
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}
