package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Peterrvisserr/WOOBARNEVELD/detect"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
)

type detectedSpan struct {
	Text   string `json:"text"`
	Origin string `json:"origin"`
}

// NewDetectCmd creates the detect command.
func NewDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <file.txt|->",
		Short: "List the sensitive spans found in plain text",
		Long: `Detect runs the pattern rules and, when configured, the entity recogniser
over a plain-text file and prints the spans as JSON. Use it to tune rules
and labels without touching a PDF.`,
		Args: cobra.ExactArgs(1),
		RunE: runDetect,
	}
	cmd.Flags().Bool("pattern-only", false, "Skip the entity recogniser")
	return cmd
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rules, err := cfg.Rules()
	if err != nil {
		return err
	}
	text, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	opts := []detect.Option{
		detect.WithRules(rules),
		detect.WithAllowedLabels(cfg.Labels()...),
		detect.WithYearWindow(cfg.YearWindow()),
		detect.WithLogger(logger),
	}
	if skip, _ := cmd.Flags().GetBool("pattern-only"); !skip {
		if rec := newRecognizer(cfg, logger); rec != nil {
			opts = append(opts, detect.WithRecognizer(rec))
		}
	}
	det := detect.New(opts...)

	set, err := det.DetectText(commandContext(cmd), string(text))
	if err != nil {
		if !errors.Is(err, detect.ErrEntityPass) {
			return err
		}
		logger.Warn("entity recognition failed; only pattern rules applied", observability.Error("error", err))
	}

	spans := make([]detectedSpan, 0, len(set))
	for _, s := range set.Sorted() {
		spans = append(spans, detectedSpan{Text: s.Text, Origin: s.Origin.String()})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(spans)
}
