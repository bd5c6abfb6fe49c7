package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/semantic"
	"github.com/Peterrvisserr/WOOBARNEVELD/pipeline"
	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
)

type textPage struct {
	Page    int        `json:"page"`
	Source  string     `json:"source"`
	Content string     `json:"content"`
	Words   []textWord `json:"words,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type textWord struct {
	Text string     `json:"text"`
	Rect [4]float64 `json:"rect"`
}

// NewTextCmd creates the text command.
func NewTextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text <input.pdf|->",
		Short: "Print the text acquired from every page",
		Long: `Text prints, as JSON, the text each page would be searched in: the native
text layer, or the OCR result for pages without one. Recognised pages also
list their word boxes in PDF points.`,
		Args: cobra.ExactArgs(1),
		RunE: runText,
	}
	cmd.Flags().Bool("lenient", false, "Repair damaged files instead of rejecting them")
	return cmd
}

func runText(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	src, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	pcfg, err := pipelineConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	opts := semantic.Options{Logger: logger}
	if lenient, _ := cmd.Flags().GetBool("lenient"); lenient || cfg.Lenient {
		opts.Recovery = recovery.NewLenientStrategy()
	}
	doc, err := semantic.Open(ctx, src, opts)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrMalformedDocument, err)
	}

	acq := pipeline.New(pcfg).Acquirer()
	pages := make([]textPage, 0, len(doc.Pages))
	for i := range doc.Pages {
		view, err := acq.Acquire(ctx, doc, i)
		tp := textPage{Page: i + 1, Source: view.Source.String(), Content: view.Content}
		if err != nil {
			tp.Error = err.Error()
		}
		for _, w := range view.Words {
			tp.Words = append(tp.Words, textWord{
				Text: w.Text,
				Rect: [4]float64{w.Rect.LLX, w.Rect.LLY, w.Rect.URX, w.Rect.URY},
			})
		}
		pages = append(pages, tp)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pages)
}
