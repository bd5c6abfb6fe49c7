package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
	"github.com/Peterrvisserr/WOOBARNEVELD/pipeline"
	"github.com/Peterrvisserr/WOOBARNEVELD/report"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input.pdf|->",
		Short: "Redact a PDF document",
		Long: `Run detects personal data on every page, removes it and writes the
redacted document. Nothing is written when the run fails.

Examples:
  # Redact and write a Markdown report
  redact run brief.pdf -o brief-redacted.pdf --report report.md

  # Replace every page by a flattened image after redaction
  redact run scan.pdf -o out.pdf --rasterize

  # Pattern rules only, no entity recogniser
  redact run brief.pdf -o out.pdf --pattern-only

  # Read from stdin, write to stdout
  cat brief.pdf | redact run - -o - > out.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: runRedact,
	}

	cmd.Flags().StringP("output", "o", "", "Output PDF path, - for stdout (required)")
	cmd.Flags().StringP("report", "r", "", "Write a report; the format follows the extension (.json, .md, .html)")
	cmd.Flags().String("report-format", "", "Report format overriding the extension: json, markdown or html")
	cmd.Flags().Bool("rasterize", false, "Replace every page by a flattened rendering after redaction")
	cmd.Flags().IntP("workers", "w", 0, "Pages processed in parallel (default: number of CPUs)")
	cmd.Flags().Bool("pattern-only", false, "Continue with pattern rules when the recogniser or OCR is unavailable")
	cmd.Flags().Bool("lenient", false, "Repair damaged files instead of rejecting them")
	cmd.Flags().Bool("fail-on-unlocated", true, "Exit with status 3 when a detected span could not be located")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runRedact(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("rasterize") {
		cfg.RasterizeOnCommit, _ = flags.GetBool("rasterize")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("pattern-only") {
		cfg.AllowPatternOnly, _ = flags.GetBool("pattern-only")
	}
	if flags.Changed("lenient") {
		cfg.Lenient, _ = flags.GetBool("lenient")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	output, _ := flags.GetString("output")
	reportPath, _ := flags.GetString("report")
	if output == "-" && reportPath == "-" {
		return errors.New("--output and --report cannot both write to stdout")
	}
	var format report.Format
	if reportPath != "" {
		if f, _ := flags.GetString("report-format"); f != "" {
			format, err = report.ParseFormat(f)
		} else {
			format, err = report.FormatFromPath(reportPath)
		}
		if err != nil {
			return err
		}
	}

	src, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	pcfg, err := pipelineConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, rep, err := pipeline.New(pcfg).Run(ctx, src)
	if err != nil {
		return err
	}
	if args[0] != "-" {
		rep.Source = filepath.Base(args[0])
	}

	if err := writeOutput(cmd.OutOrStdout(), output, out); err != nil {
		return err
	}
	if reportPath != "" {
		if err := writeReport(cmd.OutOrStdout(), reportPath, format, rep); err != nil {
			return err
		}
	}

	t := rep.Totals()
	logger.Info("run finished",
		observability.Int("pages", t.Pages),
		observability.Int("detected", t.Detected),
		observability.Int("unlocated", t.Unlocated),
		observability.Int("warnings", t.Warnings),
	)
	if fail, _ := flags.GetBool("fail-on-unlocated"); fail && rep.HasUnlocated() {
		return &exitCodeError{
			code: exitUnlocated,
			err:  fmt.Errorf("%d detected spans could not be located; review the report", t.Unlocated),
		}
	}
	return nil
}

// writeOutput writes data to path through a temporary file in the same
// directory, so a failed write never leaves a partial document behind.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".redact-*.pdf")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func writeReport(stdout io.Writer, path string, format report.Format, rep *report.Report) (err error) {
	var w io.Writer = stdout
	if path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close report: %w", cerr)
			}
		}()
		w = f
	}
	rw, err := report.NewWriter(format, w)
	if err != nil {
		return err
	}
	if _, err := rw.Write(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// commandContext returns the command context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
