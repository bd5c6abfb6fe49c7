package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitUnlocated = 3
)

// exitCodeError carries a specific exit code out of a command.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *exitCodeError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitError
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redact",
		Short: "Remove personal data from PDF documents",
		Long: `redact finds names, dates of birth, national ID numbers, addresses and
other personal data in PDF documents and removes them for good: the glyphs
are deleted from the content streams and an opaque box is painted over
their place. Scanned pages are read with OCR.

Settings come from .redact.yaml, the XDG config directory
(~/.config/redact/config.yaml), a .env file and REDACT_* variables.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Shorthand for --log-level debug")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewTextCmd())
	cmd.AddCommand(NewDetectCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}

// Execute runs the root command and returns the exit status.
func Execute() int {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "redact:", err)
	}
	return exitCode(err)
}
