// Package main provides the papersearch CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-service/internal/bootstrap"
	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/domain"
)

// Version is set at build time via ldflags.
var Version = "dev"

var verbose bool

// newApp builds the pipeline for one command. Tests replace it.
var newApp = func() (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, &exitError{code: ExitConfigError, err: fmt.Errorf("load config: %w", err)}
	}
	// Stdout carries results; logs go to stderr.
	cfg.Logging.Output = "stderr"
	cfg.Logging.Format = "console"
	cfg.Logging.Level = "warn"
	if verbose {
		cfg.Logging.Level = "debug"
	}
	app, err := bootstrap.New(cfg)
	if err != nil {
		return nil, &exitError{code: ExitConfigError, err: err}
	}
	return app, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "papersearch",
	Short: "Find academic papers for a natural-language query",
	Long: `papersearch turns a free-form request into search keywords, queries arXiv
and Semantic Scholar concurrently, and prints a merged, de-duplicated list of
papers with direct PDF links where one can be resolved.

Configuration is read from config.yaml, .env and PAPERSEARCH_* environment
variables. Without an LLM API key the query is tokenized locally.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	rootCmd.Version = Version
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var invalid *domain.InvalidQueryError
	var analysis *domain.AnalysisError
	switch {
	case errors.As(err, &invalid), errors.Is(err, domain.ErrInvalidInput):
		return ExitUsageError
	case errors.As(err, &analysis):
		return ExitUnclearQuery
	default:
		return ExitError
	}
}
