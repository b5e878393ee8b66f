package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-service/internal/bootstrap"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/format"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/retrieval"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for papers matching a query",
	Long: `Search analyzes the query, fetches candidates from every enabled source and
prints the merged list. Sources that fail are reported after the list.`,
	Example: `  papersearch search "recent work on diffusion models for protein design"
  papersearch search "GANs" --max-results 10 --sources arxiv --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("max-results", 0, "Maximum number of papers (default from config)")
	searchCmd.Flags().StringSlice("sources", nil, "Sources to query: arxiv, semantic_scholar (default all enabled)")
	searchCmd.Flags().String("format", "markdown", "Output format: markdown, text, json, yaml")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	outFormat, err := format.ParseFormat(formatName)
	if err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}

	searchID, result, err := search(cmd, app, args[0])
	if err != nil {
		return err
	}
	return format.Render(cmd.OutOrStdout(), searchID, result, outFormat)
}

// search runs one retrieval with the command's flag overrides applied.
func search(cmd *cobra.Command, app *bootstrap.App, text string) (string, *domain.SearchResult, error) {
	cfg, err := searchConfig(cmd, app)
	if err != nil {
		return "", nil, err
	}

	query := domain.Query{Text: text}
	if n, _ := cmd.Flags().GetInt("max-results"); n != 0 {
		if n < 0 {
			return "", nil, fmt.Errorf("%w: --max-results must be positive", domain.ErrInvalidInput)
		}
		query.MaxResults = &n
	}

	searchID := uuid.NewString()
	ctx := observability.WithSearchID(commandContext(cmd), searchID)

	result, err := app.Aggregator.Retrieve(ctx, query, cfg)
	if err != nil {
		return "", nil, err
	}
	return searchID, result, nil
}

func searchConfig(cmd *cobra.Command, app *bootstrap.App) (retrieval.Config, error) {
	cfg := app.Config.RetrievalConfig()
	names, _ := cmd.Flags().GetStringSlice("sources")
	if len(names) == 0 {
		return cfg, nil
	}
	sources, err := app.Config.ParseSources(names)
	if err != nil {
		return cfg, err
	}
	cfg.EnabledSources = sources
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
