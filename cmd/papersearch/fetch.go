package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-service/internal/bootstrap"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/pdf"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <query>",
	Short: "Search, then download the PDF of one result",
	Long: `Fetch runs the same search as "papersearch search" and downloads the PDF of
the paper at --index (1-based). The file is checked to be a readable PDF before
it is written to --out.`,
	Example: `  papersearch fetch "attention is all you need" --index 1 --out papers/`,
	Args:    cobra.ExactArgs(1),
	RunE:    runFetch,
}

func init() {
	fetchCmd.Flags().Int("index", 1, "1-based position of the paper in the result list")
	fetchCmd.Flags().String("out", ".", "Directory to write the PDF to")
	fetchCmd.Flags().Int("max-results", 0, "Maximum number of papers (default from config)")
	fetchCmd.Flags().StringSlice("sources", nil, "Sources to query: arxiv, semantic_scholar (default all enabled)")

	rootCmd.AddCommand(fetchCmd)
}

// downloader fetches a PDF by URL. *pdf.Downloader implements it.
type downloader interface {
	Download(ctx context.Context, url string) (*pdf.DownloadResult, error)
}

func runFetch(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	return fetch(cmd, app, app.Downloader, args[0])
}

func fetch(cmd *cobra.Command, app *bootstrap.App, dl downloader, text string) error {
	index, _ := cmd.Flags().GetInt("index")
	outDir, _ := cmd.Flags().GetString("out")

	_, result, err := search(cmd, app, text)
	if err != nil {
		return err
	}

	rec, err := selectPaper(result, index)
	if err != nil {
		return err
	}

	logger := observability.WithPaperContext(app.Logger, rec.Title, rec.CanonicalID()).
		With().Str("url", rec.ResolvedPDFURL).Logger()
	logger.Debug().Msg("downloading pdf")

	downloaded, err := dl.Download(commandContext(cmd), rec.ResolvedPDFURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", rec.ResolvedPDFURL, err)
	}

	doc, err := pdf.Inspect(downloaded.Content)
	if err != nil {
		return &exitError{code: ExitInvalidPDF, err: fmt.Errorf("validate %s: %w", downloaded.FinalURL, err)}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(outDir, pdf.FileName(*rec))
	if err := os.WriteFile(path, downloaded.Content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	logger.Info().
		Str("path", path).
		Str("sha256", downloaded.ContentHash).
		Int("pages", doc.Pages).
		Str("doi", doc.DOI).
		Msg("pdf saved")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", path)
	fmt.Fprintf(out, "  title: %s\n", rec.Title)
	fmt.Fprintf(out, "  pages: %d  size: %d bytes\n", doc.Pages, downloaded.SizeBytes)
	if doc.DOI != "" {
		fmt.Fprintf(out, "  doi:   %s\n", doc.DOI)
	}
	return nil
}

// selectPaper returns the paper at the 1-based index. The paper must have
// a resolved PDF link.
func selectPaper(result *domain.SearchResult, index int) (*domain.PaperRecord, error) {
	if result.IsEmpty() {
		return nil, &exitError{code: ExitNoPapers, err: errors.New(domain.MessageNoPapers)}
	}
	if index < 1 || index > len(result.Papers) {
		return nil, fmt.Errorf("%w: --index must be between 1 and %d", domain.ErrInvalidInput, len(result.Papers))
	}
	rec := result.Papers[index-1]
	if rec.ResolvedPDFURL == "" {
		return nil, &exitError{
			code: ExitNoPapers,
			err:  fmt.Errorf("no PDF link could be resolved for %q", rec.Title),
		}
	}
	return &rec, nil
}
