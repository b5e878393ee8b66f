// Package papersources provides interfaces and types for academic paper source clients.
//
// Each academic database (arXiv, Semantic Scholar) implements the PaperSource
// interface, allowing the retrieval pipeline to search every enabled source
// concurrently with a unified API.
//
// Example usage:
//
//	source := arxiv.New(cfg, papersources.WithMetrics(metrics))
//	papers, err := source.Search(ctx, papersources.SearchParams{
//		Keywords:   []string{"generative adversarial networks", "image synthesis"},
//		Limit:      5,
//		Categories: []string{"cs.CV", "cs.LG"},
//	})
package papersources

import (
	"context"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
type SearchParams struct {
	// Keywords are the analyzed search terms, in order. Each source decides
	// how to join them into its native query syntax.
	Keywords []string

	// Limit is the maximum number of papers to return. Sources may clamp it
	// to their own page size.
	Limit int

	// Categories restricts results to source-native subject categories
	// (e.g. arXiv "cs.LG"). Sources without category support ignore it.
	Categories []string
}

// JoinKeywords joins the non-blank keywords with sep.
func (p SearchParams) JoinKeywords(sep string) string {
	parts := make([]string, 0, len(p.Keywords))
	for _, kw := range p.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			parts = append(parts, kw)
		}
	}
	return strings.Join(parts, sep)
}

// PaperSource defines the interface that all paper source clients must implement.
type PaperSource interface {
	// Search queries the paper source for papers matching the given parameters
	// and returns them in source order, without PDF resolution.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting as needed
	//   - Return (nil, err) on unavailability, malformed payloads or non-2xx responses
	Search(ctx context.Context, params SearchParams) ([]domain.PaperRecord, error)

	// SourceType returns the type identifier for this paper source.
	SourceType() domain.SourceType

	// Name returns a human-readable name for this paper source.
	Name() string

	// IsEnabled returns whether this paper source is currently enabled.
	// Disabled sources are never invoked.
	IsEnabled() bool
}
