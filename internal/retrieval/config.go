package retrieval

import (
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Defaults applied when Config fields are zero.
const (
	DefaultMaxResults      = 5
	DefaultFetchTimeout    = 30 * time.Second
	DefaultAnalyzerTimeout = 30 * time.Second
)

// DefaultArxivCategories restricts arXiv searches to AI, machine learning and NLP.
var DefaultArxivCategories = []string{"cs.AI", "cs.LG", "cs.CL"}

// Config carries every setting a single Retrieve call depends on. It is
// passed explicitly so that nothing below the entry point reads the
// environment.
type Config struct {
	// MaxResults bounds the merged result. A per-query override in
	// domain.Query takes precedence.
	MaxResults int

	// EnabledSources selects which registered sources are queried. Nil
	// means every enabled source; an empty slice queries nothing.
	EnabledSources []domain.SourceType

	// ArxivCategories is the arXiv subject filter. Empty means no filter.
	ArxivCategories []string

	// EnablePDFEnhancement turns on identifier- and DOI-based PDF links.
	// When false only source-declared open-access links are used.
	EnablePDFEnhancement bool

	// AnalyzerFallbackOnError tokenizes the raw query when analysis fails.
	AnalyzerFallbackOnError bool

	// AnalyzerTimeout bounds query analysis.
	AnalyzerTimeout time.Duration

	// FetchTimeout is the shared deadline for all source searches.
	FetchTimeout time.Duration

	// RequireTrustedPDF drops records whose resolved link is not on a trusted host.
	RequireTrustedPDF bool

	// TrustedPDFSources lists trusted "host" or "host/path" entries. Empty
	// means pdfresolve.DefaultTrustedSources.
	TrustedPDFSources []string

	// RetryWithOriginalQuery re-runs the fetch with the tokenized raw query
	// when the analyzed query found nothing.
	RetryWithOriginalQuery bool
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxResults:           DefaultMaxResults,
		EnabledSources:       domain.AllSourceTypes(),
		ArxivCategories:      append([]string(nil), DefaultArxivCategories...),
		EnablePDFEnhancement: true,
		AnalyzerTimeout:      DefaultAnalyzerTimeout,
		FetchTimeout:         DefaultFetchTimeout,
	}
}

// effectiveMaxResults applies the per-query override and the default.
func (c Config) effectiveMaxResults(q domain.Query) int {
	if q.MaxResults != nil && *q.MaxResults > 0 {
		return *q.MaxResults
	}
	if c.MaxResults > 0 {
		return c.MaxResults
	}
	return DefaultMaxResults
}

func (c Config) fetchTimeout() time.Duration {
	if c.FetchTimeout > 0 {
		return c.FetchTimeout
	}
	return DefaultFetchTimeout
}
