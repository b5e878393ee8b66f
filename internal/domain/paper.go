package domain

import (
	"strings"
)

// PaperIdentifiers holds the external identifiers a source exposed for a paper.
type PaperIdentifiers struct {
	DOI      string
	ArXivID  string
	PubMedID string
	PMCID    string
}

// GenerateCanonicalID generates a canonical identifier from paper identifiers.
// Priority order: ArXiv > DOI > PMC > PubMed.
// Returns empty string if no identifiers are available.
func GenerateCanonicalID(ids PaperIdentifiers) string {
	if arxiv := strings.TrimSpace(ids.ArXivID); arxiv != "" {
		return "arxiv:" + arxiv
	}
	if doi := strings.TrimSpace(ids.DOI); doi != "" {
		return "doi:" + strings.ToLower(doi)
	}
	if pmc := strings.TrimSpace(ids.PMCID); pmc != "" {
		return "pmc:" + strings.TrimPrefix(strings.ToUpper(pmc), "PMC")
	}
	if pubmed := strings.TrimSpace(ids.PubMedID); pubmed != "" {
		return "pubmed:" + pubmed
	}
	return ""
}

// PaperRecord is the common shape every source adapter produces.
//
// ResolvedPDFURL is computed by the PDF resolver after retrieval. Once set it is
// never replaced by a lower-priority resolution rule.
type PaperRecord struct {
	Title    string
	Authors  []string
	Year     *int
	Abstract string
	Source   SourceType

	// URL is the canonical landing page for the paper on its source.
	URL string

	ArXivID  string
	DOI      string
	PubMedID string
	PMCID    string

	// OpenAccessPDFURL is the source-declared open-access link (Semantic Scholar only).
	OpenAccessPDFURL string

	// ResolvedPDFURL is the best-effort downloadable link. Empty when no rule matched.
	ResolvedPDFURL string
}

// Identifiers returns the record's external identifiers.
func (p PaperRecord) Identifiers() PaperIdentifiers {
	return PaperIdentifiers{
		DOI:      p.DOI,
		ArXivID:  p.ArXivID,
		PubMedID: p.PubMedID,
		PMCID:    p.PMCID,
	}
}

// CanonicalID returns the canonical identifier for the record, or "" if it has none.
func (p PaperRecord) CanonicalID() string {
	return GenerateCanonicalID(p.Identifiers())
}

// Clone returns a deep copy of the record.
func (p PaperRecord) Clone() PaperRecord {
	out := p
	if p.Authors != nil {
		out.Authors = make([]string, len(p.Authors))
		copy(out.Authors, p.Authors)
	}
	if p.Year != nil {
		y := *p.Year
		out.Year = &y
	}
	return out
}

// Query is a raw user query with an optional result-count override.
type Query struct {
	Text string

	// MaxResults overrides the configured maximum when non-nil and positive.
	MaxResults *int
}

// AnalyzedQuery is the output of query analysis.
type AnalyzedQuery struct {
	// Original is the raw query text.
	Original string

	// Keywords is the ordered keyword sequence used to build source queries.
	Keywords []string

	// Language is the detected source language of the query (e.g. "en", "zh").
	Language string

	// NormalizedQuery is the English rendering of the query.
	NormalizedQuery string

	// Intent is a free-form hint about what the user is looking for.
	Intent string

	// Fallback is true when Keywords were produced by tokenizing Original
	// because language analysis failed.
	Fallback bool
}

// SearchResult is the bounded, ordered output of one retrieval.
type SearchResult struct {
	Papers []PaperRecord

	// Query is the analysis the retrieval ran with.
	Query AnalyzedQuery

	// SourceFailures lists the sources that failed or timed out. Informational only.
	SourceFailures []SourcePartialFailure
}

// IsEmpty reports whether the result holds no papers.
func (r *SearchResult) IsEmpty() bool {
	return r == nil || len(r.Papers) == 0
}
