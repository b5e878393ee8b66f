// Package format renders search results for people and programs: numbered
// Markdown and plain-text listings, and JSON or YAML documents.
package format

import (
	"fmt"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

// PaperView is the serialized form of one paper.
type PaperView struct {
	Title    string   `json:"title" yaml:"title"`
	Authors  []string `json:"authors" yaml:"authors"`
	Year     *int     `json:"year,omitempty" yaml:"year,omitempty"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Source   string   `json:"source" yaml:"source"`
	URL      string   `json:"url,omitempty" yaml:"url,omitempty"`
	PDFURL   string   `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`
	ArXivID  string   `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`
	DOI      string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	PubMedID string   `json:"pubmed_id,omitempty" yaml:"pubmed_id,omitempty"`
	PMCID    string   `json:"pmc_id,omitempty" yaml:"pmc_id,omitempty"`
}

// QueryView is the serialized form of the analyzed query.
type QueryView struct {
	Original        string   `json:"original" yaml:"original"`
	NormalizedQuery string   `json:"normalized_query,omitempty" yaml:"normalized_query,omitempty"`
	Keywords        []string `json:"keywords" yaml:"keywords"`
	Language        string   `json:"language,omitempty" yaml:"language,omitempty"`
	Intent          string   `json:"intent,omitempty" yaml:"intent,omitempty"`
	Fallback        bool     `json:"fallback" yaml:"fallback"`
}

// FailureView is the serialized form of a source failure.
type FailureView struct {
	Source   string `json:"source" yaml:"source"`
	Error    string `json:"error" yaml:"error"`
	TimedOut bool   `json:"timed_out" yaml:"timed_out"`
}

// ResultView is the serialized form of a search result.
type ResultView struct {
	SearchID       string        `json:"search_id,omitempty" yaml:"search_id,omitempty"`
	Query          QueryView     `json:"query" yaml:"query"`
	Papers         []PaperView   `json:"papers" yaml:"papers"`
	SourceFailures []FailureView `json:"source_failures,omitempty" yaml:"source_failures,omitempty"`
	Message        string        `json:"message,omitempty" yaml:"message,omitempty"`
}

// NewPaperView converts a record.
func NewPaperView(p domain.PaperRecord) PaperView {
	authors := p.Authors
	if authors == nil {
		authors = []string{}
	}
	return PaperView{
		Title:    p.Title,
		Authors:  authors,
		Year:     p.Year,
		Abstract: p.Abstract,
		Source:   string(p.Source),
		URL:      p.URL,
		PDFURL:   p.ResolvedPDFURL,
		ArXivID:  p.ArXivID,
		DOI:      p.DOI,
		PubMedID: p.PubMedID,
		PMCID:    p.PMCID,
	}
}

// NewResultView converts a search result. An empty result carries
// domain.MessageNoPapers.
func NewResultView(searchID string, r *domain.SearchResult) ResultView {
	view := ResultView{SearchID: searchID, Papers: []PaperView{}}
	if r == nil {
		view.Message = domain.MessageNoPapers
		return view
	}

	keywords := r.Query.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	view.Query = QueryView{
		Original:        r.Query.Original,
		NormalizedQuery: r.Query.NormalizedQuery,
		Keywords:        keywords,
		Language:        r.Query.Language,
		Intent:          r.Query.Intent,
		Fallback:        r.Query.Fallback,
	}

	for _, p := range r.Papers {
		view.Papers = append(view.Papers, NewPaperView(p))
	}
	for _, f := range r.SourceFailures {
		fv := FailureView{Source: string(f.Source), TimedOut: f.TimedOut}
		if f.Err != nil {
			fv.Error = f.Err.Error()
		}
		view.SourceFailures = append(view.SourceFailures, fv)
	}
	if r.IsEmpty() {
		view.Message = domain.MessageNoPapers
	}
	return view
}

// authorLine joins up to three authors, appending "et al." when there are
// more, followed by the year in parentheses when known.
func authorLine(p domain.PaperRecord) string {
	var sb strings.Builder
	shown := p.Authors
	if len(shown) > 3 {
		shown = shown[:3]
	}
	sb.WriteString(strings.Join(shown, ", "))
	if len(p.Authors) > 3 {
		sb.WriteString(" et al.")
	}
	if p.Year != nil {
		fmt.Fprintf(&sb, " (%d)", *p.Year)
	}
	return strings.TrimSpace(sb.String())
}
