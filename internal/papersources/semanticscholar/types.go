// Package semanticscholar provides a client for the Semantic Scholar API.
//
// This package implements the papersources.PaperSource interface on top of
// the Semantic Scholar Graph API relevance search and, when a sort order is
// configured, the bulk search endpoint.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// SearchResponse represents the response from the paper search endpoints.
type SearchResponse struct {
	// Total is the total number of papers matching the query.
	Total int `json:"total"`

	// Offset is the current offset in the result set (relevance search only).
	Offset int `json:"offset"`

	// Next is the offset for the next page of results (relevance search only).
	Next int `json:"next"`

	// Token is the continuation token for the next page (bulk search only).
	Token string `json:"token"`

	// Data contains the list of papers returned by the search.
	Data []PaperResult `json:"data"`
}

// PaperResult represents a single paper in the Semantic Scholar API response.
type PaperResult struct {
	PaperID       string         `json:"paperId"`
	URL           string         `json:"url"`
	Title         string         `json:"title"`
	Abstract      string         `json:"abstract"`
	Year          *int           `json:"year"`
	Authors       []Author       `json:"authors"`
	CitationCount int            `json:"citationCount"`
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`
	ExternalIDs   *ExternalIDs   `json:"externalIds,omitempty"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	DOI           string `json:"DOI,omitempty"`
	ArXiv         string `json:"ArXiv,omitempty"`
	PubMed        string `json:"PubMed,omitempty"`
	PubMedCentral string `json:"PubMedCentral,omitempty"`
}

// Author represents a paper author in the Semantic Scholar API.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// OpenAccessPDF contains information about an open access PDF.
type OpenAccessPDF struct {
	// URL is the direct URL to the PDF. The API sends an empty string when
	// only the license status is known.
	URL string `json:"url,omitempty"`

	// Status indicates the open access status (e.g., "HYBRID", "GOLD", "GREEN").
	Status string `json:"status,omitempty"`
}

// ErrorResponse represents an error response from the Semantic Scholar API.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
