package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the largest page the relevance search endpoint serves.
	DefaultMaxResults = 100

	// DefaultOverFetchFactor multiplies the limit when over-fetching is enabled.
	DefaultOverFetchFactor = 10

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,url,title,abstract,year,authors,citationCount,openAccessPdf,externalIds"

	// paperPageURL is the public page for a paper without a url field.
	paperPageURL = "https://www.semanticscholar.org/paper/"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Zero selects the
	// published budget for anonymous or keyed access.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults caps the number of results requested per search.
	MaxResults int

	// Sort is an optional bulk search sort order such as "citationCount:desc".
	// When set, searches use the /paper/search/bulk endpoint.
	Sort string

	// OverFetch requests limit*OverFetchFactor results (capped at MaxResults)
	// so that downstream filtering still leaves enough records.
	OverFetch bool

	// OverFetchFactor defaults to DefaultOverFetchFactor.
	OverFetchFactor int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		preset := papersources.DefaultRateLimit(domain.SourceTypeSemanticScholar, c.APIKey != "")
		c.RateLimit = preset.RatePerSecond
		c.BurstSize = preset.Burst
	}
	if c.BurstSize == 0 {
		c.BurstSize = 1
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.OverFetchFactor <= 0 {
		c.OverFetchFactor = DefaultOverFetchFactor
	}
}

// HTTPClientConfig returns the transport settings for this source.
func (c Config) HTTPClientConfig() papersources.HTTPClientConfig {
	c.applyDefaults()
	return papersources.HTTPClientConfig{
		Source:       string(domain.SourceTypeSemanticScholar),
		Timeout:      c.Timeout,
		RateLimit:    c.RateLimit,
		BurstSize:    c.BurstSize,
		APIKey:       c.APIKey,
		APIKeyHeader: apiKeyHeader,
	}
}

// Client implements the papersources.PaperSource interface for Semantic Scholar.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

// Compile-time check that Client implements papersources.PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(cfg.HTTPClientConfig())
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries Semantic Scholar for papers matching the keywords.
// Keywords are joined with ", "; category filters are not supported and are ignored.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) ([]domain.PaperRecord, error) {
	query := params.JoinKeywords(", ")
	if query == "" {
		return nil, fmt.Errorf("%s: %w: no keywords", sourceName, domain.ErrInvalidInput)
	}

	limit := c.requestLimit(params.Limit)
	endpoint, reqURL, values := c.buildSearchRequest(query, limit)

	body, err := c.httpClient.Get(ctx, endpoint, reqURL, values)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", sourceName, refineAPIError(err))
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", sourceName, err)
	}

	papers := make([]domain.PaperRecord, 0, min(len(searchResp.Data), limit))
	for _, result := range searchResp.Data {
		if len(papers) == limit {
			break
		}
		if rec, ok := convertToRecord(result); ok {
			papers = append(papers, rec)
		}
	}
	return papers, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// requestLimit returns how many results to ask for, applying over-fetch and
// the configured cap.
func (c *Client) requestLimit(limit int) int {
	if limit <= 0 {
		limit = c.config.MaxResults
	}
	if c.config.OverFetch {
		limit *= c.config.OverFetchFactor
	}
	if limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}
	return limit
}

// buildSearchRequest returns the metrics endpoint label, URL and query
// parameters for a search.
func (c *Client) buildSearchRequest(query string, limit int) (string, string, url.Values) {
	base := strings.TrimRight(c.config.BaseURL, "/")

	values := url.Values{}
	values.Set("query", query)
	values.Set("fields", paperFields)

	if c.config.Sort != "" {
		// Bulk search has no limit parameter; results are truncated client-side.
		values.Set("sort", c.config.Sort)
		return "search_bulk", base + "/paper/search/bulk", values
	}

	values.Set("limit", strconv.Itoa(limit))
	return "search", base + "/paper/search", values
}

// refineAPIError replaces a raw JSON error body with the API's message.
func refineAPIError(err error) error {
	var apiErr *domain.ExternalAPIError
	if !errors.As(err, &apiErr) {
		return err
	}

	var errResp ErrorResponse
	if json.Unmarshal([]byte(apiErr.Message), &errResp) != nil {
		return err
	}
	message := errResp.Error
	if message == "" {
		message = errResp.Message
	}
	if message == "" {
		return err
	}
	return domain.NewExternalAPIError(apiErr.Source, apiErr.StatusCode, message, apiErr.Cause)
}

// convertToRecord converts a single API paper result to a PaperRecord.
// Results without a title are skipped.
func convertToRecord(result PaperResult) (domain.PaperRecord, bool) {
	title := strings.Join(strings.Fields(result.Title), " ")
	if title == "" {
		return domain.PaperRecord{}, false
	}

	authors := make([]string, 0, len(result.Authors))
	for _, a := range result.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	var year *int
	if result.Year != nil && *result.Year > 0 {
		y := *result.Year
		year = &y
	}

	pageURL := result.URL
	if pageURL == "" && result.PaperID != "" {
		pageURL = paperPageURL + result.PaperID
	}

	rec := domain.PaperRecord{
		Title:    title,
		Authors:  authors,
		Year:     year,
		Abstract: strings.TrimSpace(result.Abstract),
		Source:   domain.SourceTypeSemanticScholar,
		URL:      pageURL,
	}

	if result.ExternalIDs != nil {
		rec.DOI = strings.TrimSpace(result.ExternalIDs.DOI)
		rec.ArXivID = strings.TrimSpace(result.ExternalIDs.ArXiv)
		rec.PubMedID = strings.TrimSpace(result.ExternalIDs.PubMed)
		rec.PMCID = strings.TrimSpace(result.ExternalIDs.PubMedCentral)
	}
	if result.OpenAccessPDF != nil {
		rec.OpenAccessPDFURL = strings.TrimSpace(result.OpenAccessPDF.URL)
	}

	return rec, true
}
