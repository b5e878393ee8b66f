// Package arxiv implements a paper source backed by the arXiv Atom API.
package arxiv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults caps the page size requested from arXiv.
	DefaultMaxResults = 100

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"
)

// ErrQueryRejected is returned when arXiv answers with an error feed.
var ErrQueryRejected = errors.New("arxiv rejected query")

// arxivIDRegex extracts the arXiv ID from the abstract URL, dropping the version.
// Matches "http://arxiv.org/abs/2301.12345v1" and "http://arxiv.org/abs/hep-th/9901001v2".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Zero uses the arXiv preset.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults caps the number of results requested per search.
	MaxResults int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		preset := papersources.DefaultRateLimit(domain.SourceTypeArXiv, false)
		c.RateLimit = preset.RatePerSecond
		c.BurstSize = preset.Burst
	}
	if c.BurstSize == 0 {
		c.BurstSize = 1
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// HTTPClientConfig returns the transport settings for this source.
func (c Config) HTTPClientConfig() papersources.HTTPClientConfig {
	c.applyDefaults()
	return papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeArXiv),
		Timeout:   c.Timeout,
		RateLimit: c.RateLimit,
		BurstSize: c.BurstSize,
	}
}

// Client implements the papersources.PaperSource interface for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements PaperSource interface.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new arXiv client with its own rate-limited HTTP client.
func New(cfg Config, opts ...papersources.HTTPClientOption) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(cfg.HTTPClientConfig(), opts...),
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries arXiv for papers matching the keywords, ordered by relevance.
// Keywords are space-joined; Categories become an OR-ed cat: filter.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) ([]domain.PaperRecord, error) {
	searchQuery := BuildSearchQuery(params.Keywords, params.Categories)
	if searchQuery == "" {
		return nil, fmt.Errorf("%s: %w: no keywords", sourceName, domain.ErrInvalidInput)
	}

	limit := params.Limit
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("search_query", searchQuery)
	query.Set("start", "0")
	query.Set("max_results", strconv.Itoa(limit))
	query.Set("sortBy", "relevance")
	query.Set("sortOrder", "descending")

	body, err := c.httpClient.Get(ctx, "query", strings.TrimRight(c.config.BaseURL, "/")+"/query", query)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", sourceName, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", sourceName, err)
	}

	if msg, ok := errorFeedMessage(feed); ok {
		return nil, fmt.Errorf("%s: %w: %s", sourceName, ErrQueryRejected, msg)
	}

	papers := make([]domain.PaperRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		if rec, ok := itemToRecord(item); ok {
			papers = append(papers, rec)
		}
		if len(papers) == limit {
			break
		}
	}
	return papers, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildSearchQuery builds the arXiv search_query value. With categories the
// result is "(q) AND (cat:a OR cat:b)".
func BuildSearchQuery(keywords, categories []string) string {
	q := papersources.SearchParams{Keywords: keywords}.JoinKeywords(" ")
	if q == "" {
		return ""
	}

	cats := make([]string, 0, len(categories))
	for _, cat := range categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			cats = append(cats, "cat:"+cat)
		}
	}
	if len(cats) == 0 {
		return q
	}
	return fmt.Sprintf("(%s) AND (%s)", q, strings.Join(cats, " OR "))
}

// errorFeedMessage detects the single-entry error feed arXiv returns for
// malformed queries.
func errorFeedMessage(feed *gofeed.Feed) (string, bool) {
	if len(feed.Items) != 1 {
		return "", false
	}
	item := feed.Items[0]
	if !strings.Contains(item.GUID, "/api/errors") && !strings.EqualFold(strings.TrimSpace(item.Title), "error") {
		return "", false
	}
	return normalizeWhitespace(item.Description), true
}

// itemToRecord converts an Atom entry to a PaperRecord.
func itemToRecord(item *gofeed.Item) (domain.PaperRecord, bool) {
	if item == nil {
		return domain.PaperRecord{}, false
	}

	absURL := item.GUID
	if absURL == "" {
		absURL = item.Link
	}
	arxivID := extractArXivID(absURL)
	title := normalizeWhitespace(item.Title)
	if arxivID == "" || title == "" {
		return domain.PaperRecord{}, false
	}

	authors := make([]string, 0, len(item.Authors))
	for _, a := range item.Authors {
		if a == nil {
			continue
		}
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	var year *int
	if item.PublishedParsed != nil {
		y := item.PublishedParsed.Year()
		year = &y
	}

	return domain.PaperRecord{
		Title:    title,
		Authors:  authors,
		Year:     year,
		Abstract: normalizeWhitespace(item.Description),
		Source:   domain.SourceTypeArXiv,
		URL:      absURL,
		ArXivID:  arxivID,
		DOI:      itemDOI(item),
	}, true
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" -> "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(strings.TrimSpace(entryURL))
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeWhitespace trims and collapses multiple whitespace characters.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
