// Package llm provides LLM-backed query analysis for the paper search service.
//
// A QueryAnalyzer turns a free-text research question, possibly in a language
// other than English, into an English search query and a short list of
// academic keywords suitable for arXiv and Semantic Scholar.
//
// Example usage:
//
//	analyzer := llm.NewOpenAIProvider(cfg, 0.3, 4096, 30*time.Second, 2)
//	result, err := analyzer.AnalyzeQuery(ctx, "生成对抗网络在图像合成中的应用")
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Keyword count bounds requested from the model.
const (
	MinAnalysisKeywords = 3
	MaxAnalysisKeywords = 8
)

// ErrMalformedResponse is returned when the model output is not the expected JSON object.
var ErrMalformedResponse = errors.New("malformed LLM response")

// AnalysisResult is the structured answer of the model for one query.
type AnalysisResult struct {
	// IsValid is false when the model judged the text not to be a paper search.
	IsValid bool

	// SearchQuery is the English reformulation of the query.
	SearchQuery string

	// Keywords are deduplicated, non-blank academic keywords in model order.
	Keywords []string

	// Language is the detected language of the original query (ISO 639-1 when the model complies).
	Language string

	// Intent is a short free-form description of what the user is after.
	Intent string

	// Message explains a rejection.
	Message string

	// Model is the LLM model used.
	Model string

	// InputTokens is the number of input tokens used.
	InputTokens int

	// OutputTokens is the number of output tokens used.
	OutputTokens int
}

// QueryAnalyzer analyzes a raw research query with a language model.
//
// Implementations perform exactly one logical call per AnalyzeQuery. Transport
// retries on transient errors are allowed inside the implementation.
type QueryAnalyzer interface {
	// AnalyzeQuery sends the query to the model and parses its answer.
	AnalyzeQuery(ctx context.Context, query string) (*AnalysisResult, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// analysisPayload is the JSON object the model is asked to return.
type analysisPayload struct {
	IsValid     *bool    `json:"is_valid"`
	SearchQuery string   `json:"search_query"`
	Keywords    []string `json:"keywords"`
	Language    string   `json:"language"`
	Intent      string   `json:"intent"`
	Message     string   `json:"message"`
}

// BuildAnalysisPrompt builds the system and user prompts for query analysis.
func BuildAnalysisPrompt(query string) (systemPrompt, userPrompt string) {
	return buildAnalysisSystemPrompt(), buildAnalysisUserPrompt(query)
}

func buildAnalysisSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are an assistant that analyzes academic paper search queries. ")
	sb.WriteString("Your output is used to search arXiv and Semantic Scholar.\n\n")

	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"is_valid": true, "search_query": "reformulated search query in English", `)
	sb.WriteString(`"keywords": ["keyword1", "keyword2"], "language": "en", `)
	sb.WriteString(`"intent": "what the user is looking for", "message": "explanation or error message"}`)
	sb.WriteString("\n\n")

	sb.WriteString("Guidelines:\n")
	sb.WriteString("1. If the query is not in English, detect its language and translate the key concepts to English.\n")
	sb.WriteString(fmt.Sprintf("2. Extract between %d and %d concise academic keywords or phrases (e.g., \"machine learning\", \"attention\").\n",
		MinAnalysisKeywords, MaxAnalysisKeywords))
	sb.WriteString("3. Keep keywords faithful to the request. Do not add associated topics the user did not ask for.\n")
	sb.WriteString("4. Avoid vague terms such as \"ability\" or \"mechanisms\" and do not repeat words across keywords.\n")
	sb.WriteString("5. The query may be embedded in a larger task description. Focus on the part that states the task before judging validity.\n")
	sb.WriteString("6. If the query is unclear or is not a search for academic papers, set is_valid to false and explain why in message.\n")
	sb.WriteString("7. Report the detected language as an ISO 639-1 code.\n")

	return sb.String()
}

func buildAnalysisUserPrompt(query string) string {
	var sb strings.Builder

	sb.WriteString("Analyze the following academic paper search query.\n\n")
	sb.WriteString("Query:\n")
	sb.WriteString("---\n")
	sb.WriteString(query)
	sb.WriteString("\n---")

	return sb.String()
}

// ParseAnalysis decodes the model output into an AnalysisResult. Markdown
// code fences around the JSON are removed and keywords are deduplicated
// case-insensitively. A missing is_valid field is read as true.
func ParseAnalysis(content string) (*AnalysisResult, error) {
	cleaned := stripCodeFence(content)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		// Some models wrap the object in prose.
		start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	result := &AnalysisResult{
		IsValid:     payload.IsValid == nil || *payload.IsValid,
		SearchQuery: strings.TrimSpace(payload.SearchQuery),
		Keywords:    domain.DedupeKeywords(payload.Keywords),
		Language:    strings.ToLower(strings.TrimSpace(payload.Language)),
		Intent:      strings.TrimSpace(payload.Intent),
		Message:     strings.TrimSpace(payload.Message),
	}
	return result, nil
}

// stripCodeFence removes a leading ``` or ```json line and a trailing ``` line.
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
