package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Format is an output rendering.
type Format string

const (
	Markdown Format = "markdown"
	Text     Format = "text"
	JSON     Format = "json"
	YAML     Format = "yaml"
)

// Abstract display widths, in terminal cells.
const (
	markdownAbstractWidth = 300
	textAbstractWidth     = 200
)

const (
	resultsIntro  = "I found the following papers that match your query:"
	resultsOutro  = "Here are the papers that match your search query."
	untitledPaper = "Unknown Title"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{Markdown, Text, JSON, YAML}
}

// ParseFormat parses a format name. "md" and "txt" are accepted aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md", "":
		return Markdown, nil
	case "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", domain.ErrInvalidInput, s)
	}
}

// Render writes r to w in format f.
func Render(w io.Writer, searchID string, r *domain.SearchResult, f Format) error {
	switch f {
	case Markdown:
		_, err := io.WriteString(w, RenderMarkdown(r))
		return err
	case Text:
		_, err := io.WriteString(w, RenderText(r))
		return err
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(NewResultView(searchID, r))
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(NewResultView(searchID, r)); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: unknown format %q", domain.ErrInvalidInput, f)
	}
}

// RenderMarkdown renders a numbered Markdown listing.
func RenderMarkdown(r *domain.SearchResult) string {
	if r.IsEmpty() {
		return domain.MessageNoPapers + "\n"
	}

	var sb strings.Builder
	sb.WriteString("# Search Results\n\n")
	sb.WriteString(resultsIntro + "\n\n")

	for i, p := range r.Papers {
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, titleOf(p))
		fmt.Fprintf(&sb, "**Authors**: %s\n\n", authorLine(p))
		fmt.Fprintf(&sb, "**Source**: %s\n\n", p.Source.DisplayName())
		if p.Abstract != "" {
			fmt.Fprintf(&sb, "**Abstract**: %s\n\n", TruncateWidth(p.Abstract, markdownAbstractWidth))
		}
		if p.URL != "" {
			fmt.Fprintf(&sb, "**URL**: %s\n\n", p.URL)
		}
		if p.ResolvedPDFURL != "" {
			fmt.Fprintf(&sb, "**PDF**: %s\n\n", p.ResolvedPDFURL)
		}
		sb.WriteString("---\n\n")
	}

	writeFailures(&sb, r, "> ")
	sb.WriteString(resultsOutro + "\n")
	return sb.String()
}

// RenderText renders a numbered plain-text listing.
func RenderText(r *domain.SearchResult) string {
	if r.IsEmpty() {
		return domain.MessageNoPapers + "\n"
	}

	var sb strings.Builder
	sb.WriteString("Search Results\n\n")
	sb.WriteString(resultsIntro + "\n\n")

	for i, p := range r.Papers {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, titleOf(p))
		fmt.Fprintf(&sb, "   Authors: %s\n", authorLine(p))
		fmt.Fprintf(&sb, "   Source: %s\n", p.Source.DisplayName())
		if p.Abstract != "" {
			fmt.Fprintf(&sb, "   Abstract: %s\n", TruncateWidth(p.Abstract, textAbstractWidth))
		}
		if p.ResolvedPDFURL != "" {
			fmt.Fprintf(&sb, "   PDF: %s\n", p.ResolvedPDFURL)
		}
		sb.WriteString("\n")
	}

	writeFailures(&sb, r, "")
	sb.WriteString(resultsOutro + "\n")
	return sb.String()
}

func writeFailures(sb *strings.Builder, r *domain.SearchResult, prefix string) {
	if len(r.SourceFailures) == 0 {
		return
	}
	names := make([]string, 0, len(r.SourceFailures))
	for _, f := range r.SourceFailures {
		names = append(names, f.Source.DisplayName())
	}
	fmt.Fprintf(sb, "%sSome sources were unavailable: %s\n\n", prefix, strings.Join(names, ", "))
}

// TruncateWidth cuts s to at most width display cells and appends "..."
// when anything was removed. Wide (CJK) runes count as two cells.
func TruncateWidth(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "") + "..."
}

func titleOf(p domain.PaperRecord) string {
	if strings.TrimSpace(p.Title) == "" {
		return untitledPaper
	}
	return p.Title
}
