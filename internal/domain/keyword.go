package domain

import (
	"regexp"
	"strings"
	"unicode"
)

// whitespaceRegex matches one or more whitespace characters (spaces, tabs, newlines).
var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeKeyword normalizes a keyword string by:
// - Converting to lowercase
// - Trimming leading/trailing whitespace
// - Collapsing multiple whitespace characters into a single space
func NormalizeKeyword(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeTitle returns the deduplication key for a paper title: lowercase
// with whitespace collapsed. Punctuation is kept.
func NormalizeTitle(title string) string {
	return NormalizeKeyword(title)
}

// TokenizeQuery splits raw query text on whitespace and punctuation, keeping
// first occurrences in order. Tokens are compared case-insensitively but
// returned as written.
func TokenizeQuery(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '-' && r != '\'') || unicode.IsSymbol(r)
	})

	tokens := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-'")
		if f == "" {
			continue
		}
		key := strings.ToLower(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		tokens = append(tokens, f)
	}
	return tokens
}

// DedupeKeywords drops blank entries and case-insensitive duplicates while
// preserving order. Surrounding whitespace is trimmed.
func DedupeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(whitespaceRegex.ReplaceAllString(kw, " "))
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}
