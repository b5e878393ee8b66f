// Package domain provides the core types shared by the paper search pipeline.
package domain

import (
	"fmt"
	"strings"
)

// SourceType identifies the academic database a paper record came from.
type SourceType string

const (
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
)

// sourcePriority lists sources in merge order. Records from earlier sources
// win deduplication ties.
var sourcePriority = []SourceType{
	SourceTypeArXiv,
	SourceTypeSemanticScholar,
}

// AllSourceTypes returns every known source in merge priority order.
func AllSourceTypes() []SourceType {
	out := make([]SourceType, len(sourcePriority))
	copy(out, sourcePriority)
	return out
}

// Priority returns the merge rank of the source. Lower ranks merge first.
// Unknown sources sort after all known ones.
func (s SourceType) Priority() int {
	for i, st := range sourcePriority {
		if st == s {
			return i
		}
	}
	return len(sourcePriority)
}

// IsValid reports whether s is a known source.
func (s SourceType) IsValid() bool {
	return s.Priority() < len(sourcePriority)
}

// DisplayName returns the human-readable source name.
func (s SourceType) DisplayName() string {
	switch s {
	case SourceTypeArXiv:
		return "arXiv"
	case SourceTypeSemanticScholar:
		return "Semantic Scholar"
	default:
		return string(s)
	}
}

// ParseSourceType converts a configuration or request value into a SourceType.
// It accepts a few common spellings ("semanticscholar", "s2").
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arxiv":
		return SourceTypeArXiv, nil
	case "semantic_scholar", "semanticscholar", "semantic-scholar", "s2":
		return SourceTypeSemanticScholar, nil
	default:
		return "", fmt.Errorf("%w: unknown source %q", ErrInvalidInput, s)
	}
}

// ParseSourceTypes parses a list of source names, dropping duplicates while
// keeping first-seen order.
func ParseSourceTypes(names []string) ([]SourceType, error) {
	out := make([]SourceType, 0, len(names))
	seen := make(map[SourceType]bool, len(names))
	for _, name := range names {
		st, err := ParseSourceType(name)
		if err != nil {
			return nil, err
		}
		if seen[st] {
			continue
		}
		seen[st] = true
		out = append(out, st)
	}
	return out, nil
}
