// Package pdfresolve derives one downloadable-document link per paper from the
// identifiers a source exposed, using an ordered chain of static link templates.
package pdfresolve

import (
	"regexp"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

var (
	// New-style arXiv IDs (2301.12345, 0704.0001v2) and old-style (hep-th/9901001, math.GT/0309136).
	arxivNewIDRegex = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)
	arxivOldIDRegex = regexp.MustCompile(`^[a-z][a-z\-]*(\.[A-Z]{2})?/\d{7}(v\d+)?$`)

	doiRegex     = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	doiFindRegex = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

	pmcIDRegex    = regexp.MustCompile(`^(?i:pmc)?(\d+)$`)
	pubmedIDRegex = regexp.MustCompile(`^\d+$`)
)

// doiURLPrefixes are stripped before a DOI is validated.
var doiURLPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// ExtractIdentifiers returns the well-formed identifiers present on rec,
// normalized for link construction. Malformed values are dropped.
func ExtractIdentifiers(rec domain.PaperRecord) domain.PaperIdentifiers {
	return domain.PaperIdentifiers{
		ArXivID:  NormalizeArXivID(rec.ArXivID),
		DOI:      NormalizeDOI(rec.DOI),
		PMCID:    NormalizePMCID(rec.PMCID),
		PubMedID: NormalizePubMedID(rec.PubMedID),
	}
}

// NormalizeArXivID strips an "arXiv:" prefix and returns the ID, or "" when
// it is not a valid arXiv identifier.
func NormalizeArXivID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 6 && strings.EqualFold(id[:6], "arxiv:") {
		id = id[6:]
	}
	if arxivNewIDRegex.MatchString(id) || arxivOldIDRegex.MatchString(id) {
		return id
	}
	return ""
}

// NormalizeDOI strips resolver URL and "doi:" prefixes and returns the DOI,
// or "" when it is not of the form 10.NNNN/suffix.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, p := range doiURLPrefixes {
		if strings.HasPrefix(lower, p) {
			doi = doi[len(p):]
			break
		}
	}
	if doiRegex.MatchString(doi) {
		return doi
	}
	return ""
}

// NormalizePMCID returns the numeric part of a PMC ID ("PMC123" -> "123"),
// or "" when malformed.
func NormalizePMCID(id string) string {
	m := pmcIDRegex.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return ""
	}
	return m[1]
}

// NormalizePubMedID returns a numeric PubMed ID, or "" when malformed.
func NormalizePubMedID(id string) string {
	id = strings.TrimSpace(id)
	if pubmedIDRegex.MatchString(id) {
		return id
	}
	return ""
}

// FindDOI returns the first DOI found in free text, with trailing
// punctuation removed, or "".
func FindDOI(text string) string {
	for _, match := range doiFindRegex.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if NormalizeDOI(match) != "" {
			return match
		}
	}
	return ""
}

// doiRegistrant returns the "10.NNNN" registrant prefix of a DOI.
func doiRegistrant(doi string) string {
	prefix, _, _ := strings.Cut(doi, "/")
	return prefix
}

// doiSuffix returns everything after the first "/".
func doiSuffix(doi string) string {
	_, suffix, _ := strings.Cut(doi, "/")
	return suffix
}

// doiLastSegment returns the text after the final "/".
func doiLastSegment(doi string) string {
	return doi[strings.LastIndex(doi, "/")+1:]
}
