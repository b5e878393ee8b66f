package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/pdfresolve"
)

// inspectPages bounds how many leading pages are scanned for a DOI and title.
const inspectPages = 3

// ErrUnreadable is returned when the bytes cannot be parsed as a PDF.
var ErrUnreadable = errors.New("pdf: document is unreadable")

// Document summarizes a downloaded PDF.
type Document struct {
	// Pages is the page count reported by the cross-reference table.
	Pages int
	// DOI is the first DOI found on the leading pages, if any.
	DOI string
	// Title is a best-effort guess taken from the first substantial line.
	Title string
}

// Inspect parses content and extracts a page count, DOI and title guess.
// Pages whose text cannot be extracted are skipped.
func Inspect(content []byte) (doc *Document, err error) {
	if !bytes.HasPrefix(content, pdfMagic) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", ErrUnreadable)
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	doc = &Document{Pages: reader.NumPage()}
	for i := 1; i <= min(inspectPages, doc.Pages); i++ {
		text := pageText(reader, i)
		if text == "" {
			continue
		}
		if doc.Title == "" && i == 1 {
			doc.Title = guessTitle(text)
		}
		if doc.DOI == "" {
			doc.DOI = pdfresolve.FindDOI(text)
		}
	}
	return doc, nil
}

func pageText(reader *lpdf.Reader, n int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

var headerLine = regexp.MustCompile(`(?i)^(arxiv:|preprint|doi|https?://|page \d|vol\.|journal of|proceedings)`)

func guessTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !headerLine.MatchString(line) {
			return line
		}
	}
	return ""
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9.\-]+`)

// FileName derives a stable local file name for a record's PDF from its
// canonical identifier, falling back to the title slug.
func FileName(rec domain.PaperRecord) string {
	base := domain.GenerateCanonicalID(pdfresolve.ExtractIdentifiers(rec))
	if base == "" {
		base = rec.Title
	}

	slug := unsafeFileChars.ReplaceAllString(strings.ToLower(base), "-")
	slug = strings.Trim(slug, "-.")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-.")
	}
	if slug == "" {
		slug = "paper"
	}
	return slug + ".pdf"
}
