package retrieval

import "github.com/helixir/paper-search-service/internal/domain"

// Merge concatenates per-source record lists in the given order, keeps the
// first record for each normalized title, and stops at maxResults. It returns
// the merged records and the number of duplicates dropped before the cut.
// Records with a blank title are never treated as duplicates of each other.
func Merge(groups [][]domain.PaperRecord, maxResults int) ([]domain.PaperRecord, int) {
	if maxResults <= 0 {
		return []domain.PaperRecord{}, 0
	}

	out := make([]domain.PaperRecord, 0, maxResults)
	seen := make(map[string]bool)
	duplicates := 0

	for _, group := range groups {
		for _, rec := range group {
			if len(out) == maxResults {
				return out, duplicates
			}

			key := domain.NormalizeTitle(rec.Title)
			if key != "" {
				if seen[key] {
					duplicates++
					continue
				}
				seen[key] = true
			}
			out = append(out, rec)
		}
	}
	return out, duplicates
}
