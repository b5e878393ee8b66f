package papersources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
)

// SourceResult holds the outcome of a search against one source.
type SourceResult struct {
	// Source identifies which paper source produced the result.
	Source domain.SourceType

	// Papers contains the records returned by the source. Nil when Err is set.
	Papers []domain.PaperRecord

	// Err is set when the source failed or did not report before the deadline.
	Err error

	// TimedOut is true when the shared deadline expired before the source reported.
	TimedOut bool

	// Duration is the time the source took to report, or the time waited
	// before it was abandoned.
	Duration time.Duration
}

// Failure converts a failed result into a SourcePartialFailure.
// Returns nil for successful results.
func (r SourceResult) Failure() *domain.SourcePartialFailure {
	if r.Err == nil {
		return nil
	}
	return &domain.SourcePartialFailure{
		Source:   r.Source,
		Err:      r.Err,
		TimedOut: r.TimedOut,
	}
}

// Registry manages paper sources and coordinates concurrent searches.
// It provides thread-safe registration and retrieval of paper sources,
// as well as concurrent search operations across multiple sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]PaperSource
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]PaperSource),
	}
}

// Register adds a source to the registry.
// If a source with the same type already exists, it will be replaced.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not found.
func (r *Registry) Get(sourceType domain.SourceType) PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// AllSources returns all registered sources in priority order.
func (r *Registry) AllSources() []PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PaperSource, 0, len(r.sources))
	for _, source := range r.sources {
		sources = append(sources, source)
	}
	sortByPriority(sources)
	return sources
}

// EnabledSources returns only enabled sources, in priority order.
func (r *Registry) EnabledSources() []PaperSource {
	return r.Select(nil)
}

// Select returns the enabled sources named in sourceTypes, in priority order.
// A nil sourceTypes selects every enabled source; an empty non-nil slice
// selects none. Unregistered and disabled types are skipped.
func (r *Registry) Select(sourceTypes []domain.SourceType) []PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sources []PaperSource
	if sourceTypes == nil {
		sources = make([]PaperSource, 0, len(r.sources))
		for _, source := range r.sources {
			if source.IsEnabled() {
				sources = append(sources, source)
			}
		}
	} else {
		sources = make([]PaperSource, 0, len(sourceTypes))
		seen := make(map[domain.SourceType]bool, len(sourceTypes))
		for _, st := range sourceTypes {
			if seen[st] {
				continue
			}
			seen[st] = true
			if source, ok := r.sources[st]; ok && source.IsEnabled() {
				sources = append(sources, source)
			}
		}
	}

	sortByPriority(sources)
	return sources
}

// SearchSources searches the selected sources concurrently and returns one
// result per source, in priority order.
//
// Collection stops when every source has reported or ctx is done, whichever
// comes first. Sources still running at that point are abandoned and
// reported with Err set to the context error; TimedOut is set when the
// context deadline expired. A panicking source is reported as failed.
func (r *Registry) SearchSources(ctx context.Context, params SearchParams, sourceTypes []domain.SourceType) []SourceResult {
	sources := r.Select(sourceTypes)
	if len(sources) == 0 {
		return nil
	}

	start := time.Now()

	// Buffered so abandoned goroutines can still deliver and exit.
	resultChan := make(chan SourceResult, len(sources))
	for _, source := range sources {
		go func(s PaperSource) {
			resultChan <- searchOne(ctx, s, params)
		}(source)
	}

	reported := make(map[domain.SourceType]SourceResult, len(sources))
collect:
	for len(reported) < len(sources) {
		select {
		case res := <-resultChan:
			reported[res.Source] = res
		case <-ctx.Done():
			break collect
		}
	}

	results := make([]SourceResult, 0, len(sources))
	for _, s := range sources {
		res, ok := reported[s.SourceType()]
		if !ok {
			err := ctx.Err()
			res = SourceResult{
				Source:   s.SourceType(),
				Err:      err,
				TimedOut: errors.Is(err, context.DeadlineExceeded),
				Duration: time.Since(start),
			}
		}
		results = append(results, res)
	}
	return results
}

func searchOne(ctx context.Context, s PaperSource, params SearchParams) (res SourceResult) {
	start := time.Now()
	res.Source = s.SourceType()

	defer func() {
		if p := recover(); p != nil {
			res.Papers = nil
			res.Err = fmt.Errorf("%s: panic during search: %v", s.Name(), p)
		}
		res.Duration = time.Since(start)
	}()

	papers, err := s.Search(ctx, params)
	if err != nil {
		res.Err = err
		res.TimedOut = errors.Is(err, context.DeadlineExceeded)
		return res
	}
	res.Papers = papers
	return res
}

func sortByPriority(sources []PaperSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].SourceType().Priority() < sources[j].SourceType().Priority()
	})
}
