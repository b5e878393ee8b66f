package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/analyzer"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/papersources"
)

// fakeSource is a scripted papersources.PaperSource.
type fakeSource struct {
	typ      domain.SourceType
	papers   []domain.PaperRecord
	err      error
	delay    time.Duration
	disabled bool

	calls atomic.Int32
	mu    sync.Mutex
	seen  []papersources.SearchParams
}

var _ papersources.PaperSource = (*fakeSource)(nil)

func (f *fakeSource) Search(ctx context.Context, params papersources.SearchParams) ([]domain.PaperRecord, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, params)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.PaperRecord, len(f.papers))
	for i, p := range f.papers {
		out[i] = p.Clone()
	}
	return out, nil
}

func (f *fakeSource) SourceType() domain.SourceType { return f.typ }
func (f *fakeSource) Name() string                  { return f.typ.DisplayName() }
func (f *fakeSource) IsEnabled() bool               { return !f.disabled }

func (f *fakeSource) params() []papersources.SearchParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]papersources.SearchParams(nil), f.seen...)
}

// stubAnalyzer returns a fixed analysis, or a scripted error.
type stubAnalyzer struct {
	aq    *domain.AnalyzedQuery
	err   error
	calls atomic.Int32
}

func (s *stubAnalyzer) AnalyzeWith(ctx context.Context, raw string, cfg analyzer.Config) (*domain.AnalyzedQuery, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	aq := *s.aq
	aq.Original = raw
	return &aq, nil
}

func analyzed(normalized string, keywords ...string) *stubAnalyzer {
	return &stubAnalyzer{aq: &domain.AnalyzedQuery{Keywords: keywords, NormalizedQuery: normalized, Language: "en"}}
}

func newRegistry(sources ...*fakeSource) *papersources.Registry {
	reg := papersources.NewRegistry()
	for _, s := range sources {
		reg.Register(s)
	}
	return reg
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FetchTimeout = 2 * time.Second
	return cfg
}

func paper(title string, source domain.SourceType) domain.PaperRecord {
	return domain.PaperRecord{Title: title, Source: source}
}

func TestRetrieve_GANExample(t *testing.T) {
	arxivSrc := &fakeSource{typ: domain.SourceTypeArXiv, papers: []domain.PaperRecord{
		{Title: "Generative Adversarial Networks", Source: domain.SourceTypeArXiv, ArXivID: "1406.2661"},
		{Title: "Progressive Growing of GANs", Source: domain.SourceTypeArXiv, ArXivID: "1710.10196"},
		{Title: "A Style-Based Generator Architecture for GANs", Source: domain.SourceTypeArXiv, ArXivID: "1812.04948"},
		{Title: "Large Scale GAN Training for High Fidelity Natural Image Synthesis", Source: domain.SourceTypeArXiv, ArXivID: "1809.11096"},
	}}
	s2Src := &fakeSource{typ: domain.SourceTypeSemanticScholar, papers: []domain.PaperRecord{
		{Title: "generative adversarial networks", Source: domain.SourceTypeSemanticScholar, DOI: "10.1145/3422622"},
		{Title: "Image Synthesis with Semantic Layouts", Source: domain.SourceTypeSemanticScholar, DOI: "10.1109/CVPR.2019.00244",
			OpenAccessPDFURL: "https://openaccess.thecvf.com/paper.pdf"},
		{Title: "Conditional Image Synthesis with Auxiliary Classifier GANs", Source: domain.SourceTypeSemanticScholar},
	}}

	metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
	agg := New(analyzed("generative adversarial networks image synthesis", "generative adversarial networks", "image synthesis"),
		newRegistry(arxivSrc, s2Src), zerolog.Nop(), WithMetrics(metrics))

	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "生成对抗网络 图像合成"}, testConfig())

	require.NoError(t, err)
	require.Len(t, result.Papers, 5)
	assert.Equal(t, []string{
		"Generative Adversarial Networks",
		"Progressive Growing of GANs",
		"A Style-Based Generator Architecture for GANs",
		"Large Scale GAN Training for High Fidelity Natural Image Synthesis",
		"Image Synthesis with Semantic Layouts",
	}, titles(result.Papers))
	assert.Empty(t, result.SourceFailures)

	assert.Equal(t, "https://arxiv.org/pdf/1406.2661.pdf", result.Papers[0].ResolvedPDFURL)
	assert.Equal(t, "https://openaccess.thecvf.com/paper.pdf", result.Papers[4].ResolvedPDFURL)
	assert.Equal(t, "生成对抗网络 图像合成", result.Query.Original)

	params := arxivSrc.params()
	require.Len(t, params, 1)
	assert.Equal(t, []string{"generative adversarial networks", "image synthesis"}, params[0].Keywords)
	assert.Equal(t, 5, params[0].Limit)
	assert.Equal(t, DefaultArxivCategories, params[0].Categories)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PapersDuplicate))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SearchesCompleted))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.PapersBySource.WithLabelValues("arxiv")))
}

func TestRetrieve_PartialFailureIsolation(t *testing.T) {
	arxivSrc := &fakeSource{typ: domain.SourceTypeArXiv, papers: []domain.PaperRecord{
		paper("Attention Is All You Need", domain.SourceTypeArXiv),
	}}
	s2Src := &fakeSource{typ: domain.SourceTypeSemanticScholar, err: errors.New("semantic scholar: 500")}

	agg := New(analyzed("attention", "attention"), newRegistry(arxivSrc, s2Src), zerolog.Nop())

	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "attention"}, testConfig())

	require.NoError(t, err)
	assert.Equal(t, []string{"Attention Is All You Need"}, titles(result.Papers))
	require.Len(t, result.SourceFailures, 1)
	assert.Equal(t, domain.SourceTypeSemanticScholar, result.SourceFailures[0].Source)
	assert.False(t, result.SourceFailures[0].TimedOut)
	assert.ErrorIs(t, &result.SourceFailures[0], domain.ErrSourceFailed)
}

func TestRetrieve_SourceTimeout(t *testing.T) {
	arxivSrc := &fakeSource{typ: domain.SourceTypeArXiv, papers: []domain.PaperRecord{paper("Fast", domain.SourceTypeArXiv)}}
	s2Src := &fakeSource{typ: domain.SourceTypeSemanticScholar, delay: 10 * time.Second}

	cfg := testConfig()
	cfg.FetchTimeout = 50 * time.Millisecond
	agg := New(analyzed("q", "q"), newRegistry(arxivSrc, s2Src), zerolog.Nop())

	start := time.Now()
	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q"}, cfg)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"Fast"}, titles(result.Papers))
	require.Len(t, result.SourceFailures, 1)
	assert.True(t, result.SourceFailures[0].TimedOut)
	assert.ErrorIs(t, result.SourceFailures[0].Err, context.DeadlineExceeded)
}

func TestRetrieve_FullOutage(t *testing.T) {
	arxivSrc := &fakeSource{typ: domain.SourceTypeArXiv, err: errors.New("arxiv down")}
	s2Src := &fakeSource{typ: domain.SourceTypeSemanticScholar, err: errors.New("s2 down")}

	metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
	agg := New(analyzed("q", "q"), newRegistry(arxivSrc, s2Src), zerolog.Nop(), WithMetrics(metrics))

	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q"}, testConfig())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsEmpty())
	assert.Len(t, result.SourceFailures, 2)
	assert.Equal(t, domain.SourceTypeArXiv, result.SourceFailures[0].Source)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EmptyResults))
}

func TestRetrieve_AnalysisErrorsPropagateUnmodified(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"invalid query", domain.NewInvalidQueryError("", "query is empty"), failureInvalidQuery},
		{"rejected", domain.NewRejectedQueryError("hi", "not a search"), failureRejected},
		{"analysis failed", domain.NewAnalysisError("q", errors.New("llm down")), failureAnalysisFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{typ: domain.SourceTypeArXiv}
			metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
			var states []State
			agg := New(&stubAnalyzer{err: tt.err}, newRegistry(src), zerolog.Nop(),
				WithMetrics(metrics),
				WithStateObserver(func(_ string, s State) { states = append(states, s) }))

			result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q"}, testConfig())

			assert.Nil(t, result)
			assert.Same(t, tt.err, err)
			assert.Zero(t, src.calls.Load())
			assert.Equal(t, []State{StateAnalyzing, StateFailed}, states)
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SearchesFailed.WithLabelValues(tt.reason)))
		})
	}
}

func TestRetrieve_StateSequence(t *testing.T) {
	src := &fakeSource{typ: domain.SourceTypeArXiv, papers: []domain.PaperRecord{paper("A", domain.SourceTypeArXiv)}}
	var states []State
	var ids []string
	agg := New(analyzed("a", "a"), newRegistry(src), zerolog.Nop(),
		WithStateObserver(func(id string, s State) {
			states = append(states, s)
			ids = append(ids, id)
		}))

	ctx := observability.WithSearchID(context.Background(), "search-123")
	_, err := agg.Retrieve(ctx, domain.Query{Text: "a"}, testConfig())

	require.NoError(t, err)
	assert.Equal(t, []State{StateAnalyzing, StateFetching, StateEnhancing, StateMerging, StateDone}, states)
	for _, id := range ids {
		assert.Equal(t, "search-123", id)
	}
}

func TestRetrieve_EnhancementDisabled(t *testing.T) {
	src := &fakeSource{typ: domain.SourceTypeSemanticScholar, papers: []domain.PaperRecord{
		{Title: "Deep learning", Source: domain.SourceTypeSemanticScholar, DOI: "10.1038/nature14539"},
		{Title: "Open", Source: domain.SourceTypeSemanticScholar, OpenAccessPDFURL: "https://example.org/open.pdf"},
	}}
	cfg := testConfig()
	cfg.EnablePDFEnhancement = false

	agg := New(analyzed("deep learning", "deep learning"), newRegistry(src), zerolog.Nop())
	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "deep learning"}, cfg)

	require.NoError(t, err)
	require.Len(t, result.Papers, 2)
	assert.Empty(t, result.Papers[0].ResolvedPDFURL)
	assert.Equal(t, "10.1038/nature14539", result.Papers[0].DOI)
	assert.Equal(t, "https://example.org/open.pdf", result.Papers[1].ResolvedPDFURL)
}

func TestRetrieve_RequireTrustedPDF(t *testing.T) {
	s2Papers := make([]domain.PaperRecord, 0, 12)
	for i := 0; i < 6; i++ {
		s2Papers = append(s2Papers,
			domain.PaperRecord{Title: fmt.Sprintf("Nature %d", i), Source: domain.SourceTypeSemanticScholar, DOI: fmt.Sprintf("10.1038/n%d", i)},
			domain.PaperRecord{Title: fmt.Sprintf("Preprint %d", i), Source: domain.SourceTypeSemanticScholar, ArXivID: fmt.Sprintf("2101.0000%d", i)},
		)
	}
	src := &fakeSource{typ: domain.SourceTypeSemanticScholar, papers: s2Papers}

	cfg := testConfig()
	cfg.RequireTrustedPDF = true
	cfg.MaxResults = 3

	agg := New(analyzed("q", "q"), newRegistry(src), zerolog.Nop())
	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q"}, cfg)

	require.NoError(t, err)
	assert.Equal(t, []string{"Preprint 0", "Preprint 1", "Preprint 2"}, titles(result.Papers))
}

func TestRetrieve_RequireTrustedPDF_FallsThroughUntrustedLinks(t *testing.T) {
	src := &fakeSource{typ: domain.SourceTypeSemanticScholar, papers: []domain.PaperRecord{{
		Title:            "Untrusted open access",
		Source:           domain.SourceTypeSemanticScholar,
		OpenAccessPDFURL: "https://www.mdpi.com/1234/pdf",
		ArXivID:          "2101.00001",
	}}}

	tests := []struct {
		name    string
		trusted bool
		want    string
	}{
		{name: "trusted mode picks arxiv link", trusted: true, want: "https://arxiv.org/pdf/2101.00001.pdf"},
		{name: "default mode keeps open access link", trusted: false, want: "https://www.mdpi.com/1234/pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.RequireTrustedPDF = tt.trusted

			agg := New(analyzed("q", "q"), newRegistry(src), zerolog.Nop())
			result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q"}, cfg)

			require.NoError(t, err)
			require.Len(t, result.Papers, 1)
			assert.Equal(t, tt.want, result.Papers[0].ResolvedPDFURL)
		})
	}
}

func TestRetrieve_PerQueryMaxResults(t *testing.T) {
	papers := make([]domain.PaperRecord, 10)
	for i := range papers {
		papers[i] = paper(fmt.Sprintf("Paper %d", i), domain.SourceTypeArXiv)
	}
	src := &fakeSource{typ: domain.SourceTypeArXiv, papers: papers}
	agg := New(analyzed("q", "q"), newRegistry(src), zerolog.Nop())

	limit := 2
	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q", MaxResults: &limit}, testConfig())

	require.NoError(t, err)
	assert.Len(t, result.Papers, 2)
	assert.Equal(t, 2, src.params()[0].Limit)

	result, err = agg.Retrieve(context.Background(), domain.Query{Text: "q"}, testConfig())

	require.NoError(t, err)
	assert.Len(t, result.Papers, DefaultMaxResults)
}

func TestRetrieve_EnabledSources(t *testing.T) {
	arxivSrc := &fakeSource{typ: domain.SourceTypeArXiv, papers: []domain.PaperRecord{paper("A", domain.SourceTypeArXiv)}}
	s2Src := &fakeSource{typ: domain.SourceTypeSemanticScholar, papers: []domain.PaperRecord{paper("B", domain.SourceTypeSemanticScholar)}}

	cfg := testConfig()
	cfg.EnabledSources = []domain.SourceType{domain.SourceTypeSemanticScholar}

	agg := New(analyzed("q", "q"), newRegistry(arxivSrc, s2Src), zerolog.Nop())
	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q"}, cfg)

	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, titles(result.Papers))
	assert.Zero(t, arxivSrc.calls.Load())
}

func TestRetrieve_EmptySourceSelection(t *testing.T) {
	tests := []struct {
		name    string
		sources []domain.SourceType
		calls   int32
		want    []string
	}{
		{name: "nil queries every source", sources: nil, calls: 1, want: []string{"A", "B"}},
		{name: "empty queries nothing", sources: []domain.SourceType{}, calls: 0, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arxivSrc := &fakeSource{typ: domain.SourceTypeArXiv, papers: []domain.PaperRecord{paper("A", domain.SourceTypeArXiv)}}
			s2Src := &fakeSource{typ: domain.SourceTypeSemanticScholar, papers: []domain.PaperRecord{paper("B", domain.SourceTypeSemanticScholar)}}

			cfg := testConfig()
			cfg.EnabledSources = tt.sources

			agg := New(analyzed("q", "q"), newRegistry(arxivSrc, s2Src), zerolog.Nop())
			result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q"}, cfg)

			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.want, titles(result.Papers))
			assert.Equal(t, tt.calls, arxivSrc.calls.Load())
			assert.Equal(t, tt.calls, s2Src.calls.Load())
		})
	}
}

func TestRetrieve_RetryWithOriginalQuery(t *testing.T) {
	t.Run("retries once with tokenized original", func(t *testing.T) {
		src := &fakeSource{typ: domain.SourceTypeArXiv}
		var states []State
		cfg := testConfig()
		cfg.RetryWithOriginalQuery = true

		agg := New(analyzed("translated query", "translated"), newRegistry(src), zerolog.Nop(),
			WithStateObserver(func(_ string, s State) { states = append(states, s) }))
		result, err := agg.Retrieve(context.Background(), domain.Query{Text: "原始 查询"}, cfg)

		require.NoError(t, err)
		assert.True(t, result.IsEmpty())
		params := src.params()
		require.Len(t, params, 2)
		assert.Equal(t, []string{"translated"}, params[0].Keywords)
		assert.Equal(t, []string{"原始", "查询"}, params[1].Keywords)
		assert.Equal(t, []State{
			StateAnalyzing,
			StateFetching, StateEnhancing, StateMerging,
			StateFetching, StateEnhancing, StateMerging,
			StateDone,
		}, states)
	})

	t.Run("no retry when normalized equals original", func(t *testing.T) {
		src := &fakeSource{typ: domain.SourceTypeArXiv}
		cfg := testConfig()
		cfg.RetryWithOriginalQuery = true

		agg := New(analyzed("same query", "same"), newRegistry(src), zerolog.Nop())
		_, err := agg.Retrieve(context.Background(), domain.Query{Text: "Same Query"}, cfg)

		require.NoError(t, err)
		assert.Equal(t, int32(1), src.calls.Load())
	})

	t.Run("disabled by default", func(t *testing.T) {
		src := &fakeSource{typ: domain.SourceTypeArXiv}

		agg := New(analyzed("translated query", "translated"), newRegistry(src), zerolog.Nop())
		_, err := agg.Retrieve(context.Background(), domain.Query{Text: "原始 查询"}, testConfig())

		require.NoError(t, err)
		assert.Equal(t, int32(1), src.calls.Load())
	})
}

func TestRetrieve_ConcurrentCallsShareNothing(t *testing.T) {
	src := &fakeSource{typ: domain.SourceTypeArXiv, papers: []domain.PaperRecord{
		{Title: "A", Source: domain.SourceTypeArXiv, ArXivID: "1406.2661"},
		{Title: "B", Source: domain.SourceTypeArXiv, DOI: "10.1038/nature14539"},
	}}
	agg := New(analyzed("q", "q"), newRegistry(src), zerolog.Nop())

	const n = 16
	results := make([]*domain.SearchResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := agg.Retrieve(context.Background(), domain.Query{Text: fmt.Sprintf("q%d", i)}, testConfig())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, fmt.Sprintf("q%d", i), res.Query.Original)
		assert.Equal(t, []string{"A", "B"}, titles(res.Papers))
	}
}

func TestRetrieve_NoSources(t *testing.T) {
	agg := New(analyzed("q", "q"), papersources.NewRegistry(), zerolog.Nop())

	result, err := agg.Retrieve(context.Background(), domain.Query{Text: "q"}, testConfig())

	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Empty(t, result.SourceFailures)
}
