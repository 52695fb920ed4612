package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litgraph/internal/alias"
	"litgraph/internal/paper"
	id "litgraph/pkg/domain"
)

func TestTitleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TitleSimilarity("Attention Is All You Need", "Attention Is All You Need"))
	assert.Equal(t, 1.0, TitleSimilarity("Attention  is all\nyou NEED", "attention is all you need"))
	assert.Greater(t, TitleSimilarity("Attention is all you need", "Attention is all you need!"), 0.9)
	assert.Less(t, TitleSimilarity("Attention is all you need", "0123456789"), DefaultSimilarity)
}

// seedPaper stores a paper linked to primary and returns its id.
func (w *world) seedPaper(t *testing.T, name string, primary alias.Pair) id.PaperID {
	t.Helper()
	p := &paper.Paper{Name: name}
	require.NoError(t, w.papers.CreatePaper(context.Background(), p))
	_, err := w.paperAliases.LinkAlias(context.Background(), primary, p.ID)
	require.NoError(t, err)
	return p.ID
}

func TestBackfiller(t *testing.T) {
	w := newWorld()
	fresh := w.seedPaper(t, "Deep Residual Learning for Image Recognition", doi("10.1109/cvpr.2016.90"))
	cited := w.seedPaper(t, "Attention Is All You Need", doi("10.5555/3295222"))
	w.papers.bibliography[cited] = []int64{99}
	renamed := w.seedPaper(t, "Zzzz", doi("10.1000/renamed"))

	b := NewBackfiller(passTx{}, w.papers, w.paperAliases)
	stats, err := b.Add(context.Background(), []*Record{
		{
			Name:              "Deep residual learning for image recognition",
			PrimaryIdentifier: primary(doi("10.1109/cvpr.2016.90")),
			Bibliography:      []alias.Pair{doi("10.1000/a"), doi("10.1000/b"), doi("10.1000/a")},
		},
		{
			Name:              "Attention is all you need",
			PrimaryIdentifier: primary(doi("10.5555/3295222")),
			Bibliography:      []alias.Pair{doi("10.1000/c")},
		},
		{
			Name:              "Deep residual learning for image recognition",
			PrimaryIdentifier: primary(doi("10.1000/renamed")),
			Bibliography:      []alias.Pair{doi("10.1000/d")},
		},
		{
			Name:              "Unknown",
			PrimaryIdentifier: primary(doi("10.1000/unknown")),
			Bibliography:      []alias.Pair{doi("10.1000/e")},
		},
		{
			Name:              "Deep residual learning for image recognition",
			PrimaryIdentifier: primary(doi("10.1109/cvpr.2016.90")),
			Bibliography:      []alias.Pair{doi("10.1000/f")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, BackfillStats{Added: 1, Missing: 1, Mismatch: 1, Skipped: 2}, *stats)

	require.Len(t, w.papers.bibliography[fresh], 2)
	assert.Equal(t, doi("10.1000/a"), w.paperAliases.rows[w.papers.bibliography[fresh][0]-1].Pair())
	assert.Equal(t, []int64{99}, w.papers.bibliography[cited])
	assert.Empty(t, w.papers.bibliography[renamed])
	assert.Zero(t, w.paperAliases.targetOf(doi("10.1000/a")), "cited aliases stay unlinked")
}

func TestBackfillerThreshold(t *testing.T) {
	w := newWorld()
	paperID := w.seedPaper(t, "Attention is all you need", doi("10.1000/x"))
	b := NewBackfiller(passTx{}, w.papers, w.paperAliases, WithThreshold(0.99))

	stats, err := b.Add(context.Background(), []*Record{{
		Name:              "Attention is all you need (extended)",
		PrimaryIdentifier: primary(doi("10.1000/x")),
		Bibliography:      []alias.Pair{doi("10.1000/y")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Mismatch)
	assert.Empty(t, w.papers.bibliography[paperID])
}

type stubFetcher struct {
	calls  [][]string
	fail   map[int]bool
	result func(dois []string) []*Record
}

func (f *stubFetcher) Fetch(_ context.Context, dois []string) ([]*Record, error) {
	f.calls = append(f.calls, dois)
	if f.fail[len(f.calls)] {
		return nil, errors.New("crossref down")
	}
	return f.result(dois), nil
}

func TestEnrichment(t *testing.T) {
	w := newWorld()
	first := w.seedPaper(t, "First paper", doi("10.1000/1"))
	w.seedPaper(t, "Second paper", doi("10.1000/2"))

	dois := []string{"10.1000/1", "10.1000/1"}
	for n := 0; n < enrichChunkSize; n++ {
		dois = append(dois, "10.1000/filler")
	}
	dois = append(dois, "10.1000/2")

	fetcher := &stubFetcher{
		result: func(dois []string) []*Record {
			var out []*Record
			for _, d := range dois {
				if d == "10.1000/1" {
					out = append(out, &Record{
						Name:              "First paper",
						PrimaryIdentifier: primary(doi(d)),
						Bibliography:      []alias.Pair{doi("10.1000/cited")},
					})
				}
			}
			return out
		},
	}
	e := NewEnrichment(fetcher, NewBackfiller(passTx{}, w.papers, w.paperAliases), nil, nil)

	require.NoError(t, e.Enrich(context.Background(), dois))
	require.Len(t, fetcher.calls, 1, "duplicates collapse into one chunk")
	assert.Len(t, fetcher.calls[0], 3)
	assert.Len(t, w.papers.bibliography[first], 1)
}

func TestEnrichmentSkipsFailedChunks(t *testing.T) {
	w := newWorld()
	fetcher := &stubFetcher{
		fail:   map[int]bool{1: true},
		result: func([]string) []*Record { return nil },
	}
	e := NewEnrichment(fetcher, NewBackfiller(passTx{}, w.papers, w.paperAliases), nil, nil)

	dois := make([]string, 0, enrichChunkSize+1)
	for n := 0; n <= enrichChunkSize; n++ {
		dois = append(dois, fmt.Sprintf("10.1000/%d", n))
	}
	require.NoError(t, e.Enrich(context.Background(), dois))
	assert.Len(t, fetcher.calls, 2)
}
