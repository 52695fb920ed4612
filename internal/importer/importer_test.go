package importer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litgraph/internal/alias"
	"litgraph/internal/feed"
	"litgraph/internal/paper"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
)

func openArxiv(t *testing.T, imp *Importer) *Source {
	t.Helper()
	src, err := imp.OpenSource(context.Background(), "arxiv", "arXiv", "arXiv Bot")
	require.NoError(t, err)
	return src
}

func TestOpenSourceCreatesBotOnce(t *testing.T) {
	w := newWorld()
	imp := w.importer()

	src := openArxiv(t, imp)
	bot := w.papers.persons[src.BotProfile]
	require.NotNil(t, bot)
	assert.Equal(t, "arxiv-bot", bot.Username)
	assert.True(t, bot.IsBot)
	assert.Equal(t, "Robot account in charge of automatically importing new papers from arXiv.", bot.Bio)
	assert.Equal(t, src.BotProfile, w.personAliases.targetOf(alias.PersonHandle("arxiv-bot")))

	again := openArxiv(t, imp)
	assert.Equal(t, src.ID, again.ID)
	assert.Len(t, w.papers.persons, 1)
}

func TestOpenSourceBotConflictIsFatal(t *testing.T) {
	w := newWorld()
	require.NoError(t, w.papers.CreatePerson(context.Background(), &paper.Person{Username: "arxiv-bot"}))

	_, err := w.importer().OpenSource(context.Background(), "arxiv", "arXiv", "arXiv Bot")
	require.Error(t, err)
	assert.True(t, dErrors.IsFatal(err))
	assert.Equal(t, dErrors.CodeBotProfile, dErrors.CodeOf(err))
}

func TestImportCreatesPaper(t *testing.T) {
	w := newWorld()
	imp := w.importer()
	src := openArxiv(t, imp)
	cats, err := MapCategories(context.Background(), passTx{}, w.papers, CategoryDefs{
		"cs.DL": {Field: "compsci", Name: "Digital Libraries"},
	})
	require.NoError(t, err)

	year := 2017
	rec := &Record{
		ID:                "1706.03762",
		Name:              "Attention Is All You Need",
		Abstract:          "The dominant sequence\ntransduction models.\n\nWe propose",
		Year:              &year,
		PrimaryIdentifier: primary(arxiv("1706.03762")),
		Identifiers:       []alias.Pair{doi("10.48550/ARXIV.1706.03762")},
		Authors:           []alias.Pair{pair(alias.SchemeORCID, "0000-0002-1825-0097"), pair(alias.SchemeORCID, "bogus")},
		AuthorNames:       []string{"Vaswani, Ashish", "Shazeer, Noam"},
		Bibliography:      []alias.Pair{doi("10.1162/neco.1997.9.8.1735"), doi("10.1162/NECO.1997.9.8.1735")},
		Categories:        []string{"cs.DL", "cs.XX"},
		Keywords:          []string{"transformers", " transformers ", "", "a keyword much longer than thirty-two characters"},
	}

	stats, err := imp.Import(context.Background(), src, "2017-06-12", []*Record{rec}, cats)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, []string{"10.48550/arxiv.1706.03762"}, stats.DOIs)

	paperID := w.paperAliases.targetOf(arxiv("1706.03762"))
	require.NotZero(t, paperID)
	p := w.papers.papers[paperID]
	assert.Equal(t, src.BotProfile, p.PostedBy)
	assert.True(t, p.IncompleteMetadata)
	assert.Equal(t, "The dominant sequence transduction models.\n\nWe propose", p.Abstract)
	assert.Equal(t, paperID, w.paperAliases.targetOf(doi("10.48550/arxiv.1706.03762")))
	assert.Equal(t, paperID, w.paperAliases.targetOf(alias.PaperHandle(paperID)))

	assert.Equal(t, []id.SubfieldID{cats["cs.DL"]}, w.papers.paperFields[paperID])
	assert.Len(t, w.refs.pending[paperID], 1, "invalid author identifiers are dropped")
	assert.Len(t, w.papers.bibliography[paperID], 1, "citations are normalized before dedup")
	assert.Equal(t, []string{"Vaswani, Ashish", "Shazeer, Noam"}, w.papers.authorNames[paperID])
	assert.Equal(t, []string{"transformers", "a keyword much longer than thirt"}, w.papers.keywords[paperID])

	require.Len(t, w.feed.events, 1)
	assert.Equal(t, feed.PaperPosted, w.feed.events[0].Type)
	assert.Equal(t, src.BotProfile, w.feed.events[0].PersonID)

	stored := w.sources.rows[src.ID]
	assert.Equal(t, "2017-06-12", stored.Cursor)
	assert.Equal(t, uuid.Nil, stored.LeaseID)
}

func TestImportIsIdempotent(t *testing.T) {
	w := newWorld()
	imp := w.importer()
	src := openArxiv(t, imp)
	records := func() []*Record {
		return []*Record{{
			ID:                "1",
			Name:              "First",
			PrimaryIdentifier: primary(arxiv("1501.00001")),
			Identifiers:       []alias.Pair{doi("10.1000/one")},
		}}
	}

	_, err := imp.Import(context.Background(), src, "a", records(), nil)
	require.NoError(t, err)
	stats, err := imp.Import(context.Background(), src, "b", records(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 1, stats.Updated)
	assert.Len(t, w.papers.papers, 1)
	assert.Len(t, w.feed.events, 1)
}

func TestImportLinksMissingIdentifiersOnUpdate(t *testing.T) {
	w := newWorld()
	imp := w.importer()
	src := openArxiv(t, imp)

	_, err := imp.Import(context.Background(), src, "a", []*Record{{
		ID: "1", Name: "First", PrimaryIdentifier: primary(arxiv("1501.00001")),
	}}, nil)
	require.NoError(t, err)
	paperID := w.paperAliases.targetOf(arxiv("1501.00001"))

	stats, err := imp.Import(context.Background(), src, "b", []*Record{{
		ID: "1", Name: "First", PrimaryIdentifier: primary(arxiv("1501.00001")),
		Identifiers: []alias.Pair{doi("10.1000/late")},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, paperID, w.paperAliases.targetOf(doi("10.1000/late")))
	assert.Equal(t, []string{"10.1000/late"}, stats.DOIs)
}

func TestImportAmbiguousPrimary(t *testing.T) {
	seed := func(t *testing.T, policy AmbiguousPolicy) (*world, *Importer, *Source, id.PaperID) {
		w := newWorld()
		imp := w.importer(WithPolicy(policy))
		src := openArxiv(t, imp)
		_, err := imp.Import(context.Background(), src, "a", []*Record{{
			ID: "old", Name: "Old", PrimaryIdentifier: primary(arxiv("1501.00001")),
			Identifiers: []alias.Pair{doi("10.1000/shared")},
		}}, nil)
		require.NoError(t, err)
		return w, imp, src, w.paperAliases.targetOf(arxiv("1501.00001"))
	}
	// A different arXiv id whose DOI already belongs to the old paper.
	incoming := func() []*Record {
		return []*Record{{
			ID: "new", Name: "New", PrimaryIdentifier: primary(arxiv("1501.00002")),
			Identifiers: []alias.Pair{doi("10.1000/shared")},
		}}
	}

	t.Run("create imports a new paper with the free identifiers", func(t *testing.T) {
		w, imp, src, old := seed(t, PolicyCreate)
		stats, err := imp.Import(context.Background(), src, "b", incoming(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Created)
		created := w.paperAliases.targetOf(arxiv("1501.00002"))
		assert.NotEqual(t, old, created)
		assert.Equal(t, old, w.paperAliases.targetOf(doi("10.1000/shared")))
	})

	t.Run("update links the free identifiers to the existing paper", func(t *testing.T) {
		w, imp, src, old := seed(t, PolicyUpdate)
		stats, err := imp.Import(context.Background(), src, "b", incoming(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)
		assert.Equal(t, old, w.paperAliases.targetOf(arxiv("1501.00002")))
	})

	t.Run("skip leaves the record out", func(t *testing.T) {
		w, imp, src, _ := seed(t, PolicySkip)
		stats, err := imp.Import(context.Background(), src, "b", incoming(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Skipped)
		assert.Zero(t, w.paperAliases.targetOf(arxiv("1501.00002")))
	})
}

func TestImportSkipsRecordsReachingSeveralPapers(t *testing.T) {
	w := newWorld()
	imp := w.importer()
	src := openArxiv(t, imp)
	_, err := imp.Import(context.Background(), src, "a", []*Record{
		{ID: "1", Name: "One", PrimaryIdentifier: primary(doi("10.1000/one"))},
		{ID: "2", Name: "Two", PrimaryIdentifier: primary(doi("10.1000/two"))},
	}, nil)
	require.NoError(t, err)

	stats, err := imp.Import(context.Background(), src, "b", []*Record{{
		ID: "3", Name: "Merged", PrimaryIdentifier: primary(arxiv("1501.00003")),
		Identifiers: []alias.Pair{doi("10.1000/one"), doi("10.1000/two")},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, w.paperAliases.targetOf(arxiv("1501.00003")))
	assert.Len(t, w.papers.papers, 2)
}

func TestImportDetectsConcurrentRun(t *testing.T) {
	w := newWorld()
	imp := w.importer()
	src := openArxiv(t, imp)

	t.Run("live lease", func(t *testing.T) {
		w.sources.rows[src.ID].LeaseID = uuid.New()
		w.sources.rows[src.ID].LeaseExpires = time.Now().Add(time.Hour)
		_, err := imp.Import(context.Background(), src, "b", []*Record{{ID: "1", Name: "x", PrimaryIdentifier: primary(doi("10.1000/x"))}}, nil)
		assert.Equal(t, dErrors.CodeConcurrentImport, dErrors.CodeOf(err))
		assert.True(t, dErrors.IsFatal(err))
		assert.Empty(t, w.papers.papers)
	})

	t.Run("expired lease is taken over", func(t *testing.T) {
		w.sources.rows[src.ID].LeaseExpires = time.Now().Add(-time.Minute)
		_, err := imp.Import(context.Background(), src, "b", nil, nil)
		require.NoError(t, err)
	})

	t.Run("moved cursor", func(t *testing.T) {
		w.sources.rows[src.ID].Cursor = "z"
		_, err := imp.Import(context.Background(), src, "c", nil, nil)
		assert.Equal(t, dErrors.CodeConcurrentImport, dErrors.CodeOf(err))
	})
}

func TestImportFailedBatchKeepsCursorAndReleasesLease(t *testing.T) {
	w := newWorld()
	imp := w.importer(WithBatchSize(1))
	src := openArxiv(t, imp)
	w.papers.failOn = "Second"

	stats, err := imp.Import(context.Background(), src, "next", []*Record{
		{ID: "1", Name: "First", PrimaryIdentifier: primary(doi("10.1000/1"))},
		{ID: "2", Name: "Second", PrimaryIdentifier: primary(doi("10.1000/2"))},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, stats.Created, "the first batch committed")
	stored := w.sources.rows[src.ID]
	assert.Empty(t, stored.Cursor)
	assert.Equal(t, uuid.Nil, stored.LeaseID)
}

type recordingEnricher struct {
	dois []string
}

func (e *recordingEnricher) Enrich(_ context.Context, dois []string) error {
	e.dois = append(e.dois, dois...)
	return nil
}

func TestImportHandsNewDOIsToEnricher(t *testing.T) {
	w := newWorld()
	enricher := &recordingEnricher{}
	imp := w.importer(WithEnricher(enricher))
	src := openArxiv(t, imp)

	_, err := imp.Import(context.Background(), src, "a", []*Record{
		{ID: "1", Name: "One", PrimaryIdentifier: primary(arxiv("1501.00001")), Identifiers: []alias.Pair{doi("10.1000/ONE")}},
		{ID: "2", Name: "Two", PrimaryIdentifier: primary(arxiv("1501.00002"))},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1000/one"}, enricher.dois)
}

func TestImportDropsInvalidRecords(t *testing.T) {
	w := newWorld()
	imp := w.importer()
	src := openArxiv(t, imp)

	stats, err := imp.Import(context.Background(), src, "a", []*Record{
		{ID: "", Name: "No id", PrimaryIdentifier: primary(doi("10.1000/a"))},
		{ID: "1", Name: "  ", PrimaryIdentifier: primary(doi("10.1000/b"))},
		{ID: "2", Name: "Bad primary", PrimaryIdentifier: primary(doi("not-a-doi"))},
		{ID: "3", Name: "Fine", PrimaryIdentifier: primary(doi("10.1000/c"))},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
}
