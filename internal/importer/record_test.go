package importer

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litgraph/internal/alias"
	"litgraph/internal/alias/resolver"
)

func TestCleanRecords(t *testing.T) {
	t.Run("last duplicate wins at the first position", func(t *testing.T) {
		out := CleanRecords([]*Record{
			{ID: "a", Name: "old"},
			{ID: "b", Name: "b"},
			{ID: "a", Name: "new"},
		}, nil)
		require.Len(t, out, 2)
		assert.Equal(t, "a", out[0].ID)
		assert.Equal(t, "new", out[0].Name)
		assert.Equal(t, "b", out[1].ID)
	})

	t.Run("shared identifier stays with the first claimant", func(t *testing.T) {
		out := CleanRecords([]*Record{
			{ID: "a", Identifiers: []alias.Pair{doi("10.1/x"), doi("10.1/a")}},
			{ID: "b", Identifiers: []alias.Pair{doi("10.1/b"), doi("10.1/x")}},
		}, slog.Default())
		assert.Equal(t, []alias.Pair{doi("10.1/x"), doi("10.1/a")}, out[0].Identifiers)
		assert.Equal(t, []alias.Pair{doi("10.1/b")}, out[1].Identifiers)
	})

	t.Run("abstract line breaks", func(t *testing.T) {
		out := CleanRecords([]*Record{{ID: "a", Abstract: "one\ntwo\n\nthree"}}, nil)
		assert.Equal(t, "one two\n\nthree", out[0].Abstract)
	})
}

func TestNormalizeRecord(t *testing.T) {
	n := resolver.New(nil, nil, nil)

	t.Run("primary is canonicalized and prepended", func(t *testing.T) {
		r := &Record{
			ID:                " 1 ",
			Name:              " Title ",
			PrimaryIdentifier: primary(arxiv("arXiv:1501.00001")),
			Identifiers:       []alias.Pair{doi("10.1000/X"), doi("10.1000/x"), doi("junk")},
			Authors:           []alias.Pair{pair(alias.SchemeORCID, "0000-0002-1825-0097"), pair(alias.SchemeORCID, "0000-0002-1825-0098")},
			Bibliography:      []alias.Pair{pair(alias.SchemeISBN, "978-0-306-40615-7")},
		}
		require.True(t, normalizeRecord(n, r, slog.Default()))
		assert.Equal(t, "1", r.ID)
		assert.Equal(t, "Title", r.Name)
		assert.Equal(t, arxiv("1501.00001"), *r.PrimaryIdentifier)
		assert.Equal(t, []alias.Pair{arxiv("1501.00001"), doi("10.1000/x")}, r.Identifiers)
		assert.Equal(t, []alias.Pair{pair(alias.SchemeORCID, "0000-0002-1825-0097")}, r.Authors)
		assert.Equal(t, []alias.Pair{pair(alias.SchemeISBN, "9780306406157")}, r.Bibliography)
	})

	t.Run("primary already listed keeps its position", func(t *testing.T) {
		r := &Record{
			ID:                "1",
			Name:              "Title",
			PrimaryIdentifier: primary(doi("10.1000/b")),
			Identifiers:       []alias.Pair{doi("10.1000/a"), doi("10.1000/b")},
		}
		require.True(t, normalizeRecord(n, r, slog.Default()))
		assert.Equal(t, []alias.Pair{doi("10.1000/a"), doi("10.1000/b")}, r.Identifiers)
	})

	t.Run("rejected records", func(t *testing.T) {
		assert.False(t, normalizeRecord(n, &Record{Name: "x"}, slog.Default()))
		assert.False(t, normalizeRecord(n, &Record{ID: "1"}, slog.Default()))
		assert.False(t, normalizeRecord(n, &Record{ID: "1", Name: "x", PrimaryIdentifier: primary(doi("nope"))}, slog.Default()))
	})
}
