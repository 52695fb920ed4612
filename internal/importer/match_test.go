package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litgraph/internal/alias"
	id "litgraph/pkg/domain"
)

func indexOf(links map[alias.Pair]id.PaperID) *batchIndex {
	idx := &batchIndex{linked: map[alias.Pair]id.PaperID{}, schemes: map[id.PaperID]map[alias.Scheme]bool{}}
	for pair, paperID := range links {
		idx.link(pair, paperID)
	}
	return idx
}

func TestMatchRecord(t *testing.T) {
	const maxLength = 20

	tests := []struct {
		name    string
		record  *Record
		links   map[alias.Pair]id.PaperID
		policy  AmbiguousPolicy
		action  action
		target  id.PaperID
		aliases []alias.Pair
		reason  string
	}{
		{
			name:    "nothing known creates",
			record:  &Record{PrimaryIdentifier: primary(doi("10.1/a")), Identifiers: []alias.Pair{doi("10.1/a"), arxiv("1501.00001")}},
			action:  actionCreate,
			aliases: []alias.Pair{doi("10.1/a"), arxiv("1501.00001")},
		},
		{
			name:    "linked primary updates",
			record:  &Record{PrimaryIdentifier: primary(doi("10.1/a")), Identifiers: []alias.Pair{doi("10.1/a"), arxiv("1501.00001")}},
			links:   map[alias.Pair]id.PaperID{doi("10.1/a"): 7},
			action:  actionUpdate,
			target:  7,
			aliases: []alias.Pair{arxiv("1501.00001")},
		},
		{
			name:   "linked primary wins over other papers",
			record: &Record{PrimaryIdentifier: primary(doi("10.1/a")), Identifiers: []alias.Pair{doi("10.1/a"), arxiv("1501.00001")}},
			links:  map[alias.Pair]id.PaperID{doi("10.1/a"): 7, arxiv("1501.00001"): 8},
			action: actionUpdate,
			target: 7,
			reason: reasonPartialUpdate,
		},
		{
			name:    "several papers reached skips",
			record:  &Record{PrimaryIdentifier: primary(doi("10.1/a")), Identifiers: []alias.Pair{doi("10.1/a"), doi("10.1/b"), doi("10.1/c")}},
			links:   map[alias.Pair]id.PaperID{doi("10.1/b"): 7, doi("10.1/c"): 8},
			action:  actionSkip,
			aliases: []alias.Pair{doi("10.1/a")},
			reason:  reasonMultiplePapers,
		},
		{
			name:    "one paper without the primary scheme updates",
			record:  &Record{PrimaryIdentifier: primary(arxiv("1501.00001")), Identifiers: []alias.Pair{arxiv("1501.00001"), doi("10.1/b")}},
			links:   map[alias.Pair]id.PaperID{doi("10.1/b"): 7},
			action:  actionUpdate,
			target:  7,
			aliases: []alias.Pair{arxiv("1501.00001")},
		},
		{
			name:    "record without primary updates the paper it reaches",
			record:  &Record{Identifiers: []alias.Pair{doi("10.1/b"), arxiv("1501.00001")}},
			links:   map[alias.Pair]id.PaperID{doi("10.1/b"): 7, arxiv("1501.00009"): 7},
			action:  actionUpdate,
			target:  7,
			aliases: []alias.Pair{arxiv("1501.00001")},
		},
		{
			name:    "ambiguous primary defaults to create",
			record:  &Record{PrimaryIdentifier: primary(arxiv("1501.00001")), Identifiers: []alias.Pair{arxiv("1501.00001"), doi("10.1/b")}},
			links:   map[alias.Pair]id.PaperID{doi("10.1/b"): 7, arxiv("1501.00009"): 7},
			action:  actionCreate,
			aliases: []alias.Pair{arxiv("1501.00001")},
			reason:  reasonPartialCreate,
		},
		{
			name:    "ambiguous primary with update policy",
			record:  &Record{PrimaryIdentifier: primary(arxiv("1501.00001")), Identifiers: []alias.Pair{arxiv("1501.00001"), doi("10.1/b")}},
			links:   map[alias.Pair]id.PaperID{doi("10.1/b"): 7, arxiv("1501.00009"): 7},
			policy:  PolicyUpdate,
			action:  actionUpdate,
			target:  7,
			aliases: []alias.Pair{arxiv("1501.00001")},
			reason:  reasonPartialUpdate,
		},
		{
			name:    "ambiguous primary with skip policy",
			record:  &Record{PrimaryIdentifier: primary(arxiv("1501.00001")), Identifiers: []alias.Pair{arxiv("1501.00001"), doi("10.1/b")}},
			links:   map[alias.Pair]id.PaperID{doi("10.1/b"): 7, arxiv("1501.00009"): 7},
			policy:  PolicySkip,
			action:  actionSkip,
			aliases: []alias.Pair{arxiv("1501.00001")},
			reason:  reasonAmbiguousSkip,
		},
		{
			name:    "oversized identifiers are not linked",
			record:  &Record{PrimaryIdentifier: primary(doi("10.1/a")), Identifiers: []alias.Pair{doi("10.1/a"), doi("10.1/" + "x123456789012345678")}},
			action:  actionCreate,
			aliases: []alias.Pair{doi("10.1/a")},
		},
		{
			name:    "repeated identifiers count once",
			record:  &Record{Identifiers: []alias.Pair{doi("10.1/a"), doi("10.1/a")}},
			action:  actionCreate,
			aliases: []alias.Pair{doi("10.1/a")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := matchRecord(tt.record, indexOf(tt.links), maxLength, tt.policy)
			assert.Equal(t, tt.action, d.action)
			assert.Equal(t, tt.target, d.target)
			assert.Equal(t, tt.aliases, d.aliases)
			assert.Equal(t, tt.reason, d.reason)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyCreate, p)

	p, err = ParsePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, PolicySkip, p)

	_, err = ParsePolicy("merge")
	assert.ErrorContains(t, err, "merge")
}
