// Package importer ingests harvested paper records into the shared alias
// graph.
//
// A run cleans and normalizes the records, maps remote categories to local
// subfields, then imports them in batches. Each batch is its own transaction
// holding the paper alias table lock, so a failed batch leaves earlier ones
// committed and the run can be repeated safely: records already imported
// match their papers through the primary identifier and only missing
// identifiers are linked.
package importer

import (
	"log/slog"

	"litgraph/internal/alias"
	id "litgraph/pkg/domain"
	strs "litgraph/pkg/platform/strings"
)

// Record is one harvested paper, in the shape harvesters emit as JSON lines.
// Pairs encode as [scheme, identifier].
type Record struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Abstract          string       `json:"abstract"`
	Year              *int         `json:"year,omitempty"`
	Identifiers       []alias.Pair `json:"identifiers"`
	PrimaryIdentifier *alias.Pair  `json:"primary_identifier,omitempty"`
	Authors           []alias.Pair `json:"authors,omitempty"`
	AuthorNames       []string     `json:"author_names,omitempty"`
	Bibliography      []alias.Pair `json:"bibliography,omitempty"`
	Categories        []string     `json:"categories,omitempty"`
	Keywords          []string     `json:"keywords,omitempty"`

	subfields []id.SubfieldID
}

// CleanRecords collapses records sharing an id and resolves identifiers
// claimed by more than one record.
//
// The last record with a given id replaces earlier ones but keeps the
// position of the first. An identifier listed by two different records stays
// with the first claimant and is dropped from the later one with a warning.
// Single line breaks inside abstract paragraphs become spaces.
func CleanRecords(records []*Record, logger *slog.Logger) []*Record {
	if logger == nil {
		logger = slog.Default()
	}
	position := make(map[string]int, len(records))
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if i, ok := position[r.ID]; ok {
			out[i] = r
			continue
		}
		position[r.ID] = len(out)
		out = append(out, r)
	}

	claimed := make(map[alias.Pair]string)
	for _, r := range out {
		r.Abstract = strs.JoinLineBreaks(r.Abstract)
		kept := make([]alias.Pair, 0, len(r.Identifiers))
		for _, pair := range r.Identifiers {
			owner, ok := claimed[pair]
			if !ok {
				claimed[pair] = r.ID
			} else if owner != r.ID {
				logger.Warn("duplicate alias referenced by two records",
					"scheme", string(pair.Scheme),
					"identifier", pair.Identifier,
					"record_id", owner,
					"other_record_id", r.ID,
				)
				continue
			}
			kept = append(kept, pair)
		}
		r.Identifiers = kept
	}
	return out
}
