package importer

import (
	"fmt"

	"litgraph/internal/alias"
	id "litgraph/pkg/domain"
	strs "litgraph/pkg/platform/strings"
)

// AmbiguousPolicy decides what happens to a record whose identifiers reach
// exactly one existing paper that already carries a different identifier
// under the record's primary scheme.
type AmbiguousPolicy string

const (
	// PolicyCreate imports the record as a new paper with the identifiers
	// that are still free.
	PolicyCreate AmbiguousPolicy = "create"
	// PolicyUpdate links the free identifiers to the existing paper.
	PolicyUpdate AmbiguousPolicy = "update"
	// PolicySkip drops the record.
	PolicySkip AmbiguousPolicy = "skip"
)

func ParsePolicy(s string) (AmbiguousPolicy, error) {
	switch p := AmbiguousPolicy(s); p {
	case PolicyCreate, PolicyUpdate, PolicySkip:
		return p, nil
	case "":
		return PolicyCreate, nil
	}
	return "", fmt.Errorf("unknown ambiguous-primary policy %q", s)
}

type action int

const (
	actionCreate action = iota
	actionUpdate
	actionSkip
)

// Warning reasons, also used as metric labels.
const (
	reasonMultiplePapers = "multiple_papers"
	reasonPartialCreate  = "partial_create"
	reasonPartialUpdate  = "partial_update"
	reasonAmbiguousSkip  = "ambiguous_skip"
)

// decision is what to do with one record of a batch.
type decision struct {
	action action
	target id.PaperID
	// aliases are the record's identifiers not linked yet, in record order.
	aliases []alias.Pair
	// reason is set when the record deserves a warning.
	reason string
}

// batchIndex is what one batch query knows about the record identifiers.
type batchIndex struct {
	// linked maps identifiers already linked to their paper.
	linked map[alias.Pair]id.PaperID
	// schemes lists the schemes each reachable paper has identifiers under.
	schemes map[id.PaperID]map[alias.Scheme]bool
}

// link records pair as linked to paperID so later records of the batch see it.
func (b *batchIndex) link(pair alias.Pair, paperID id.PaperID) {
	b.linked[pair] = paperID
	if b.schemes[paperID] == nil {
		b.schemes[paperID] = make(map[alias.Scheme]bool)
	}
	b.schemes[paperID][pair.Scheme] = true
}

// matchRecord decides between updating an existing paper, creating a new one
// and skipping the record.
//
// A record whose primary identifier is linked updates that paper. Otherwise
// its identifiers may reach existing papers: none creates a paper, several
// skip the record, and exactly one updates it unless that paper already has an
// identifier under the primary scheme, which policy resolves.
func matchRecord(r *Record, idx *batchIndex, maxLength int, policy AmbiguousPolicy) decision {
	var d decision
	reached := make(map[id.PaperID]bool)
	seen := make(map[alias.Pair]bool)
	for _, pair := range r.Identifiers {
		if seen[pair] {
			continue
		}
		seen[pair] = true
		if paperID, ok := idx.linked[pair]; ok {
			reached[paperID] = true
		} else if strs.RuneLen(pair.Identifier) <= maxLength {
			d.aliases = append(d.aliases, pair)
		}
	}

	if r.PrimaryIdentifier != nil {
		if paperID, ok := idx.linked[*r.PrimaryIdentifier]; ok {
			d.action = actionUpdate
			d.target = paperID
			if len(reached) > 1 {
				d.reason = reasonPartialUpdate
			}
			return d
		}
	}

	switch len(reached) {
	case 0:
		d.action = actionCreate
		return d
	case 1:
	default:
		d.action = actionSkip
		d.reason = reasonMultiplePapers
		return d
	}

	var only id.PaperID
	for paperID := range reached {
		only = paperID
	}
	if r.PrimaryIdentifier == nil || !idx.schemes[only][r.PrimaryIdentifier.Scheme] {
		d.action = actionUpdate
		d.target = only
		return d
	}

	switch policy {
	case PolicyUpdate:
		d.action = actionUpdate
		d.target = only
		d.reason = reasonPartialUpdate
	case PolicySkip:
		d.action = actionSkip
		d.reason = reasonAmbiguousSkip
	default:
		d.action = actionCreate
		d.reason = reasonPartialCreate
	}
	return d
}
