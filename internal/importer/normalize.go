package importer

import (
	"log/slog"
	"slices"
	"strings"

	"litgraph/internal/alias"
	"litgraph/internal/alias/resolver"
	"litgraph/internal/paper"
	strs "litgraph/pkg/platform/strings"
)

// Normalizer canonicalizes harvested identifiers without touching storage.
type Normalizer interface {
	Normalize(kind resolver.Kind, pair alias.Pair) (alias.Pair, error)
}

// normalizeRecord canonicalizes every identifier of r in place, dropping the
// ones that fail validation. It reports false when r cannot be imported at
// all: no id, no title or an invalid primary identifier.
func normalizeRecord(n Normalizer, r *Record, logger *slog.Logger) bool {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	if r.ID == "" || r.Name == "" {
		logger.Warn("record without id or title skipped", "record_id", r.ID)
		return false
	}
	r.Name = strs.Truncate(r.Name, paper.MaxNameLength)

	if r.PrimaryIdentifier != nil {
		primary, err := n.Normalize(resolver.KindPaper, *r.PrimaryIdentifier)
		if err != nil {
			logger.Warn("record with invalid primary identifier skipped",
				"record_id", r.ID,
				"scheme", string(r.PrimaryIdentifier.Scheme),
				"identifier", r.PrimaryIdentifier.Identifier,
				"error", err,
			)
			return false
		}
		r.PrimaryIdentifier = &primary
		if !slices.Contains(r.Identifiers, primary) {
			r.Identifiers = append([]alias.Pair{primary}, r.Identifiers...)
		}
	}

	r.Identifiers = normalizePairs(n, resolver.KindPaper, r.Identifiers, r.ID, logger)
	r.Authors = normalizePairs(n, resolver.KindPerson, r.Authors, r.ID, logger)
	r.Bibliography = normalizePairs(n, resolver.KindPaper, r.Bibliography, r.ID, logger)
	return true
}

// normalizePairs returns the valid pairs in canonical form, deduplicated in
// first-seen order.
func normalizePairs(n Normalizer, kind resolver.Kind, pairs []alias.Pair, recordID string, logger *slog.Logger) []alias.Pair {
	if len(pairs) == 0 {
		return nil
	}
	return strs.DedupeFunc(pairs, func(p alias.Pair) (alias.Pair, bool) {
		norm, err := n.Normalize(kind, p)
		if err != nil {
			logger.Debug("invalid identifier dropped",
				"record_id", recordID,
				"scheme", string(p.Scheme),
				"identifier", p.Identifier,
				"error", err,
			)
			return alias.Pair{}, false
		}
		return norm, true
	})
}
