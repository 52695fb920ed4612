package importer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"litgraph/internal/alias"
	importmetrics "litgraph/internal/importer/metrics"
	"litgraph/internal/paper"
	id "litgraph/pkg/domain"
	strs "litgraph/pkg/platform/strings"
)

// DefaultSimilarity is the title ratio below which a backfill record is
// assumed to describe a different paper.
const DefaultSimilarity = 0.5

const backfillBatchSize = 100

// TitleSimilarity compares two titles after casefolding and whitespace
// collapsing. 1 means identical.
func TitleSimilarity(a, b string) float64 {
	m := difflib.NewMatcher(
		strings.Split(strs.FoldTitle(a), ""),
		strings.Split(strs.FoldTitle(b), ""),
	)
	return m.Ratio()
}

type BackfillPapers interface {
	FindPapers(ctx context.Context, paperIDs []id.PaperID) (map[id.PaperID]*paper.Paper, error)
	BibliographyCounts(ctx context.Context, paperIDs []id.PaperID) (map[id.PaperID]int, error)
	AddBibliography(ctx context.Context, paperID id.PaperID, aliasIDs []int64) error
}

// Backfiller adds citations fetched from a secondary source to papers that
// have none.
type Backfiller struct {
	tx        TxRunner
	papers    BackfillPapers
	aliases   PaperAliasStore
	threshold float64
	metrics   *importmetrics.Metrics
	logger    *slog.Logger
}

type BackfillOption func(*Backfiller)

func WithThreshold(t float64) BackfillOption {
	return func(b *Backfiller) {
		if t > 0 {
			b.threshold = t
		}
	}
}

func WithBackfillLogger(logger *slog.Logger) BackfillOption {
	return func(b *Backfiller) {
		b.logger = logger
	}
}

func WithBackfillMetrics(m *importmetrics.Metrics) BackfillOption {
	return func(b *Backfiller) {
		b.metrics = m
	}
}

func NewBackfiller(tx TxRunner, papers BackfillPapers, aliases PaperAliasStore, opts ...BackfillOption) *Backfiller {
	b := &Backfiller{
		tx:        tx,
		papers:    papers,
		aliases:   aliases,
		threshold: DefaultSimilarity,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BackfillStats counts backfill outcomes.
type BackfillStats struct {
	Added    int
	Missing  int
	Mismatch int
	Skipped  int
}

// Add merges the bibliography of records into the papers their primary
// identifiers are linked to, in transactions of 100 records.
func (b *Backfiller) Add(ctx context.Context, records []*Record) (*BackfillStats, error) {
	ctx, span := tracer.Start(ctx, "importer.Backfill", trace.WithAttributes(
		attribute.Int("backfill.records", len(records)),
	))
	defer span.End()

	stats := &BackfillStats{}
	for _, batch := range strs.Chunk(records, backfillBatchSize) {
		var local BackfillStats
		err := b.tx.RunInTx(ctx, func(ctx context.Context) error {
			local = BackfillStats{}
			return b.addBatch(ctx, batch, &local)
		})
		if err != nil {
			span.RecordError(err)
			return stats, err
		}
		stats.Added += local.Added
		stats.Missing += local.Missing
		stats.Mismatch += local.Mismatch
		stats.Skipped += local.Skipped
	}
	return stats, nil
}

type merge struct {
	paperID id.PaperID
	cited   []alias.Pair
}

func (b *Backfiller) addBatch(ctx context.Context, batch []*Record, stats *BackfillStats) error {
	if err := b.aliases.LockTable(ctx); err != nil {
		return err
	}
	var primaries []alias.Pair
	for _, r := range batch {
		if r.PrimaryIdentifier != nil {
			primaries = append(primaries, *r.PrimaryIdentifier)
		}
	}
	linked, err := b.aliases.FindLinked(ctx, strs.Dedupe(primaries))
	if err != nil {
		return err
	}
	var paperIDs []id.PaperID
	for _, a := range linked {
		paperIDs = append(paperIDs, a.Target)
	}
	paperIDs = strs.Dedupe(paperIDs)
	papers, err := b.papers.FindPapers(ctx, paperIDs)
	if err != nil {
		return err
	}
	counts, err := b.papers.BibliographyCounts(ctx, paperIDs)
	if err != nil {
		return err
	}

	limit := b.aliases.Table().MaxIdentifierLength
	var merges []merge
	var cited []alias.Pair
	for _, r := range batch {
		if r.PrimaryIdentifier == nil {
			stats.Missing++
			continue
		}
		var p *paper.Paper
		if a, ok := linked[*r.PrimaryIdentifier]; ok {
			p = papers[a.Target]
		}
		if p == nil {
			b.logger.WarnContext(ctx, "backfill paper not found",
				"scheme", string(r.PrimaryIdentifier.Scheme),
				"identifier", r.PrimaryIdentifier.Identifier,
			)
			b.metrics.IncBackfill("missing")
			stats.Missing++
			continue
		}
		bib := strs.DedupeFunc(r.Bibliography, func(pair alias.Pair) (alias.Pair, bool) {
			return pair, strs.RuneLen(pair.Identifier) <= limit
		})

		if r.Name != "" {
			if ratio := TitleSimilarity(p.Name, r.Name); ratio < b.threshold {
				b.logger.WarnContext(ctx, "backfill paper name mismatch",
					"similarity", ratio,
					"scheme", string(r.PrimaryIdentifier.Scheme),
					"identifier", r.PrimaryIdentifier.Identifier,
				)
				b.metrics.IncBackfill("mismatch")
				stats.Mismatch++
				continue
			}
		}
		if counts[p.ID] > 0 || len(bib) == 0 {
			b.metrics.IncBackfill("skipped")
			stats.Skipped++
			continue
		}
		merges = append(merges, merge{paperID: p.ID, cited: bib})
		cited = append(cited, bib...)
		// A repeated record of the same paper sees the earlier merge.
		counts[p.ID] = len(bib)
	}
	if len(merges) == 0 {
		return nil
	}

	cited = strs.Dedupe(cited)
	rows, err := b.aliases.BulkCreateUnlinked(ctx, cited)
	if err != nil {
		return err
	}
	byPair := make(map[alias.Pair]int64, len(rows))
	for n, a := range rows {
		byPair[cited[n]] = a.ID
	}
	for _, m := range merges {
		ids := make([]int64, 0, len(m.cited))
		for _, pair := range m.cited {
			ids = append(ids, byPair[pair])
		}
		if err := b.papers.AddBibliography(ctx, m.paperID, ids); err != nil {
			return err
		}
		b.metrics.IncBackfill("added")
		stats.Added++
	}
	return nil
}
