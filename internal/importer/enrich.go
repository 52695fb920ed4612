package importer

import (
	"context"
	"log/slog"

	importmetrics "litgraph/internal/importer/metrics"
	strs "litgraph/pkg/platform/strings"
)

const enrichChunkSize = 1000

// Enrichment fetches metadata for newly linked DOIs and backfills the
// bibliography of the papers they identify.
type Enrichment struct {
	fetcher  Fetcher
	backfill *Backfiller
	metrics  *importmetrics.Metrics
	logger   *slog.Logger
}

func NewEnrichment(fetcher Fetcher, backfill *Backfiller, metrics *importmetrics.Metrics, logger *slog.Logger) *Enrichment {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enrichment{fetcher: fetcher, backfill: backfill, metrics: metrics, logger: logger}
}

// Enrich processes dois in chunks of 1000. A chunk that fails to fetch is
// logged and the next one is tried; a failed backfill stops.
func (e *Enrichment) Enrich(ctx context.Context, dois []string) error {
	for _, chunk := range strs.Chunk(strs.Dedupe(dois), enrichChunkSize) {
		records, err := e.fetcher.Fetch(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.WarnContext(ctx, "enrichment fetch failed", "dois", len(chunk), "error", err)
			continue
		}
		e.metrics.AddFetched(len(records))
		stats, err := e.backfill.Add(ctx, records)
		if err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "bibliography backfilled",
			"fetched", len(records),
			"added", stats.Added,
			"mismatch", stats.Mismatch,
			"missing", stats.Missing,
		)
	}
	return nil
}
