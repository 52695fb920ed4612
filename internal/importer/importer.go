package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"litgraph/internal/alias"
	aliasstore "litgraph/internal/alias/store"
	"litgraph/internal/feed"
	importmetrics "litgraph/internal/importer/metrics"
	"litgraph/internal/paper"
	id "litgraph/pkg/domain"
	strs "litgraph/pkg/platform/strings"
)

var tracer = otel.Tracer("litgraph/importer")

const (
	defaultBatchSize = 100
	defaultLeaseTTL  = 10 * time.Minute
)

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaperStore is the part of the paper store the importer writes through.
type PaperStore interface {
	SubfieldStore
	LockPersons(ctx context.Context) error
	CreatePerson(ctx context.Context, p *paper.Person) error
	CreatePaper(ctx context.Context, p *paper.Paper) error
	AddSubfields(ctx context.Context, paperID id.PaperID, subfields []id.SubfieldID) error
	AddAuthorNames(ctx context.Context, paperID id.PaperID, names []string) error
	AddKeywords(ctx context.Context, paperID id.PaperID, keywords []string) error
	AddBibliography(ctx context.Context, paperID id.PaperID, aliasIDs []int64) error
}

type PaperAliasStore interface {
	Table() alias.Table
	LockTable(ctx context.Context) error
	FindLinked(ctx context.Context, pairs []alias.Pair) (map[alias.Pair]*alias.PaperAlias, error)
	ListByTargets(ctx context.Context, targets []id.PaperID) ([]*alias.PaperAlias, error)
	LinkAlias(ctx context.Context, pair alias.Pair, target id.PaperID) (*alias.PaperAlias, error)
	BulkCreateUnlinked(ctx context.Context, pairs []alias.Pair) ([]*alias.PaperAlias, error)
}

type PersonAliasStore interface {
	LinkAlias(ctx context.Context, pair alias.Pair, target id.PersonID) (*alias.PersonAlias, error)
	BulkCreateUnlinked(ctx context.Context, pairs []alias.Pair) ([]*alias.PersonAlias, error)
}

type ReferenceStore interface {
	BulkCreatePending(ctx context.Context, paperID id.PaperID, aliasIDs []int64) error
}

type FeedStore interface {
	Append(ctx context.Context, events ...feed.Event) error
}

// Enricher receives the DOIs a run linked, after the run committed.
type Enricher interface {
	Enrich(ctx context.Context, dois []string) error
}

type Deps struct {
	Tx            TxRunner
	Sources       SourceStore
	Papers        PaperStore
	PaperAliases  PaperAliasStore
	PersonAliases PersonAliasStore
	References    ReferenceStore
	Feed          FeedStore
	Normalizer    Normalizer
}

// Importer runs harvested records into the database.
type Importer struct {
	tx            TxRunner
	sources       SourceStore
	papers        PaperStore
	paperAliases  PaperAliasStore
	personAliases PersonAliasStore
	refs          ReferenceStore
	feed          FeedStore
	normalizer    Normalizer
	enricher      Enricher
	batchSize     int
	leaseTTL      time.Duration
	policy        AmbiguousPolicy
	metrics       *importmetrics.Metrics
	logger        *slog.Logger
}

type Option func(*Importer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

func WithMetrics(m *importmetrics.Metrics) Option {
	return func(i *Importer) {
		i.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

func WithLeaseTTL(d time.Duration) Option {
	return func(i *Importer) {
		if d > 0 {
			i.leaseTTL = d
		}
	}
}

func WithPolicy(p AmbiguousPolicy) Option {
	return func(i *Importer) {
		i.policy = p
	}
}

// WithEnricher queues the DOIs each run links for a metadata fetch.
func WithEnricher(e Enricher) Option {
	return func(i *Importer) {
		i.enricher = e
	}
}

func New(deps Deps, opts ...Option) *Importer {
	i := &Importer{
		tx:            deps.Tx,
		sources:       deps.Sources,
		papers:        deps.Papers,
		paperAliases:  deps.PaperAliases,
		personAliases: deps.PersonAliases,
		refs:          deps.References,
		feed:          deps.Feed,
		normalizer:    deps.Normalizer,
		batchSize:     defaultBatchSize,
		leaseTTL:      defaultLeaseTTL,
		policy:        PolicyCreate,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Stats summarizes one run.
type Stats struct {
	Created int
	Updated int
	Skipped int
	Batches int
	// DOIs lists the DOI identifiers the run linked.
	DOIs []string
}

// Import runs records into the database and advances the cursor of src to
// cursor. categories maps remote category codes to subfields; unknown codes
// are logged and ignored.
//
// Each batch commits on its own. A fatal error (another run holding the
// source) stops the run; later batches are not attempted and the cursor is
// left where it was, so the next run repeats the same records.
func (i *Importer) Import(ctx context.Context, src *Source, cursor string, records []*Record, categories map[string]id.SubfieldID) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "importer.Import", trace.WithAttributes(
		attribute.String("import.source", src.Code),
		attribute.Int("import.records", len(records)),
	))
	defer span.End()

	stats := &Stats{}
	records = i.prepare(src, records, categories)

	lease, err := i.acquire(ctx, src)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lease")
		return nil, err
	}
	for _, batch := range strs.Chunk(records, i.batchSize) {
		if err := i.runBatch(ctx, src, lease, batch, stats); err != nil {
			i.release(ctx, src, lease)
			i.logger.ErrorContext(ctx, "import batch failed",
				"source", src.Code,
				"record_ids", recordIDs(batch),
				"error", err,
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch")
			return stats, err
		}
	}
	if err := i.finish(ctx, src, lease, cursor); err != nil {
		i.release(ctx, src, lease)
		span.RecordError(err)
		span.SetStatus(codes.Error, "cursor")
		return stats, err
	}

	i.metrics.AddRecords(src.Code, "created", stats.Created)
	i.metrics.AddRecords(src.Code, "updated", stats.Updated)
	i.metrics.AddRecords(src.Code, "skipped", stats.Skipped)
	span.SetAttributes(
		attribute.Int("import.created", stats.Created),
		attribute.Int("import.updated", stats.Updated),
		attribute.Int("import.skipped", stats.Skipped),
	)
	i.logger.InfoContext(ctx, "import finished",
		"source", src.Code,
		"cursor", cursor,
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
	)

	if i.enricher != nil && len(stats.DOIs) > 0 {
		if err := i.enricher.Enrich(ctx, stats.DOIs); err != nil {
			i.logger.WarnContext(ctx, "enrichment failed", "source", src.Code, "error", err)
		}
	}
	return stats, nil
}

// prepare normalizes, cleans and files records under their subfields.
func (i *Importer) prepare(src *Source, records []*Record, categories map[string]id.SubfieldID) []*Record {
	logger := i.logger.With("source", src.Code)
	valid := make([]*Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if i.normalizer != nil && !normalizeRecord(i.normalizer, r, logger) {
			i.metrics.IncWarning(src.Code, "invalid_record")
			continue
		}
		valid = append(valid, r)
	}
	valid = CleanRecords(valid, logger)
	for _, r := range valid {
		r.subfields = r.subfields[:0]
		for _, code := range r.Categories {
			sf, ok := categories[code]
			if !ok {
				logger.Warn("unknown category", "category", code, "record_id", r.ID)
				i.metrics.IncWarning(src.Code, "unknown_category")
				continue
			}
			r.subfields = append(r.subfields, sf)
		}
		r.subfields = strs.Dedupe(r.subfields)
	}
	return valid
}

func (i *Importer) runBatch(ctx context.Context, src *Source, lease uuid.UUID, batch []*Record, stats *Stats) error {
	ctx, span := tracer.Start(ctx, "importer.batch", trace.WithAttributes(
		attribute.String("import.source", src.Code),
		attribute.Int("import.batch_size", len(batch)),
	))
	defer span.End()
	defer i.metrics.ObserveBatch(src.Code, time.Now())

	var local Stats
	err := i.tx.RunInTx(ctx, func(ctx context.Context) error {
		local = Stats{}
		if err := i.verify(ctx, src, lease); err != nil {
			return err
		}
		if err := i.paperAliases.LockTable(ctx); err != nil {
			return err
		}
		return i.importBatch(ctx, src, batch, &local)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		return err
	}
	stats.Created += local.Created
	stats.Updated += local.Updated
	stats.Skipped += local.Skipped
	stats.DOIs = append(stats.DOIs, local.DOIs...)
	stats.Batches++
	return nil
}

// importBatch resolves every identifier of the batch in one query, then
// decides record by record.
func (i *Importer) importBatch(ctx context.Context, src *Source, batch []*Record, stats *Stats) error {
	idx, err := i.loadIndex(ctx, batch)
	if err != nil {
		return err
	}
	maxLength := i.paperAliases.Table().MaxIdentifierLength
	for _, r := range batch {
		d := matchRecord(r, idx, maxLength, i.policy)
		if d.reason != "" {
			i.warn(ctx, src, r, d.reason)
		}
		var linked []alias.Pair
		switch d.action {
		case actionSkip:
			stats.Skipped++
			continue
		case actionUpdate:
			linked, err = i.linkAliases(ctx, src, r, d.target, d.aliases)
			if err != nil {
				return err
			}
			stats.Updated++
			for _, pair := range linked {
				idx.link(pair, d.target)
			}
		case actionCreate:
			var paperID id.PaperID
			paperID, linked, err = i.createPaper(ctx, src, r, d.aliases)
			if err != nil {
				return err
			}
			stats.Created++
			for _, pair := range linked {
				idx.link(pair, paperID)
			}
		}
		for _, pair := range linked {
			if pair.Scheme == alias.SchemeDOI {
				stats.DOIs = append(stats.DOIs, pair.Identifier)
			}
		}
	}
	return nil
}

func (i *Importer) loadIndex(ctx context.Context, batch []*Record) (*batchIndex, error) {
	var pairs []alias.Pair
	for _, r := range batch {
		pairs = append(pairs, r.Identifiers...)
	}
	found, err := i.paperAliases.FindLinked(ctx, strs.Dedupe(pairs))
	if err != nil {
		return nil, err
	}
	idx := &batchIndex{
		linked:  make(map[alias.Pair]id.PaperID, len(found)),
		schemes: make(map[id.PaperID]map[alias.Scheme]bool),
	}
	var targets []id.PaperID
	for pair, a := range found {
		idx.linked[pair] = a.Target
		targets = append(targets, a.Target)
	}
	others, err := i.paperAliases.ListByTargets(ctx, strs.Dedupe(targets))
	if err != nil {
		return nil, err
	}
	for _, a := range others {
		idx.link(a.Pair(), a.Target)
	}
	return idx, nil
}

// linkAliases links pairs to paperID and returns the ones it linked. The
// alias table lock keeps other writers out, so a collision here means a
// concurrent interactive link committed first; the pair is left alone.
func (i *Importer) linkAliases(ctx context.Context, src *Source, r *Record, paperID id.PaperID, pairs []alias.Pair) ([]alias.Pair, error) {
	linked := make([]alias.Pair, 0, len(pairs))
	for _, pair := range pairs {
		if _, err := i.paperAliases.LinkAlias(ctx, pair, paperID); err != nil {
			if errors.Is(err, aliasstore.ErrCollision) {
				i.logger.WarnContext(ctx, "identifier linked to another paper",
					"source", src.Code,
					"record_id", r.ID,
					"scheme", string(pair.Scheme),
					"identifier", pair.Identifier,
				)
				i.metrics.IncWarning(src.Code, "collision")
				continue
			}
			return nil, fmt.Errorf("link %s to paper %d: %w", pair, paperID, err)
		}
		linked = append(linked, pair)
	}
	return linked, nil
}

// createPaper stores r as a new paper posted by the source bot.
func (i *Importer) createPaper(ctx context.Context, src *Source, r *Record, identifiers []alias.Pair) (id.PaperID, []alias.Pair, error) {
	p := &paper.Paper{
		Name:               r.Name,
		Abstract:           r.Abstract,
		YearPublished:      r.Year,
		IncompleteMetadata: true,
		Public:             true,
		PostedBy:           src.BotProfile,
		ChangedBy:          src.BotProfile,
	}
	if err := i.papers.CreatePaper(ctx, p); err != nil {
		return 0, nil, err
	}
	if err := i.papers.AddSubfields(ctx, p.ID, r.subfields); err != nil {
		return 0, nil, err
	}
	if _, err := i.paperAliases.LinkAlias(ctx, alias.PaperHandle(p.ID), p.ID); err != nil {
		return 0, nil, fmt.Errorf("link paper handle: %w", err)
	}
	linked, err := i.linkAliases(ctx, src, r, p.ID, identifiers)
	if err != nil {
		return 0, nil, err
	}

	if authors := strs.Dedupe(r.Authors); len(authors) > 0 {
		rows, err := i.personAliases.BulkCreateUnlinked(ctx, authors)
		if err != nil {
			return 0, nil, err
		}
		if err := i.refs.BulkCreatePending(ctx, p.ID, aliasIDs(rows)); err != nil {
			return 0, nil, err
		}
	}

	names := make([]string, 0, len(r.AuthorNames))
	for _, n := range r.AuthorNames {
		names = append(names, strs.Truncate(n, paper.MaxAuthorNameLength))
	}
	if err := i.papers.AddAuthorNames(ctx, p.ID, names); err != nil {
		return 0, nil, err
	}

	if cited := i.fitting(r.Bibliography); len(cited) > 0 {
		rows, err := i.paperAliases.BulkCreateUnlinked(ctx, cited)
		if err != nil {
			return 0, nil, err
		}
		if err := i.papers.AddBibliography(ctx, p.ID, aliasIDs(rows)); err != nil {
			return 0, nil, err
		}
	}

	keywords := make([]string, 0, len(r.Keywords))
	for _, k := range strs.DedupeAndTrim(r.Keywords) {
		keywords = append(keywords, strs.Truncate(k, paper.MaxKeywordLength))
	}
	if err := i.papers.AddKeywords(ctx, p.ID, keywords); err != nil {
		return 0, nil, err
	}

	if err := i.feed.Append(ctx, feed.Event{PersonID: src.BotProfile, PaperID: p.ID, Type: feed.PaperPosted}); err != nil {
		return 0, nil, err
	}
	return p.ID, linked, nil
}

// fitting returns the distinct pairs whose identifier fits the paper alias
// table.
func (i *Importer) fitting(pairs []alias.Pair) []alias.Pair {
	limit := i.paperAliases.Table().MaxIdentifierLength
	return strs.DedupeFunc(pairs, func(p alias.Pair) (alias.Pair, bool) {
		return p, strs.RuneLen(p.Identifier) <= limit
	})
}

func (i *Importer) warn(ctx context.Context, src *Source, r *Record, reason string) {
	msg := map[string]string{
		reasonMultiplePapers: "aliases reference multiple existing papers, update skipped",
		reasonPartialCreate:  "some aliases are assigned to existing papers, importing paper with partial alias list",
		reasonPartialUpdate:  "some aliases are assigned to other existing papers, updating paper with partial alias list",
		reasonAmbiguousSkip:  "aliases reach a paper with a different primary identifier, record skipped",
	}[reason]
	i.logger.WarnContext(ctx, msg, "source", src.Code, "record_id", r.ID, "reason", reason)
	i.metrics.IncWarning(src.Code, reason)
}

func aliasIDs[T id.Target](rows []*alias.Alias[T]) []int64 {
	out := make([]int64, 0, len(rows))
	for _, a := range rows {
		if a != nil {
			out = append(out, a.ID)
		}
	}
	return strs.Dedupe(out)
}

func recordIDs(records []*Record) []string {
	out := make([]string, len(records))
	for n, r := range records {
		out[n] = r.ID
	}
	return out
}
