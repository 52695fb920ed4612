// Package app builds the object graph shared by the server and the harvest
// command from one Config.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"litgraph/internal/alias/resolver"
	aliasstore "litgraph/internal/alias/store"
	"litgraph/internal/authorship/service"
	refstore "litgraph/internal/authorship/store"
	"litgraph/internal/feed"
	"litgraph/internal/importer"
	importmetrics "litgraph/internal/importer/metrics"
	sourcestore "litgraph/internal/importer/store"
	"litgraph/internal/paper"
	"litgraph/internal/platform/config"
	"litgraph/internal/platform/metrics"
	"litgraph/internal/platform/postgres"
	id "litgraph/pkg/domain"
	txcontext "litgraph/pkg/platform/tx"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sql.DB
	Tx     *txcontext.Runner

	Papers        *paper.PostgresStore
	PersonAliases *aliasstore.PostgresStore[id.PersonID]
	PaperAliases  *aliasstore.PostgresStore[id.PaperID]
	Feed          *feed.PostgresStore

	Resolver   *resolver.Resolver
	Reconciler *service.Reconciler
	Importer   *importer.Importer
	Backfiller *importer.Backfiller
	Categories *importer.CategoryFile

	Metrics       *metrics.Metrics
	ImportMetrics *importmetrics.Metrics
}

// Open connects to the database, applies the schema and wires every
// service. The caller owns Close.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
		Driver:          cfg.DatabaseDriver,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxOpenConns / 2,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	policy, err := importer.ParsePolicy(cfg.Import.AmbiguousPolicy)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	categories, err := importer.LoadCategories(cfg.Import.CategoriesFile)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Tx:            txcontext.NewRunner(db),
		Categories:    categories,
		Metrics:       metrics.New(),
		ImportMetrics: importmetrics.New(),
	}
	a.Papers = paper.NewPostgres(db)
	a.PersonAliases = aliasstore.NewPersonStore(db,
		aliasstore.WithMetrics[id.PersonID](a.Metrics),
		aliasstore.WithLogger[id.PersonID](logger))
	a.PaperAliases = aliasstore.NewPaperStore(db,
		aliasstore.WithMetrics[id.PaperID](a.Metrics),
		aliasstore.WithLogger[id.PaperID](logger))
	a.Feed = feed.NewPostgres(db, feed.WithMetrics(a.Metrics))
	refs := refstore.NewPostgres(db)

	resolverOpts := []resolver.Option{resolver.WithLogger(logger)}
	if len(cfg.BlockedDomains) > 0 {
		resolverOpts = append(resolverOpts, resolver.WithBlockedDomains(cfg.BlockedDomains))
	}
	a.Resolver = resolver.New(a.Papers, a.PersonAliases, a.PaperAliases, resolverOpts...)

	a.Reconciler = service.New(service.Deps{
		Tx:          a.Tx,
		Resolver:    a.Resolver,
		PersonAlias: a.PersonAliases,
		PaperAlias:  a.PaperAliases,
		References:  refs,
		Papers:      a.Papers,
		Feed:        a.Feed,
	}, service.WithLogger(logger), service.WithMetrics(a.Metrics))

	a.Backfiller = importer.NewBackfiller(a.Tx, a.Papers, a.PaperAliases,
		importer.WithThreshold(cfg.Import.Similarity),
		importer.WithBackfillLogger(logger),
		importer.WithBackfillMetrics(a.ImportMetrics))

	opts := []importer.Option{
		importer.WithLogger(logger),
		importer.WithMetrics(a.ImportMetrics),
		importer.WithBatchSize(cfg.Import.BatchSize),
		importer.WithLeaseTTL(cfg.Import.LeaseTTL),
		importer.WithPolicy(policy),
	}
	if cfg.Import.Enrich {
		opts = append(opts, importer.WithEnricher(a.Enrichment()))
	}
	a.Importer = importer.New(importer.Deps{
		Tx:            a.Tx,
		Sources:       sourcestore.NewPostgres(db),
		Papers:        a.Papers,
		PaperAliases:  a.PaperAliases,
		PersonAliases: a.PersonAliases,
		References:    refs,
		Feed:          a.Feed,
		Normalizer:    a.Resolver,
	}, opts...)
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Crossref returns a metadata client identified by the configured mailto.
func (a *App) Crossref() *importer.CrossrefClient {
	opts := []importer.CrossrefOption{importer.WithCrossrefLogger(a.Logger)}
	if a.Config.Import.CrossrefMailto != "" {
		opts = append(opts, importer.WithMailto(a.Config.Import.CrossrefMailto))
	}
	return importer.NewCrossrefClient(a.Resolver, opts...)
}

func (a *App) Enrichment() *importer.Enrichment {
	return importer.NewEnrichment(a.Crossref(), a.Backfiller, a.ImportMetrics, a.Logger)
}

// Harvest imports the pending batch files of every source concurrently.
// Sources do not share a cursor, so one failing does not stop the others;
// the first error is returned once all finished.
func (a *App) Harvest(ctx context.Context, sources []string) error {
	var g errgroup.Group
	for _, code := range sources {
		cfg := importer.SourceConfigFor(code)
		g.Go(func() error {
			stats, err := a.Importer.HarvestDir(ctx, cfg, a.Config.Import.Dir, a.Categories.For(code))
			if err != nil {
				a.Logger.ErrorContext(ctx, "harvest failed", "source", code, "error", err)
				return fmt.Errorf("harvest %s: %w", code, err)
			}
			a.Logger.InfoContext(ctx, "harvest finished",
				"source", code,
				"batches", stats.Batches,
				"created", stats.Created,
				"updated", stats.Updated,
				"skipped", stats.Skipped,
			)
			return nil
		})
	}
	return g.Wait()
}
