package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"litgraph/internal/app"
	"litgraph/internal/feed/relay"
	jwttoken "litgraph/internal/jwt_token"
	"litgraph/internal/platform/config"
	"litgraph/internal/platform/httpserver"
	"litgraph/internal/platform/kafka"
	"litgraph/internal/platform/logger"
	httptransport "litgraph/internal/transport/http"
)

const (
	tokenIssuer   = "litgraph"
	tokenAudience = "litgraph-api"
)

// main wires the services, serves the HTTP API and runs the background
// jobs until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	tokens := jwttoken.NewService(cfg.JWTSigningKey, tokenIssuer, tokenAudience)
	handler := httptransport.New(a.Reconciler, a.Resolver, log)
	router := httptransport.NewRouter(handler, tokens, log,
		httptransport.WithMetricsHandler(promhttp.Handler()))
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Import.Schedule != "" {
		scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		if _, err := scheduler.AddFunc(cfg.Import.Schedule, func() {
			log.Info("running scheduled harvest", "sources", cfg.Import.Sources)
			if err := a.Harvest(ctx, cfg.Import.Sources); err != nil {
				log.Error("scheduled harvest failed", "error", err)
			}
		}); err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	if cfg.KafkaEnabled() {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, kgo.ClientID(cfg.Kafka.ClientID))
		if err != nil {
			return err
		}
		defer producer.Close()
		if cfg.Kafka.EnsureTopic {
			if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replications); err != nil {
				return err
			}
		}
		r := relay.New(a.Tx, a.Feed, producer,
			relay.WithBatchSize(cfg.Kafka.RelayBatch),
			relay.WithInterval(cfg.Kafka.RelayEvery),
			relay.WithMetrics(a.Metrics),
			relay.WithLogger(log))
		g.Go(func() error {
			if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info("starting litgraph", "addr", cfg.Addr)
		return httpserver.Run(ctx, srv)
	})
	return g.Wait()
}
