// Package relay publishes pending feed outbox rows to the broker.
package relay

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"litgraph/internal/feed"
	"litgraph/internal/platform/kafka"
	"litgraph/internal/platform/metrics"
	"litgraph/pkg/platform/circuit"
)

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]*feed.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Relay moves outbox rows to the broker. Delivery is at least once: a batch
// is marked published in the transaction that locked it, after the broker
// acknowledged it, so a failed commit republishes the batch.
type Relay struct {
	tx        TxRunner
	outbox    Outbox
	publisher Publisher
	breaker   *circuit.Breaker
	batchSize int
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		r.breaker = b
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func New(tx TxRunner, outbox Outbox, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		tx:        tx,
		outbox:    outbox,
		publisher: publisher,
		breaker:   circuit.New("feed-relay"),
		batchSize: 100,
		interval:  2 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if r.breaker.Allow() {
			r.drain(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain publishes full batches back to back until the outbox is empty or a
// batch fails.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.RunOnce(ctx)
		if err != nil {
			r.metrics.IncOutboxPublishFailure()
			if _, change := r.breaker.RecordFailure(); change.Opened {
				r.logger.WarnContext(ctx, "feed relay paused after repeated failures", "error", err)
			} else {
				r.logger.ErrorContext(ctx, "feed relay batch failed", "error", err)
			}
			return
		}
		if _, change := r.breaker.RecordSuccess(); change.Closed {
			r.logger.InfoContext(ctx, "feed relay resumed")
		}
		if n < r.batchSize {
			return
		}
	}
}

// RunOnce publishes at most one batch and returns how many rows it sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var sent int
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		entries, err := r.outbox.FetchPending(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		msgs := make([]kafka.Message, len(entries))
		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			msgs[i] = toMessage(e)
			ids[i] = e.ID
		}
		if err := r.publisher.Publish(ctx, msgs...); err != nil {
			return err
		}
		if err := r.outbox.MarkPublished(ctx, ids); err != nil {
			return err
		}
		sent = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.metrics.AddOutboxPublished(sent)
	return sent, nil
}

// toMessage keys records by person so one person's feed changes stay ordered
// within a partition.
func toMessage(e *feed.OutboxEntry) kafka.Message {
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(int64(e.PersonID), 10)),
		Value: e.Payload,
		Headers: map[string]string{
			"event_type": string(e.Type),
			"action":     string(e.Action),
			"outbox_id":  e.ID.String(),
		},
	}
}
