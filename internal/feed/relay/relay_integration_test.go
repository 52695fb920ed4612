//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"litgraph/internal/feed"
	"litgraph/internal/feed/relay"
	"litgraph/internal/paper"
	"litgraph/internal/platform/kafka"
	"litgraph/internal/platform/postgres"
	id "litgraph/pkg/domain"
	txcontext "litgraph/pkg/platform/tx"
	"litgraph/pkg/testutil/containers"
)

func TestRelayDeliversOutboxToBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateTables(ctx, postgres.Tables...))
	broker := containers.GetManager().GetRedpanda(t)

	papers := paper.NewPostgres(pg.DB)
	person := &paper.Person{Username: "ada", IsActive: true}
	require.NoError(t, papers.CreatePerson(ctx, person))
	p := &paper.Paper{Name: "Relays", Public: true, PostedBy: person.ID}
	require.NoError(t, papers.CreatePaper(ctx, p))

	store := feed.NewPostgres(pg.DB)
	runner := txcontext.NewRunner(pg.DB)
	require.NoError(t, runner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := store.EnsureAuthorship(ctx, person.ID, []id.PaperID{p.ID}); err != nil {
			return err
		}
		return store.Append(ctx, feed.Event{PersonID: person.ID, PaperID: p.ID, Type: feed.PaperPosted})
	}))

	const topic = "litgraph.feed.test"
	producer, err := kafka.NewProducer([]string{broker.Broker}, topic)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.EnsureTopic(ctx, 1, 1))

	r := relay.New(runner, store, producer)
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "published rows are not sent twice")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []feed.Message
	for len(got) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(rec *kgo.Record) {
			var msg feed.Message
			require.NoError(t, json.Unmarshal(rec.Value, &msg))
			got = append(got, msg)
		})
	}
	require.ElementsMatch(t,
		[]feed.EventType{feed.AuthorshipConfirmed, feed.PaperPosted},
		[]feed.EventType{got[0].Type, got[1].Type})
	require.Equal(t, int64(person.ID), got[0].PersonID)
}
