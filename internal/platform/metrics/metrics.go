package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the alias, authorship and feed counters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	AliasInsertRaces      *prometheus.CounterVec
	AliasCollisions       *prometheus.CounterVec
	AliasUnlinkStale      *prometheus.CounterVec
	AuthorshipTransitions *prometheus.CounterVec
	FeedEvents            *prometheus.CounterVec
	OutboxPublished       prometheus.Counter
	OutboxPublishFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		AliasInsertRaces: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "litgraph_alias_insert_races_total",
			Help: "Alias inserts that lost a unique-constraint race and were resolved by refetch",
		}, []string{"table"}),
		AliasCollisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "litgraph_alias_collisions_total",
			Help: "Link attempts refused because the identifier belongs to another target",
		}, []string{"table"}),
		AliasUnlinkStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "litgraph_alias_unlink_stale_total",
			Help: "Unlink attempts skipped because the target changed concurrently",
		}, []string{"table"}),
		AuthorshipTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "litgraph_authorship_transitions_total",
			Help: "Authorship references moved into a confirmation state",
		}, []string{"state"}),
		FeedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "litgraph_feed_events_total",
			Help: "Feed events created or deleted",
		}, []string{"type", "action"}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "litgraph_feed_outbox_published_total",
			Help: "Feed outbox rows delivered to the broker",
		}),
		OutboxPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "litgraph_feed_outbox_publish_failures_total",
			Help: "Feed outbox relay attempts that failed",
		}),
	}
}

func (m *Metrics) IncAliasInsertRace(table string) {
	if m == nil {
		return
	}
	m.AliasInsertRaces.WithLabelValues(table).Inc()
}

func (m *Metrics) IncAliasCollision(table string) {
	if m == nil {
		return
	}
	m.AliasCollisions.WithLabelValues(table).Inc()
}

func (m *Metrics) IncAliasUnlinkStale(table string) {
	if m == nil {
		return
	}
	m.AliasUnlinkStale.WithLabelValues(table).Inc()
}

// AddAuthorshipTransitions records n references moved into state.
func (m *Metrics) AddAuthorshipTransitions(state string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.AuthorshipTransitions.WithLabelValues(state).Add(float64(n))
}

func (m *Metrics) AddFeedEvents(eventType, action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FeedEvents.WithLabelValues(eventType, action).Add(float64(n))
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncOutboxPublishFailure() {
	if m == nil {
		return
	}
	m.OutboxPublishFailures.Inc()
}
