package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics exposes the pipeline's operational instruments. Consumer lag
// is the first-class signal; the counters cover both ends of the
// at-least-once contract.
type Metrics struct {
	EventsPublished    *prometheus.CounterVec
	EventsConsumed     *prometheus.CounterVec
	EventsDeduplicated *prometheus.CounterVec
	EventsDeadLettered *prometheus.CounterVec
	OutboxPending      prometheus.Gauge
	ConsumerLag        *prometheus.GaugeVec
	AchievementsGiven  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_events_published_total",
			Help: "Events swept from the outbox and appended to the broker.",
		}, []string{"topic"}),
		EventsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_events_consumed_total",
			Help: "Events applied to the daily summary rollup.",
		}, []string{"topic", "event_type"}),
		EventsDeduplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_events_deduplicated_total",
			Help: "Redelivered events skipped by the applied-event ledger.",
		}, []string{"topic"}),
		EventsDeadLettered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_events_dead_lettered_total",
			Help: "Events routed to a dead-letter stream.",
		}, []string{"topic"}),
		OutboxPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_outbox_pending",
			Help: "Outbox rows waiting for the sweeper.",
		}),
		ConsumerLag: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_consumer_lag",
			Help: "Unacknowledged records per topic partition.",
		}, []string{"topic", "partition"}),
		AchievementsGiven: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_achievements_awarded_total",
			Help: "Achievements inserted, by kind.",
		}, []string{"kind"}),
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
