package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the bot's Prometheus instruments. Construct once with the
// default registerer; tests pass a fresh registry.
type Metrics struct {
	CommandsProcessed    *prometheus.CounterVec
	AlertsTriggered      prometheus.Counter
	AlertCyclesTotal     prometheus.Counter
	CollectionPollsTotal prometheus.Counter
	SalesNotified        prometheus.Counter
	FetchFailures        *prometheus.CounterVec
	TrackedNFTs          prometheus.Gauge
	TrackedCollections   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mint_sentry",
				Subsystem: "telegram_bot",
				Name:      "commands_processed",
				Help:      "The total number of processed commands",
			},
			[]string{"command"},
		),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mint_sentry",
			Subsystem: "watch",
			Name:      "alerts_triggered",
			Help:      "The total number of price alerts fired",
		}),
		AlertCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mint_sentry",
			Subsystem: "watch",
			Name:      "alert_cycles_total",
			Help:      "The total number of completed alert evaluation cycles",
		}),
		CollectionPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mint_sentry",
			Subsystem: "watch",
			Name:      "collection_polls_total",
			Help:      "The total number of completed collection poll cycles",
		}),
		SalesNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mint_sentry",
			Subsystem: "watch",
			Name:      "sales_notified",
			Help:      "The total number of sale notifications delivered",
		}),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mint_sentry",
				Subsystem: "watch",
				Name:      "fetch_failures",
				Help:      "The total number of failed upstream fetches by operation",
			},
			[]string{"operation"},
		),
		TrackedNFTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mint_sentry",
			Subsystem: "watch",
			Name:      "tracked_nfts",
			Help:      "The current number of tracked NFT entries",
		}),
		TrackedCollections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mint_sentry",
			Subsystem: "watch",
			Name:      "tracked_collections",
			Help:      "The current number of tracked collections",
		}),
	}

	reg.MustRegister(
		m.CommandsProcessed,
		m.AlertsTriggered,
		m.AlertCyclesTotal,
		m.CollectionPollsTotal,
		m.SalesNotified,
		m.FetchFailures,
		m.TrackedNFTs,
		m.TrackedCollections,
	)

	return m
}
